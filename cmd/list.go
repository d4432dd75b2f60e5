package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veritas-protocol/veritas-console/internal/store"
)

var (
	listSearch string
	listLimit  int
	listAudit  string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List incident drafts",
	Long: `List incident drafts from the database in a simple text format.

Examples:
  # List all drafts
  veritas list

  # Search drafts by title or description
  veritas list --search "instagram"

  # Show the audit trail for one draft
  veritas list --audit <draft-id>`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listSearch, "search", "", "Full-text search over titles and descriptions")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of items to show")
	listCmd.Flags().StringVar(&listAudit, "audit", "", "Show the audit trail for the given draft id")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	if listAudit != "" {
		if err := st.SetupAuditTables(); err != nil {
			return fmt.Errorf("failed to set up audit tables: %w", err)
		}
		entries, err := st.GetAuditEntries(ctx, listAudit, listLimit)
		if err != nil {
			return fmt.Errorf("failed to load audit trail: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries found.")
			return nil
		}
		fmt.Printf("Audit trail for draft %s:\n\n", listAudit)
		for i, entry := range entries {
			fmt.Printf("%d. %s by %s at %s\n", i+1, entry.Action, entry.Actor,
				entry.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	var summaries []store.DraftSummary
	if listSearch != "" {
		summaries, err = st.SearchDrafts(ctx, listSearch, listLimit)
	} else {
		summaries, err = st.ListDrafts(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No drafts found.")
		return nil
	}

	fmt.Printf("Found %d draft(s):\n\n", len(summaries))
	for i, d := range summaries {
		fmt.Printf("%d. [%s] %s\n", i+1, strings.ToUpper(string(d.Status)), d.Title)
		fmt.Printf("   ID: %s\n", d.ID)
		fmt.Printf("   Type: %s\n", d.Type)
		fmt.Printf("   Evidence: %d  Laws: %d\n", d.EvidenceCount, d.LawCount)
		fmt.Printf("   Created: %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}

	return nil
}
