package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed sample incident drafts into the database",
	Long: `Seed sample incident drafts into the SQLite database.
This is useful for local testing when the database is empty.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config := GetConfig()

	logger := log.New(cmd.OutOrStdout(), "[seed] ", log.LstdFlags)
	logger.Println("Seeding sample data...")

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	existing, err := st.ListDrafts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}
	if len(existing) > 0 {
		logger.Printf("Database already has %d draft(s), nothing to do", len(existing))
		return nil
	}

	seeds := []incident.WizardSeed{
		{
			IncidentType:      incident.TypeHarassment,
			Title:             "Threatening messages on Instagram",
			Description:       "Receiving repeated threatening DMs with explicit images from an anonymous account.",
			PlatformsInvolved: "Instagram, WhatsApp",
		},
		{
			IncidentType:      incident.TypePhishing,
			Title:             "Fake bank verification SMS",
			Description:       "Got an SMS pretending to be my bank asking to verify my account via a suspicious link.",
			PlatformsInvolved: "SMS",
		},
		{
			IncidentType: incident.TypeIdentityTheft,
			Title:        "Impersonation profile using my photos",
			Description:  "Someone created a fake profile with my name and photos and is messaging my contacts.",
		},
	}

	for _, seed := range seeds {
		draft := incident.NewDraft(seed)
		if err := st.SaveDraft(ctx, *draft); err != nil {
			logger.Printf("Failed to seed draft %q: %v", seed.Title, err)
			continue
		}
		logger.Printf("Seeded draft %s (%s)", draft.ID, draft.Title)
	}

	logger.Println("Seeding complete")
	return nil
}
