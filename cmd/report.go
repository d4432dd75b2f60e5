package cmd

import (
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

var (
	reportType        string
	reportTitle       string
	reportDescription string
	reportDate        string
	reportPlatforms   string
	reportPerpetrator string
	reportEvidence    []string
	reportSubmit      bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create an incident draft from the command line",
	Long: `Create an incident draft, run legal analysis against the law
catalog, and optionally submit the finished report, all without the API
server.

Examples:
  # Draft a harassment report and review the identified laws
  veritas report --type harassment --title "Threats on Instagram" \
    --description "Repeated threatening DMs with explicit images" \
    --platforms "Instagram, WhatsApp"

  # Attach evidence and submit in one shot
  veritas report --type harassment --title "Threats on Instagram" \
    --description "Repeated threatening DMs" \
    --evidence screenshot1.png --evidence chat-export.pdf --submit`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportType, "type", "other", "Incident type (harassment, stalking, fraud, phishing, identity-theft, defamation, hacking, other)")
	reportCmd.Flags().StringVar(&reportTitle, "title", "", "Incident title (required)")
	reportCmd.Flags().StringVar(&reportDescription, "description", "", "What happened")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Date the incident occurred (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportPlatforms, "platforms", "", "Comma-separated platforms involved")
	reportCmd.Flags().StringVar(&reportPerpetrator, "perpetrator", "", "Known perpetrator details")
	reportCmd.Flags().StringArrayVar(&reportEvidence, "evidence", nil, "Evidence file to attach (repeatable)")
	reportCmd.Flags().BoolVar(&reportSubmit, "submit", false, "Submit the report after analysis")
	reportCmd.MarkFlagRequired("title")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger := log.New(cmd.ErrOrStderr(), "[report] ", log.LstdFlags)

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	if err := st.SetupAuditTables(); err != nil {
		return fmt.Errorf("failed to set up audit tables: %w", err)
	}

	catalog, _, err := loadCatalog(config, logger)
	if err != nil {
		return err
	}
	provider, err := buildAssistProvider(config, catalog, logger)
	if err != nil {
		return err
	}
	submitter, err := buildSubmitter(config, logger)
	if err != nil {
		return err
	}

	ws := incident.NewWorkspace(incident.WizardSeed{
		IncidentType:      incident.IncidentType(strings.ToLower(reportType)),
		Title:             reportTitle,
		Description:       reportDescription,
		DateOccurred:      reportDate,
		PlatformsInvolved: reportPlatforms,
		PerpetratorInfo:   reportPerpetrator,
	}, incident.Options{
		Analyzer:  provider,
		Responder: provider,
		Submitter: submitter,
		Logger:    logger,
		// The CLI waits for each stage, no pacing needed.
		Delays: incident.Delays{},
	})
	defer ws.Close()

	if len(reportEvidence) > 0 {
		files := make([]incident.EvidenceFile, 0, len(reportEvidence))
		for _, path := range reportEvidence {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("evidence file %s: %w", path, err)
			}
			files = append(files, incident.EvidenceFile{
				Name:     filepath.Base(path),
				Size:     info.Size(),
				MIMEType: mime.TypeByExtension(filepath.Ext(path)),
			})
		}
		ws.AddEvidence(files)
		fmt.Fprintf(cmd.OutOrStdout(), "Attached %d evidence file(s)\n", len(files))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Running legal analysis...")
	if err := ws.StartAnalysis(); err != nil {
		return fmt.Errorf("failed to start analysis: %w", err)
	}
	ws.Wait()
	if err := ws.AnalysisErr(); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	draft := ws.Snapshot()
	printLaws(cmd, draft.IdentifiedLaws)

	if reportSubmit {
		// Include every violated law in the report.
		for _, law := range draft.IdentifiedLaws {
			if law.IsViolated {
				ws.ToggleLawIncluded(law.ID, true)
			}
		}
		if !ws.CanSubmit() {
			return fmt.Errorf("report is not ready to submit: attach evidence and ensure at least one violated law is included")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Submitting report...")
		if err := ws.SubmitToPolice(ctx); err != nil {
			return fmt.Errorf("submission failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report submitted, case id: %s\n", ws.ID())
	}

	final := ws.Snapshot()
	if err := st.SaveDraft(ctx, final); err != nil {
		return fmt.Errorf("failed to persist draft: %w", err)
	}
	_ = st.LogDraftAction(ctx, final.ID, "create_draft", "cli", map[string]interface{}{
		"incident_type": string(final.Type),
		"submitted":     reportSubmit,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Draft %s saved (status: %s)\n", final.ID, final.Status)
	return nil
}

func printLaws(cmd *cobra.Command, laws []incident.LawViolation) {
	out := cmd.OutOrStdout()
	if len(laws) == 0 {
		fmt.Fprintln(out, "No candidate law violations identified.")
		return
	}

	violated := 0
	for _, law := range laws {
		if law.IsViolated {
			violated++
		}
	}
	fmt.Fprintf(out, "Identified %d candidate law(s), %d likely violated:\n\n", len(laws), violated)

	for i, law := range laws {
		marker := " "
		if law.IsViolated {
			marker = "!"
		}
		fmt.Fprintf(out, "%d. [%s] %s (%s)\n", i+1, marker, law.Name, law.Section)
		fmt.Fprintf(out, "   Severity: %s  Confidence: %d%%\n", law.Severity, law.Confidence)
		if law.Description != "" {
			fmt.Fprintf(out, "   %s\n", law.Description)
		}
		fmt.Fprintln(out)
	}
}
