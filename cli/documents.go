package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"contractlens/export"
	"contractlens/llm"
	"contractlens/storage"
	"contractlens/tui"
)

var (
	findingsJSON bool

	reviewDecision string
	reviewComment  string
	reviewUser     string

	exportOutput string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List documents and their processing status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			docs, err := a.store.List(ctx)
			if err != nil {
				return err
			}
			printDocuments(cmd, docs)
			return nil
		})
	},
}

var extractionCmd = &cobra.Command{
	Use:   "extraction <doc-id>",
	Short: "Print a document's extracted fields as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := a.service.Document(ctx, args[0])
			if err != nil {
				return err
			}
			if doc.Extraction == nil {
				return llm.Precondition(fmt.Sprintf("Document %s has not been extracted (status %s)", doc.ID, doc.Status), nil)
			}
			return printJSON(cmd, doc.Extraction)
		})
	},
}

var findingsCmd = &cobra.Command{
	Use:   "findings <doc-id>",
	Short: "Show the findings recorded for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := a.service.Document(ctx, args[0])
			if err != nil {
				return err
			}
			findings, err := a.service.Findings(ctx, doc.ID)
			if err != nil {
				return err
			}
			if findingsJSON {
				return printFindings(cmd, findings, true)
			}

			report, err := tui.RenderFindings(doc, findings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <finding-id>",
	Short: "Approve or override a finding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid finding id %q", args[0])
		}
		decision, err := storage.ParseDecision(reviewDecision)
		if err != nil {
			return err
		}
		user := reviewUser
		if user == "" {
			user = os.Getenv("USER")
		}
		if user == "" {
			user = "cli"
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			rd, err := a.store.Findings().Review(ctx, id, decision, reviewComment, user)
			if err != nil {
				return err
			}
			a.logger.Info("review.recorded", "finding_id", rd.FindingID, "decision", rd.Decision, "user", rd.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Finding %d marked %s by %s\n", rd.FindingID, rd.Decision.FindingStatus(), rd.UserID)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <doc-id>",
	Short: "Export a document's findings to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			findings, err := a.service.Findings(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := export.FindingsXLSX(ctx, findings)
			if err != nil {
				return err
			}

			out := exportOutput
			if out == "" {
				out = args[0] + "-findings.xlsx"
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d findings to %s\n", len(findings), out)
			return nil
		})
	},
}

func init() {
	findingsCmd.Flags().BoolVar(&findingsJSON, "json", false, "print findings as JSON")

	reviewCmd.Flags().StringVarP(&reviewDecision, "decision", "d", "", "APPROVE or OVERRIDE")
	reviewCmd.Flags().StringVarP(&reviewComment, "comment", "m", "", "reviewer comment")
	reviewCmd.Flags().StringVarP(&reviewUser, "user", "u", "", "reviewer id (default $USER)")
	_ = reviewCmd.MarkFlagRequired("decision")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default <doc-id>-findings.xlsx)")

	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(extractionCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(exportCmd)
}
