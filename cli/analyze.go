package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	compareJSON bool
	riskJSON    bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <invoice-doc-id>",
	Short: "Compare an invoice against its vendor's contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			findings, err := a.service.CompareInvoice(ctx, args[0])
			if err != nil {
				return err
			}
			return printFindings(cmd, findings, compareJSON)
		})
	},
}

var riskCmd = &cobra.Command{
	Use:   "risk <contract-doc-id>",
	Short: "Score a contract's clauses against the standard clause library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			findings, err := a.service.AssessRisk(ctx, args[0])
			if err != nil {
				return err
			}
			return printFindings(cmd, findings, riskJSON)
		})
	},
}

var seedClausesCmd = &cobra.Command{
	Use:   "seed-clauses",
	Short: "Index the standard clause library used by risk assessment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.service.SeedClauseLibrary(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d standard clauses\n", n)
			return nil
		})
	},
}

func init() {
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "print findings as JSON")
	riskCmd.Flags().BoolVar(&riskJSON, "json", false, "print findings as JSON")

	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(seedClausesCmd)
}
