package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"index-compare/internal/verification"
)

// verifyCmd checks persisted snapshots against a fresh recomputation.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify persisted snapshots against a recomputation",
	Long: `Recompute the indicators from the persisted close series and compare them
field by field with the persisted snapshots. The calculator is deterministic,
so any divergence means the artifacts were edited, the analysis configuration
changed since the last calc, or the close history was rewritten.

Exits nonzero when any target diverges.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	verifier := verification.NewVerifier(stores.closes, stores.indicators, cfg, newLogger())
	report, err := verifier.VerifyAll(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Verified %d targets: %d matched, %d divergent\n",
		report.TotalTargets, report.MatchedTargets, report.DivergentTargets)
	for _, res := range report.Results {
		if res.Match {
			continue
		}
		fmt.Printf("  %s (%s):\n", res.IndexCode, res.TradeDate)
		for _, d := range res.Divergences {
			fmt.Printf("    %s: stored %v, computed %v\n", d.Field, d.Stored, d.Computed)
		}
	}

	if report.DivergentTargets > 0 {
		return fmt.Errorf("%d of %d targets diverged", report.DivergentTargets, report.TotalTargets)
	}
	return nil
}
