package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"index-compare/internal/domain"
	"index-compare/internal/report"
)

var queryIndex string

// queryCmd renders the persisted analysis without refetching or recomputing.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Render the persisted analysis as a terminal table",
	Long: `Render stored indicator snapshots and conclusions as a terminal table.
Nothing is fetched or recomputed; the command fails with a hint when no
analysis has been persisted yet. Use --index to restrict output to one
target.`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryIndex, "index", "", "Only show this index code (e.g. 000905.SH)")
}

func runQuery(cmd *cobra.Command, args []string) error {
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

	snapshots, err := stores.indicators.GetLatest(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	conclusions, err := stores.conclusions.GetLatest(ctx)
	if err != nil {
		return fmt.Errorf("load conclusions: %w", err)
	}

	if queryIndex != "" {
		snapshots = filterSnapshots(snapshots, queryIndex)
		conclusions = filterConclusions(conclusions, queryIndex)
		if len(snapshots) == 0 && len(conclusions) == 0 {
			return fmt.Errorf("nothing stored for %s; run 'indexcompare run' first", queryIndex)
		}
	}
	if len(snapshots) == 0 && len(conclusions) == 0 {
		return fmt.Errorf("no analysis artifacts found; run 'indexcompare run' first")
	}

	fmt.Print(report.RenderText(snapshots, conclusions))
	return nil
}

func filterSnapshots(snapshots []*domain.IndicatorSnapshot, indexCode string) []*domain.IndicatorSnapshot {
	var out []*domain.IndicatorSnapshot
	for _, s := range snapshots {
		if s.IndexCode == indexCode {
			out = append(out, s)
		}
	}
	return out
}

func filterConclusions(conclusions []*domain.Conclusion, indexCode string) []*domain.Conclusion {
	var out []*domain.Conclusion
	for _, c := range conclusions {
		if c.IndexCode == indexCode {
			out = append(out, c)
		}
	}
	return out
}
