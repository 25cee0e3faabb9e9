package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"index-compare/internal/report"
)

var cleanKeep int

// cleanCmd prunes aged reports and sweeps temp-file leftovers.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune old reports and sweep temp files",
	Long: `Remove timestamped reports beyond the newest N (latest.html is always
kept) and sweep *.tmp leftovers from interrupted writes out of the data
directory.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().IntVar(&cleanKeep, "keep", 0, "Reports to keep; 0 uses the configured value")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	keep := cfg.Output.KeepReports
	if cleanKeep > 0 {
		keep = cleanKeep
	}

	pruned, err := report.Prune(cfg.Output.ReportDir, keep)
	if err != nil {
		return fmt.Errorf("prune reports: %w", err)
	}

	swept, err := sweepTempFiles(cfg.Output.DataDir)
	if err != nil {
		return fmt.Errorf("sweep temp files: %w", err)
	}

	fmt.Printf("Removed %d reports and %d temp files\n", pruned, swept)
	return nil
}

// sweepTempFiles removes *.tmp leftovers that an interrupted atomic write
// left behind in dir.
func sweepTempFiles(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
