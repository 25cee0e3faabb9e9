// Package file persists the pipeline artifacts as flat files in a data
// directory, matching the layout the CLI exposes to users:
//
//	index_data.csv      aligned close series
//	ratio_points.csv    per-target ratio and rolling-mean columns
//	indicators.json     indicator snapshots
//	conclusions.json    analysis conclusions
//	runs.json           recent pipeline runs
//
// The report stage additionally exports processed_data.csv (closes plus the
// ratio columns) into the same directory; that file is a regenerated export,
// not a store.
//
// Values round-trip losslessly: floats are written with minimal notation and
// NaN cells as empty strings, the way spreadsheet tools expect.
package file

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact file names inside the data directory.
const (
	closesFile      = "index_data.csv"
	ratioPointsFile = "ratio_points.csv"
	indicatorsFile  = "indicators.json"
	conclusionsFile = "conclusions.json"
	runsFile        = "runs.json"
)

// dateColumn heads every CSV artifact.
const dateColumn = "trade_date"

// maxPersistedRuns caps runs.json so it cannot grow without bound.
const maxPersistedRuns = 100

// formatFloat renders a value for CSV; NaN becomes the empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseFloat reads a CSV cell; the empty cell becomes NaN.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", s, err)
	}
	return v, nil
}

// ensureDir creates the parent directory of path if needed.
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// writeAtomic writes data through a sibling *.tmp file and renames it into
// place, so a crash mid-write never truncates the artifact. Orphaned *.tmp
// files are swept by `indexcompare clean`.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
