package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"index-compare/internal/config"
	"index-compare/internal/fetch"
	"index-compare/internal/pipeline"
	"index-compare/internal/tushare"
)

var csvPath string

// runCmd implements 'indexcompare run': the full batch.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch, calc, analyze, report",
	Long: `Run all four stages in order against the configured storage backend:

  1. fetch    incremental daily-close acquisition for every configured index
  2. calc     aligned ratio series, rolling mean, percentile/trend/deviation
  3. analyze  valuation classification and allocation recommendation
  4. report   self-contained HTML report plus CSV export

The run is recorded in the run store whichever way it ends.`,
	RunE: runRun,
}

// fetchCmd runs only the acquisition stage.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch daily closes for the configured indices",
	RunE:  runFetch,
}

// calcCmd runs only the indicator stage.
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute ratio indicators from persisted closes",
	RunE:  runCalc,
}

// analyzeCmd runs only the classification stage.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify the latest indicators into recommendations",
	RunE:  runAnalyze,
}

// reportCmd renders the report from persisted artifacts.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the HTML report from persisted artifacts",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(calcCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)

	addSourceFlags(runCmd.Flags())
	addSourceFlags(fetchCmd.Flags())
}

// addSourceFlags registers the acquisition-source flags on the commands that
// fetch.
func addSourceFlags(fs *pflag.FlagSet) {
	fs.StringVar(&csvPath, "csv", "", "Read bars from a local CSV file instead of the Tushare API")
}

// newPipeline wires stores and, when the command fetches, a bar source into
// a pipeline. The returned cleanup releases storage connections.
func newPipeline(ctx context.Context, needSource bool) (*pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var source fetch.BarSource
	if needSource {
		source, err = newBarSource(cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	p := pipeline.New(pipeline.Options{
		Source:      source,
		Closes:      stores.closes,
		Ratios:      stores.ratios,
		Indicators:  stores.indicators,
		Conclusions: stores.conclusions,
		Runs:        stores.runs,
		Config:      cfg,
		Logger:      newLogger(),
	})
	return p, cleanup, nil
}

// newBarSource selects the acquisition source: a local CSV when --csv is
// given, the Tushare HTTP API otherwise. The API path requires TUSHARE_TOKEN.
func newBarSource(cfg config.Config) (fetch.BarSource, error) {
	if csvPath != "" {
		return fetch.NewCSVSource(csvPath), nil
	}

	token := config.Token()
	if token == "" {
		return nil, fmt.Errorf("TUSHARE_TOKEN is not set; export it or add it to .env")
	}

	client := tushare.NewHTTPClient(cfg.API.BaseURL, token,
		tushare.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		tushare.WithMaxRetries(cfg.API.RetryTimes),
		tushare.WithRetryDelay(time.Duration(cfg.API.RetryIntervalSec)*time.Second),
		tushare.WithRateLimit(cfg.API.RateLimitPerMin),
	)
	return client, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := newPipeline(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Pipeline completed:\n")
	fmt.Printf("  Indices fetched: %d\n", run.IndicesFetched)
	fmt.Printf("  Rows appended: %d\n", run.RowsAppended)
	fmt.Printf("  Targets analyzed: %d\n", run.TargetsAnalyzed)
	if run.ReportPath != nil {
		fmt.Printf("  Report: %s\n", *run.ReportPath)
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := newPipeline(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := p.Fetch(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Fetch completed (%d sessions in series):\n", res.Series.Len())
	for _, idx := range res.Indices {
		if idx.Rows > 0 {
			fmt.Printf("  %-9s %-10s %d rows (%s..%s)\n", idx.Code, idx.Status, idx.Rows, idx.From, idx.To)
		} else {
			fmt.Printf("  %-9s %-10s\n", idx.Code, idx.Status)
		}
	}
	return nil
}

func runCalc(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := newPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := p.Calc(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Indicators computed for %d targets (trade date %s)\n", len(res.Targets), res.TradeDate)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := newPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	conclusions, err := p.Analyze(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Analysis completed:\n")
	for _, c := range conclusions {
		fmt.Printf("  %s: %s %s (composite %+.2f)\n",
			c.IndexName, c.Recommendation.Icon, c.Recommendation.Label, c.CompositeScore)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := newPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	path, err := p.Report(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Report written to %s\n", path)
	return nil
}
