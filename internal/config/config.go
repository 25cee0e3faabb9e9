// Package config loads and validates the static JSON configuration document.
// The file is decoded over the defaults once per run and never mutated;
// secrets (the API token, storage DSNs) come from the environment, not the
// file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"index-compare/internal/domain"
)

// IndexConfig declares one index to acquire and analyze.
type IndexConfig struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Benchmark bool   `json:"benchmark"`
	Optional  bool   `json:"optional"`
}

// APIConfig controls the market-data client and the fetch retry policy.
type APIConfig struct {
	BaseURL          string `json:"base_url" validate:"required,url"`
	StartDate        string `json:"start_date" validate:"required,len=8,numeric"`
	RetryTimes       int    `json:"retry_times" validate:"min=0,max=10"`
	RetryIntervalSec int    `json:"retry_interval_sec" validate:"min=0"`
	TimeoutSec       int    `json:"timeout_sec" validate:"min=1"`
	RateLimitPerMin  int    `json:"rate_limit_per_min" validate:"min=1"`
}

// AnalysisConfig controls the indicator calculator.
type AnalysisConfig struct {
	MAWindow       int    `json:"ma_window" validate:"min=2"`
	TrendWindows   []int  `json:"trend_windows" validate:"required,min=1,dive,min=1"`
	PercentileBase string `json:"percentile_base" validate:"oneof=all_history recent"`
	RecentDays     int    `json:"recent_days" validate:"min=2"`
}

// PercentileLevels are the four cut points of the valuation bands, in
// ascending order on the 0-100 percentile scale.
type PercentileLevels struct {
	ExtremeLow  float64 `json:"extreme_low" validate:"gte=0,lte=100"`
	Low         float64 `json:"low" validate:"gtfield=ExtremeLow,lte=100"`
	High        float64 `json:"high" validate:"gtfield=Low,lte=100"`
	ExtremeHigh float64 `json:"extreme_high" validate:"gtfield=High,lte=100"`
}

// OutputConfig locates the artifact and report directories.
type OutputConfig struct {
	DataDir     string `json:"data_dir" validate:"required"`
	ReportDir   string `json:"report_dir" validate:"required"`
	KeepReports int    `json:"keep_reports" validate:"min=1"`
}

// StorageConfig selects the persistence backend. DSNs may also be supplied
// via POSTGRES_DSN / CLICKHOUSE_DSN.
type StorageConfig struct {
	Backend       string `json:"backend" validate:"oneof=file memory postgres"`
	PostgresDSN   string `json:"postgres_dsn"`
	ClickHouseDSN string `json:"clickhouse_dsn"`
}

// ServeConfig controls the scheduled-refresh daemon.
type ServeConfig struct {
	Addr        string `json:"addr" validate:"required"`
	RefreshCron string `json:"refresh_cron" validate:"required"`
}

// Config is the full run configuration.
type Config struct {
	Indices  []IndexConfig    `json:"indices" validate:"required,min=2,dive"`
	API      APIConfig        `json:"api"`
	Analysis AnalysisConfig   `json:"analysis"`
	Levels   PercentileLevels `json:"percentile_levels"`
	Output   OutputConfig     `json:"output"`
	Storage  StorageConfig    `json:"storage"`
	Serve    ServeConfig      `json:"serve"`
}

// Default returns the standard configuration: CSI 300 benchmark, CSI
// 500/1000/A500 targets, 30-day window, {5,10,20} trend windows, full-history
// percentile with a 250-session trailing option, 10/30/70/90 bands.
func Default() Config {
	return Config{
		Indices: []IndexConfig{
			{Code: "000300.SH", Name: "CSI 300", Benchmark: true},
			{Code: "000905.SH", Name: "CSI 500"},
			{Code: "000852.SH", Name: "CSI 1000"},
			{Code: "000510.SH", Name: "CSI A500", Optional: true},
		},
		API: APIConfig{
			BaseURL:          "https://api.tushare.pro",
			StartDate:        "20150101",
			RetryTimes:       3,
			RetryIntervalSec: 5,
			TimeoutSec:       30,
			RateLimitPerMin:  120,
		},
		Analysis: AnalysisConfig{
			MAWindow:       30,
			TrendWindows:   []int{5, 10, 20},
			PercentileBase: "all_history",
			RecentDays:     250,
		},
		Levels: PercentileLevels{
			ExtremeLow:  10,
			Low:         30,
			High:        70,
			ExtremeHigh: 90,
		},
		Output: OutputConfig{
			DataDir:     "data",
			ReportDir:   "reports",
			KeepReports: 10,
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Serve: ServeConfig{
			Addr:        ":9090",
			RefreshCron: "0 18 * * 1-5",
		},
	}
}

// Load reads the JSON document at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment overrides for connection secrets.
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		cfg.Storage.ClickHouseDSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field invariants the tag
// language cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	benchmarks := 0
	seen := make(map[string]bool)
	for _, idx := range c.Indices {
		if idx.Benchmark {
			benchmarks++
		}
		if idx.Benchmark && idx.Optional {
			return fmt.Errorf("validate config: benchmark %s cannot be optional", idx.Code)
		}
		if seen[idx.Code] {
			return fmt.Errorf("validate config: duplicate index code %s", idx.Code)
		}
		seen[idx.Code] = true
	}
	if benchmarks != 1 {
		return fmt.Errorf("validate config: exactly one benchmark index required, got %d", benchmarks)
	}

	if !domain.ValidTradeDate(c.API.StartDate) {
		return fmt.Errorf("validate config: start_date %q is not YYYYMMDD", c.API.StartDate)
	}
	return nil
}

// Benchmark returns the benchmark index.
func (c *Config) Benchmark() IndexConfig {
	for _, idx := range c.Indices {
		if idx.Benchmark {
			return idx
		}
	}
	return IndexConfig{}
}

// Targets returns the non-benchmark indices in config order.
func (c *Config) Targets() []IndexConfig {
	targets := make([]IndexConfig, 0, len(c.Indices))
	for _, idx := range c.Indices {
		if !idx.Benchmark {
			targets = append(targets, idx)
		}
	}
	return targets
}

// IndexSpecs converts the configured indices to domain specs in config order.
func (c *Config) IndexSpecs() []domain.IndexSpec {
	specs := make([]domain.IndexSpec, 0, len(c.Indices))
	for _, idx := range c.Indices {
		specs = append(specs, domain.IndexSpec{
			Code:      idx.Code,
			Name:      idx.Name,
			Benchmark: idx.Benchmark,
			Optional:  idx.Optional,
		})
	}
	return specs
}

// Token resolves the market-data API token: process environment first, then
// a .env file in the working directory. Empty means unauthenticated.
func Token() string {
	if tok := os.Getenv("TUSHARE_TOKEN"); tok != "" {
		return tok
	}
	// Loads .env without overriding existing variables; missing file is fine.
	_ = godotenv.Load()
	return os.Getenv("TUSHARE_TOKEN")
}
