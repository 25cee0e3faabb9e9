package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"index-compare/internal/observability"
	"index-compare/internal/pipeline"
)

// serveCmd runs the scheduled-refresh daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled-refresh daemon",
	Long: `Run the pipeline on a cron schedule and expose health, metrics and status
over HTTP. The first refresh starts immediately; later ones follow the
configured cron expression (default: weekdays after market close). A refresh
still running when the next trigger fires is skipped, not queued.

Endpoints:
  /health   liveness probe
  /metrics  Prometheus metrics
  /status   JSON daemon status (last run, refresh count, next schedule)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// server is the serve-mode state shared between the scheduler and the HTTP
// handlers.
type server struct {
	pipe     *pipeline.Pipeline
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	logger   zerolog.Logger
	started  time.Time

	mu         sync.Mutex
	refreshing bool
	refreshes  int
	lastRun    time.Time
	lastStatus string
	lastError  string
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := newBarSource(cfg)
	if err != nil {
		return err
	}

	s := &server{
		pipe: pipeline.New(pipeline.Options{
			Source:      source,
			Closes:      stores.closes,
			Ratios:      stores.ratios,
			Indicators:  stores.indicators,
			Conclusions: stores.conclusions,
			Runs:        stores.runs,
			Config:      cfg,
			Logger:      logger,
		}),
		schedule: cfg.Serve.RefreshCron,
		logger:   logger,
		started:  time.Now(),
	}

	c := cron.New()
	entry, err := c.AddFunc(cfg.Serve.RefreshCron, func() { s.refresh(ctx) })
	if err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", cfg.Serve.RefreshCron, err)
	}
	s.cron = c
	s.entry = entry

	go s.startHTTPServer(cfg.Serve.Addr)
	go s.tickUptime(ctx)

	// First signal cancels the context and waits for a running refresh;
	// a second signal, or a 30s stall, forces exit.
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case <-sigCh:
			logger.Warn().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Info().
		Str("addr", cfg.Serve.Addr).
		Str("schedule", cfg.Serve.RefreshCron).
		Msg("serve started")

	// The first refresh runs immediately; later ones follow the schedule.
	s.refresh(ctx)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	close(done)

	logger.Info().Msg("shutdown complete")
	return nil
}

// refresh runs one full pipeline pass. A pass that overlaps a still-running
// one is skipped, not queued.
func (s *server) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		s.logger.Warn().Msg("previous refresh still running, skipping")
		observability.RecordScheduleSkip()
		return
	}
	s.refreshing = true
	s.mu.Unlock()

	// Run logs its own outcome under a run_id; the record carries the error.
	run, _ := s.pipe.Run(ctx)

	s.mu.Lock()
	s.refreshing = false
	s.refreshes++
	s.lastRun = time.Now()
	s.lastStatus = string(run.Status)
	if run.Error != nil {
		s.lastError = *run.Error
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()
}

// tickUptime feeds the uptime counter once per second until shutdown.
func (s *server) tickUptime(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.TickUptime()
		}
	}
}

// startHTTPServer serves health, metrics and status.
func (s *server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("http server error")
	}
}

// StatusResponse is the JSON document served at /status.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Schedule   string    `json:"schedule"`
	NextRun    time.Time `json:"next_run"`
	Refreshing bool      `json:"refreshing"`
	Refreshes  int       `json:"refreshes"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).String(),
		Schedule:   s.schedule,
		NextRun:    s.cron.Entry(s.entry).Next,
		Refreshing: s.refreshing,
		Refreshes:  s.refreshes,
		LastRun:    s.lastRun,
		LastStatus: s.lastStatus,
		LastError:  s.lastError,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
