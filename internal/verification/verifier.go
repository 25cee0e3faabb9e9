// Package verification checks that persisted indicator snapshots still match
// a fresh recomputation from the persisted close series. The calculator is
// deterministic, so a divergence means the artifacts were edited by hand,
// the analysis configuration changed since the last calc, or the close
// history was rewritten.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"index-compare/internal/config"
	"index-compare/internal/domain"
	"index-compare/internal/indicators"
	"index-compare/internal/storage"
)

// FloatTolerance bounds float comparisons. Stored and recomputed values pass
// through identical rounding, so the tolerance only absorbs representation
// noise.
const FloatTolerance = 1e-7

// FieldDivergence is one mismatch between a stored and a recomputed value.
type FieldDivergence struct {
	Field    string
	Stored   interface{}
	Computed interface{}
}

// Result is the verification outcome for one target index.
type Result struct {
	IndexCode   string
	TradeDate   string
	Match       bool
	Divergences []FieldDivergence
}

// Report aggregates verification results across all targets.
type Report struct {
	TotalTargets     int
	MatchedTargets   int
	DivergentTargets int
	Results          []Result
}

func (r *Report) add(res Result) {
	r.TotalTargets++
	if res.Match {
		r.MatchedTargets++
	} else {
		r.DivergentTargets++
	}
	r.Results = append(r.Results, res)
}

// Verifier recomputes indicators from the persisted close series and
// compares them with the persisted snapshots.
type Verifier struct {
	closes     storage.DailyCloseStore
	indicators storage.IndicatorStore
	cfg        config.Config
	logger     zerolog.Logger
}

// NewVerifier creates a verifier over the given stores. A zero Logger
// disables logging.
func NewVerifier(closes storage.DailyCloseStore, indicators storage.IndicatorStore, cfg config.Config, logger zerolog.Logger) *Verifier {
	return &Verifier{closes: closes, indicators: indicators, cfg: cfg, logger: logger}
}

// VerifyAll recomputes every target and compares field by field against the
// stored snapshots. A recomputed target without a stored snapshot, and a
// stored snapshot no recomputation produced, both count as divergent.
func (v *Verifier) VerifyAll(ctx context.Context) (*Report, error) {
	series, err := v.closes.GetSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load close series: %w", err)
	}
	if series.Len() == 0 {
		return nil, errors.New("no close data; run fetch first")
	}
	series.Fill()

	calc := indicators.NewCalculator(indicators.Options{
		MAWindow:       v.cfg.Analysis.MAWindow,
		TrendWindows:   v.cfg.Analysis.TrendWindows,
		PercentileBase: v.cfg.Analysis.PercentileBase,
		RecentDays:     v.cfg.Analysis.RecentDays,
	}, v.logger)
	computed, err := calc.Compute(series, v.cfg.IndexSpecs())
	if err != nil {
		return nil, fmt.Errorf("recompute indicators: %w", err)
	}

	stored, err := v.indicators.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if len(stored) == 0 {
		return nil, errors.New("no indicator snapshots; run calc first")
	}
	byCode := make(map[string]*domain.IndicatorSnapshot, len(stored))
	for _, snap := range stored {
		byCode[snap.IndexCode] = snap
	}

	report := &Report{}
	for _, target := range computed.Targets {
		res := Result{IndexCode: target.Spec.Code, TradeDate: computed.TradeDate}
		if snap, ok := byCode[target.Spec.Code]; ok {
			res.Divergences = CompareSnapshots(snap, target.Snapshot)
			delete(byCode, target.Spec.Code)
		} else {
			res.Divergences = []FieldDivergence{{
				Field:    "snapshot",
				Stored:   nil,
				Computed: target.Spec.Code,
			}}
		}
		res.Match = len(res.Divergences) == 0
		report.add(res)
	}

	// Leftover stored snapshots belong to targets the current config no
	// longer computes.
	stale := make([]string, 0, len(byCode))
	for code := range byCode {
		stale = append(stale, code)
	}
	sort.Strings(stale)
	for _, code := range stale {
		report.add(Result{
			IndexCode: code,
			TradeDate: byCode[code].TradeDate,
			Divergences: []FieldDivergence{{
				Field:    "snapshot",
				Stored:   code,
				Computed: nil,
			}},
		})
	}

	return report, nil
}

// CompareSnapshots compares a stored snapshot with a recomputed one and
// returns the divergent fields. Floats compare within FloatTolerance.
func CompareSnapshots(stored, computed *domain.IndicatorSnapshot) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.IndexName != computed.IndexName {
		divergences = append(divergences, FieldDivergence{
			Field:    "index_name",
			Stored:   stored.IndexName,
			Computed: computed.IndexName,
		})
	}

	if stored.TradeDate != computed.TradeDate {
		divergences = append(divergences, FieldDivergence{
			Field:    "trade_date",
			Stored:   stored.TradeDate,
			Computed: computed.TradeDate,
		})
	}

	if !floatEquals(stored.CurrentRatio, computed.CurrentRatio) {
		divergences = append(divergences, FieldDivergence{
			Field:    "current_ratio",
			Stored:   stored.CurrentRatio,
			Computed: computed.CurrentRatio,
		})
	}

	if !floatPtrEquals(stored.CurrentMA, computed.CurrentMA) {
		divergences = append(divergences, FieldDivergence{
			Field:    "current_ma",
			Stored:   ptrValue(stored.CurrentMA),
			Computed: ptrValue(computed.CurrentMA),
		})
	}

	if !floatEquals(stored.Deviation, computed.Deviation) {
		divergences = append(divergences, FieldDivergence{
			Field:    "deviation",
			Stored:   stored.Deviation,
			Computed: computed.Deviation,
		})
	}

	if !floatEquals(stored.Percentile, computed.Percentile) {
		divergences = append(divergences, FieldDivergence{
			Field:    "percentile",
			Stored:   stored.Percentile,
			Computed: computed.Percentile,
		})
	}

	if stored.Trend != computed.Trend {
		divergences = append(divergences, FieldDivergence{
			Field:    "trend",
			Stored:   stored.Trend,
			Computed: computed.Trend,
		})
	}

	if !floatPtrEquals(stored.Change5D, computed.Change5D) {
		divergences = append(divergences, FieldDivergence{
			Field:    "change_5d",
			Stored:   ptrValue(stored.Change5D),
			Computed: ptrValue(computed.Change5D),
		})
	}

	if !floatPtrEquals(stored.Change10D, computed.Change10D) {
		divergences = append(divergences, FieldDivergence{
			Field:    "change_10d",
			Stored:   ptrValue(stored.Change10D),
			Computed: ptrValue(computed.Change10D),
		})
	}

	if !floatPtrEquals(stored.Change20D, computed.Change20D) {
		divergences = append(divergences, FieldDivergence{
			Field:    "change_20d",
			Stored:   ptrValue(stored.Change20D),
			Computed: ptrValue(computed.Change20D),
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance. Both
// nil is equal; one nil is not.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}

// ptrValue unwraps a *float64 for divergence display.
func ptrValue(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
