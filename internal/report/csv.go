package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"index-compare/internal/domain"
)

// ExportCSV renders the processed per-date table: every index's close plus
// each target's ratio and rolling-mean columns. Cell conventions match the
// close-series artifact: full float precision, empty cell where undefined.
func (g *Generator) ExportCSV(ctx context.Context) (string, error) {
	series, err := g.closes.GetSeries(ctx)
	if err != nil {
		return "", fmt.Errorf("load close series: %w", err)
	}
	if series.Len() == 0 {
		return "", errors.New("no close data to export")
	}
	series.Fill()

	type targetCols struct {
		code   string
		points map[string]*domain.RatioPoint // by trade date
	}

	var priceCodes []string
	var targets []targetCols
	for _, spec := range g.opts.Specs {
		if _, ok := series.Column(spec.Code); ok {
			priceCodes = append(priceCodes, spec.Code)
		}
		if spec.Benchmark {
			continue
		}
		points, err := g.ratios.GetByIndex(ctx, spec.Code)
		if err != nil {
			return "", fmt.Errorf("load ratio points for %s: %w", spec.Code, err)
		}
		if len(points) == 0 {
			continue
		}
		byDate := make(map[string]*domain.RatioPoint, len(points))
		for _, p := range points {
			byDate[p.TradeDate] = p
		}
		targets = append(targets, targetCols{code: spec.Code, points: byDate})
	}

	header := append([]string{"trade_date"}, priceCodes...)
	for _, t := range targets {
		header = append(header,
			t.code+"_ratio",
			fmt.Sprintf("%s_MA%d", t.code, g.opts.MAWindow))
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for i, date := range series.Dates {
		rec := make([]string, 0, len(header))
		rec = append(rec, date)
		for _, code := range priceCodes {
			col, _ := series.Column(code)
			rec = append(rec, exportFloat(col[i]))
		}
		for _, t := range targets {
			p, ok := t.points[date]
			if !ok {
				rec = append(rec, "", "")
				continue
			}
			rec = append(rec, exportFloat(p.Ratio))
			if p.RollingMA != nil {
				rec = append(rec, exportFloat(*p.RollingMA))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write row %s: %w", date, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}

func exportFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
