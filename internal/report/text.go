package report

import (
	"fmt"
	"strings"

	"index-compare/internal/domain"
)

// RenderText renders the latest conclusions as an aligned terminal table
// plus the per-target summary blocks. Built purely from persisted artifacts;
// nothing is refetched or recomputed.
func RenderText(snapshots []*domain.IndicatorSnapshot, conclusions []*domain.Conclusion) string {
	if len(conclusions) == 0 {
		return "no conclusions yet; run the pipeline first\n"
	}

	snapByCode := make(map[string]*domain.IndicatorSnapshot, len(snapshots))
	for _, s := range snapshots {
		snapByCode[s.IndexCode] = s
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Relative valuation through %s\n\n", domain.DisplayDate(conclusions[0].TradeDate)))
	sb.WriteString(fmt.Sprintf("%-10s %-10s %8s %7s %-17s %9s %6s  %s\n",
		"INDEX", "CODE", "RATIO", "PCTL", "TREND", "DEV", "SCORE", "CALL"))
	sb.WriteString(strings.Repeat("-", 92) + "\n")

	for _, c := range conclusions {
		ratio := "n/a"
		if s, ok := snapByCode[c.IndexCode]; ok {
			ratio = fmt.Sprintf("%.4f", s.CurrentRatio)
		}
		sb.WriteString(fmt.Sprintf("%-10s %-10s %8s %6.1f%% %-17s %+8.2f%% %6.2f  %s %s\n",
			c.IndexName,
			c.IndexCode,
			ratio,
			c.Percentile.Value,
			c.Trend.Label,
			c.Deviation.Value,
			c.CompositeScore,
			c.Recommendation.Icon,
			c.Recommendation.Label,
		))
	}

	for _, c := range conclusions {
		sb.WriteString("\n" + strings.Repeat("-", 60) + "\n\n")
		sb.WriteString(c.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}
