package results

import (
	"fmt"

	"lightkeeper/internal/measure"
)

// MetricComparison reports how one averaged metric moved between two runs.
type MetricComparison struct {
	Metric        string  `json:"metric"`
	Before        float64 `json:"before"`
	After         float64 `json:"after"`
	Diff          float64 `json:"diff"`
	PercentChange float64 `json:"percent_change"`
	Improved      bool    `json:"improved"`
}

// Comparison pairs two summaries with their per-metric deltas.
type Comparison struct {
	Before  *measure.Summary   `json:"before"`
	After   *measure.Summary   `json:"after"`
	Metrics []MetricComparison `json:"metrics"`
}

// Compare computes per-metric deltas between two summaries. Score is
// higher-is-better; every timing metric is lower-is-better.
func Compare(before, after *measure.Summary) *Comparison {
	b, a := before.Averages, after.Averages

	metrics := []MetricComparison{
		compareMetric("score", b.Score, a.Score, true),
		compareMetric("first_contentful_paint", b.FirstContentfulPaint, a.FirstContentfulPaint, false),
		compareMetric("largest_contentful_paint", b.LargestContentfulPaint, a.LargestContentfulPaint, false),
		compareMetric("total_blocking_time", b.TotalBlockingTime, a.TotalBlockingTime, false),
		compareMetric("cumulative_layout_shift", b.CumulativeLayoutShift, a.CumulativeLayoutShift, false),
		compareMetric("speed_index", b.SpeedIndex, a.SpeedIndex, false),
	}

	return &Comparison{Before: before, After: after, Metrics: metrics}
}

// CompareByID loads two stored sessions and compares them. Errors name
// which side failed to resolve.
func (s *Store) CompareByID(beforeID, afterID string) (*Comparison, error) {
	before, err := s.Load(beforeID)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	after, err := s.Load(afterID)
	if err != nil {
		return nil, fmt.Errorf("candidate: %w", err)
	}
	return Compare(before, after), nil
}

func compareMetric(name string, before, after float64, higherBetter bool) MetricComparison {
	diff := after - before

	var pct float64
	if before != 0 {
		pct = diff / before * 100
	}

	improved := diff > 0
	if !higherBetter {
		improved = diff < 0
	}

	return MetricComparison{
		Metric:        name,
		Before:        before,
		After:         after,
		Diff:          diff,
		PercentChange: pct,
		Improved:      improved,
	}
}
