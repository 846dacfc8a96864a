package measure

import (
	"time"

	"lightkeeper/internal/engine"
)

// Audit keys extracted from every report. A key the engine did not emit
// reads as 0 rather than failing the run.
const (
	auditFirstContentfulPaint   = "first-contentful-paint"
	auditLargestContentfulPaint = "largest-contentful-paint"
	auditTotalBlockingTime      = "total-blocking-time"
	auditCumulativeLayoutShift  = "cumulative-layout-shift"
	auditSpeedIndex             = "speed-index"
)

// Metrics is one raw measurement sample. Immutable once produced.
type Metrics struct {
	Score                  float64 `json:"score"`
	FirstContentfulPaint   float64 `json:"firstContentfulPaint"`
	LargestContentfulPaint float64 `json:"largestContentfulPaint"`
	TotalBlockingTime      float64 `json:"totalBlockingTime"`
	CumulativeLayoutShift  float64 `json:"cumulativeLayoutShift"`
	SpeedIndex             float64 `json:"speedIndex"`
}

// fromReport normalizes an audit report: score scales to 0 to 100, the five
// named audit values are extracted by fixed key.
func fromReport(r *engine.AuditReport) Metrics {
	return Metrics{
		Score:                  r.Score * 100,
		FirstContentfulPaint:   r.Audits[auditFirstContentfulPaint],
		LargestContentfulPaint: r.Audits[auditLargestContentfulPaint],
		TotalBlockingTime:      r.Audits[auditTotalBlockingTime],
		CumulativeLayoutShift:  r.Audits[auditCumulativeLayoutShift],
		SpeedIndex:             r.Audits[auditSpeedIndex],
	}
}

// Summary is the unit of record for one completed measurement session.
// Written to disk immediately after creation and never mutated.
type Summary struct {
	URL              string    `json:"url"`
	Runs             int       `json:"runs"`
	Timestamp        time.Time `json:"timestamp"`
	OverridesApplied bool      `json:"overridesApplied"`
	Note             string    `json:"note,omitempty"`
	Averages         Metrics   `json:"averages"`
	MinScore         float64   `json:"minScore"`
	MaxScore         float64   `json:"maxScore"`
	RawScores        []float64 `json:"rawScores"`
}

// reduce computes the arithmetic mean of each field, the score spread, and
// the raw score list. The average of an empty sample set is 0 by policy,
// not a divide-by-zero accident.
func reduce(samples []Metrics) (avg Metrics, minScore, maxScore float64, raw []float64) {
	raw = make([]float64, 0, len(samples))
	if len(samples) == 0 {
		return Metrics{}, 0, 0, raw
	}

	for i, s := range samples {
		avg.Score += s.Score
		avg.FirstContentfulPaint += s.FirstContentfulPaint
		avg.LargestContentfulPaint += s.LargestContentfulPaint
		avg.TotalBlockingTime += s.TotalBlockingTime
		avg.CumulativeLayoutShift += s.CumulativeLayoutShift
		avg.SpeedIndex += s.SpeedIndex

		raw = append(raw, s.Score)
		if i == 0 || s.Score < minScore {
			minScore = s.Score
		}
		if i == 0 || s.Score > maxScore {
			maxScore = s.Score
		}
	}

	n := float64(len(samples))
	avg.Score /= n
	avg.FirstContentfulPaint /= n
	avg.LargestContentfulPaint /= n
	avg.TotalBlockingTime /= n
	avg.CumulativeLayoutShift /= n
	avg.SpeedIndex /= n

	return avg, minScore, maxScore, raw
}
