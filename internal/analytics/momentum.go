package analytics

import "sort"

// Trend classifications.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"

	trendThreshold = 0.15
)

// MomentumResult is a recency-weighted trend score over weekly sales totals,
// bounded to [-1, 1]. Status is "insufficient_data" with fewer than two
// weeks of sales.
type MomentumResult struct {
	Status string  `json:"status"`
	Score  float64 `json:"score,omitempty"`
	Trend  string  `json:"trend,omitempty"`
	Weeks  int     `json:"weeks"`
}

// Momentum buckets the series into ISO weeks, computes week-over-week
// percent changes, and combines them with linearly increasing weights so
// the most recent weeks dominate. Weeks following a zero-sales week yield
// no usable percent change and are skipped.
func Momentum(series []SalesPoint, windowDays int) MomentumResult {
	series = trimToWindow(series, windowDays)

	weekly := weeklyTotals(series)
	if len(weekly) < 2 {
		return MomentumResult{Status: StatusInsufficientData, Weeks: len(weekly)}
	}

	var changes []float64
	for i := 1; i < len(weekly); i++ {
		prev := weekly[i-1]
		if prev == 0 {
			continue
		}
		changes = append(changes, (weekly[i]-prev)/prev*100)
	}
	if len(changes) == 0 {
		return MomentumResult{Status: StatusInsufficientData, Weeks: len(weekly)}
	}

	n := len(changes)
	weightSum := float64(n*(n+1)) / 2
	var weighted float64
	for i, c := range changes {
		weighted += c * float64(i+1) / weightSum
	}

	score := clip(weighted/100, -1, 1)
	return MomentumResult{
		Status: StatusOK,
		Score:  score,
		Trend:  classifyTrend(score),
		Weeks:  len(weekly),
	}
}

func classifyTrend(score float64) string {
	switch {
	case score > trendThreshold:
		return TrendIncreasing
	case score < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

type isoWeek struct {
	year int
	week int
}

// weeklyTotals returns total quantities per ISO week in chronological order.
func weeklyTotals(series []SalesPoint) []float64 {
	if len(series) == 0 {
		return nil
	}

	byWeek := make(map[isoWeek]float64)
	for _, p := range series {
		y, w := p.Date.ISOWeek()
		byWeek[isoWeek{y, w}] += p.Quantity
	}

	weeks := make([]isoWeek, 0, len(byWeek))
	for k := range byWeek {
		weeks = append(weeks, k)
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].year != weeks[j].year {
			return weeks[i].year < weeks[j].year
		}
		return weeks[i].week < weeks[j].week
	})

	totals := make([]float64, len(weeks))
	for i, k := range weeks {
		totals[i] = byWeek[k]
	}
	return totals
}
