// Package analytics implements the statistical estimators behind pricing
// recommendations: price elasticity, sales momentum, seasonality, item
// correlation and anomaly detection. All functions are pure, taking time
// series values and returning results without touching storage. Thin
// input degrades to an explicit insufficient-data state, never to a
// fabricated number.
package analytics

import "time"

// Default analysis windows and thresholds.
const (
	DefaultMomentumWindowDays    = 90
	DefaultSeasonalityWindowDays = 365
	DefaultMinOverlapDays        = 7
	DefaultCorrelationThreshold  = 0.3
)

// Result status values.
const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
)

// SalesPoint is one day of sales for one item. Series are sparse: days
// without sales are simply absent.
type SalesPoint struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
	Revenue  float64   `json:"revenue"`
}

// PriceChange is an observed change in the price actually charged for an
// item, derived from order history. Per item, changes are sorted ascending
// by time with consecutive duplicate prices collapsed.
type PriceChange struct {
	ItemID    int64     `json:"item_id"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	ChangedAt time.Time `json:"changed_at"`
}

// Band is an expected value range. Low == High for point expectations.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// dayKey truncates t to its calendar date in UTC, so points from different
// clock times on the same day land in the same bucket.
func dayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// trimToWindow keeps points within windowDays of the most recent point.
// windowDays <= 0 keeps everything.
func trimToWindow(series []SalesPoint, windowDays int) []SalesPoint {
	if windowDays <= 0 || len(series) == 0 {
		return series
	}
	latest := series[0].Date
	for _, p := range series[1:] {
		if p.Date.After(latest) {
			latest = p.Date
		}
	}
	cutoff := latest.AddDate(0, 0, -windowDays)
	out := make([]SalesPoint, 0, len(series))
	for _, p := range series {
		if !p.Date.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// quantityInWindow sums quantities of points with from <= date < to.
func quantityInWindow(series []SalesPoint, from, to time.Time) float64 {
	var total float64
	for _, p := range series {
		if !p.Date.Before(from) && p.Date.Before(to) {
			total += p.Quantity
		}
	}
	return total
}
