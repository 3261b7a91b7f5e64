package analytics

import (
	"math"
	"time"
)

// Anomaly severities. Only deviations worth acting on are recorded, so
// there is no "low".
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly types.
const (
	AnomalyRevenue      = "revenue_anomaly"
	AnomalyQuantityDrop = "quantity_drop"
)

// Anomaly classifications against prior detections.
const (
	ClassificationNew       = "new"
	ClassificationRecurring = "recurring"
	ClassificationWorsening = "worsening"
)

const (
	zScoreHighThreshold   = 3.0
	zScoreMediumThreshold = 2.0

	quantityDropThreshold     = 0.5
	quantityDropHighThreshold = 0.75

	// minDropBaselineDays guards the quantity-drop path against declaring a
	// collapse from a baseline too thin to define normal.
	minDropBaselineDays = 7
)

// Anomaly is a detected deviation of an observed metric from its baseline.
type Anomaly struct {
	Type       string    `json:"type"`
	ItemID     int64     `json:"item_id,omitempty"` // 0 for merchant-level anomalies
	Metric     string    `json:"metric"`
	Expected   Band      `json:"expected"`
	Actual     float64   `json:"actual"`
	ZScore     float64   `json:"z_score,omitempty"`
	DropPct    float64   `json:"drop_pct,omitempty"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// DetectRevenueAnomaly compares value against the baseline series using a
// z-score. A zero-variance baseline yields no anomaly: without spread there
// is no meaningful notion of deviation. |z| > 3 is high severity,
// 2 < |z| <= 3 medium, anything smaller is normal variation.
func DetectRevenueAnomaly(baseline []float64, value float64) (Anomaly, bool) {
	sd := stddevPop(baseline)
	if sd == 0 {
		return Anomaly{}, false
	}

	m := mean(baseline)
	z := (value - m) / sd

	var severity string
	switch {
	case math.Abs(z) > zScoreHighThreshold:
		severity = SeverityHigh
	case math.Abs(z) > zScoreMediumThreshold:
		severity = SeverityMedium
	default:
		return Anomaly{}, false
	}

	return Anomaly{
		Type:     AnomalyRevenue,
		Metric:   "daily_revenue",
		Expected: Band{Low: m - 2*sd, High: m + 2*sd},
		Actual:   value,
		ZScore:   z,
		Severity: severity,
	}, true
}

// DetectQuantityDrop flags an item whose recent average daily quantity fell
// by more than half against its own baseline, independent of the z-score
// path. A drop past 75% is high severity. Baselines shorter than a week
// are not trusted.
func DetectQuantityDrop(recent, baseline []SalesPoint) (Anomaly, bool) {
	if len(baseline) < minDropBaselineDays {
		return Anomaly{}, false
	}

	baseMean := meanDailyQuantity(baseline)
	if baseMean == 0 {
		return Anomaly{}, false
	}
	recentMean := meanDailyQuantity(recent)

	drop := (baseMean - recentMean) / baseMean
	if drop <= quantityDropThreshold {
		return Anomaly{}, false
	}

	severity := SeverityMedium
	if drop > quantityDropHighThreshold {
		severity = SeverityHigh
	}

	return Anomaly{
		Type:     AnomalyQuantityDrop,
		Metric:   "daily_quantity",
		Expected: Band{Low: baseMean, High: baseMean},
		Actual:   recentMean,
		DropPct:  drop * 100,
		Severity: severity,
	}, true
}

// ClassifyAnomaly compares a fresh detection against prior anomalies of the
// same kind. Revenue anomalies match on weekday (a slow Monday recurring
// every Monday is a pattern, not news); item anomalies match on item.
// A match with escalated severity is "worsening", with equal or lower
// severity "recurring", and no match at all is "new".
func ClassifyAnomaly(candidate Anomaly, prior []Anomaly) string {
	var latest *Anomaly
	for i := range prior {
		p := &prior[i]
		if p.Type != candidate.Type {
			continue
		}
		switch candidate.Type {
		case AnomalyRevenue:
			if p.DetectedAt.Weekday() != candidate.DetectedAt.Weekday() {
				continue
			}
		default:
			if p.ItemID != candidate.ItemID {
				continue
			}
		}
		if latest == nil || p.DetectedAt.After(latest.DetectedAt) {
			latest = p
		}
	}

	if latest == nil {
		return ClassificationNew
	}
	if severityRank(candidate.Severity) > severityRank(latest.Severity) {
		return ClassificationWorsening
	}
	return ClassificationRecurring
}

func severityRank(s string) int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

func meanDailyQuantity(series []SalesPoint) float64 {
	if len(series) == 0 {
		return 0
	}
	var total float64
	for _, p := range series {
		total += p.Quantity
	}
	return total / float64(len(series))
}
