package analytics

import "time"

// Seasonality detection thresholds.
const (
	minSeasonalityDays = 60

	monthlyDetectThreshold   = 0.2
	quarterlyDetectThreshold = 0.15
	monthlyStrongThreshold   = 0.3
	quarterlyStrongThreshold = 0.25
)

// Seasonality strength classifications.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// Seasonality pattern types.
const (
	PatternMonthly   = "monthly"
	PatternQuarterly = "quarterly"
)

// SeasonalityResult describes periodic demand patterns for one item.
// Variation coefficients are population stddev / mean of average daily
// quantities per calendar month and per quarter.
type SeasonalityResult struct {
	Status             string     `json:"status"`
	Detected           bool       `json:"detected"`
	MonthlyVariation   float64    `json:"monthly_variation,omitempty"`
	QuarterlyVariation float64    `json:"quarterly_variation,omitempty"`
	Strength           string     `json:"strength,omitempty"`
	PatternType        string     `json:"pattern_type,omitempty"`
	PeakMonth          time.Month `json:"peak_month,omitempty"`
	PeakQuarter        int        `json:"peak_quarter,omitempty"`
}

// Seasonality looks for calendar-periodic demand. It needs at least 60 days
// of sales within the window; below that it reports insufficient data
// rather than guessing from noise.
func Seasonality(series []SalesPoint, windowDays int) SeasonalityResult {
	series = trimToWindow(series, windowDays)
	if len(series) < minSeasonalityDays {
		return SeasonalityResult{Status: StatusInsufficientData}
	}

	monthlyAvgs, peakMonth := periodAverages(series, func(t time.Time) int { return int(t.Month()) })
	quarterlyAvgs, peakQuarter := periodAverages(series, func(t time.Time) int { return (int(t.Month())-1)/3 + 1 })

	mv := variationCoefficient(monthlyAvgs)
	qv := variationCoefficient(quarterlyAvgs)

	res := SeasonalityResult{
		Status:             StatusOK,
		Detected:           mv > monthlyDetectThreshold || qv > quarterlyDetectThreshold,
		MonthlyVariation:   mv,
		QuarterlyVariation: qv,
		PeakMonth:          time.Month(peakMonth),
		PeakQuarter:        peakQuarter,
	}

	switch {
	case mv > monthlyStrongThreshold || qv > quarterlyStrongThreshold:
		res.Strength = StrengthStrong
	case res.Detected:
		res.Strength = StrengthModerate
	default:
		res.Strength = StrengthWeak
	}

	if mv >= qv {
		res.PatternType = PatternMonthly
	} else {
		res.PatternType = PatternQuarterly
	}

	return res
}

// periodAverages computes average daily quantity per calendar period
// (month or quarter) and returns the period with the highest average.
func periodAverages(series []SalesPoint, periodOf func(time.Time) int) (avgs []float64, peak int) {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, p := range series {
		k := periodOf(p.Date)
		sums[k] += p.Quantity
		counts[k]++
	}

	var peakAvg float64
	for k, sum := range sums {
		avg := sum / float64(counts[k])
		avgs = append(avgs, avg)
		if peak == 0 || avg > peakAvg {
			peak = k
			peakAvg = avg
		}
	}
	return avgs, peak
}

func variationCoefficient(avgs []float64) float64 {
	m := mean(avgs)
	if m == 0 {
		return 0
	}
	return stddevPop(avgs) / m
}
