package analytics

import "math"

// Elasticity estimation constants.
const (
	// elasticityWindowDays is the half-window around each price change used
	// to compare sales volumes.
	elasticityWindowDays = 14
	// minPriceMovePct filters out price changes too small to carry signal.
	minPriceMovePct = 0.01
)

// Price sensitivity classifications.
const (
	SensitivityHigh    = "high"
	SensitivityMedium  = "medium"
	SensitivityLow     = "low"
	SensitivityUnknown = "unknown"
)

// ElasticityResult is the outcome of a price elasticity estimation for one
// item. When Estimated is false no qualifying price change was observed and
// Sensitivity is "unknown".
type ElasticityResult struct {
	Estimated   bool    `json:"estimated"`
	Elasticity  float64 `json:"elasticity,omitempty"`
	Sensitivity string  `json:"sensitivity"`
	Points      int     `json:"points"`
}

// Elasticity estimates price elasticity of demand from observed price
// changes and the item's daily sales series. For each change it compares
// total quantity sold in the 14 days before against the 14 days after;
// changes below a 1% price move, or with zero sales on either side, carry
// no signal and are skipped. The estimate is the mean of the per-change
// point elasticities |%Δsales / %Δprice|.
func Elasticity(changes []PriceChange, series []SalesPoint) ElasticityResult {
	var points []float64

	for _, ch := range changes {
		if ch.OldPrice == 0 {
			continue
		}
		pctPrice := (ch.NewPrice - ch.OldPrice) / ch.OldPrice
		if math.Abs(pctPrice) < minPriceMovePct {
			continue
		}

		at := dayKey(ch.ChangedAt)
		before := quantityInWindow(series, at.AddDate(0, 0, -elasticityWindowDays), at)
		after := quantityInWindow(series, at, at.AddDate(0, 0, elasticityWindowDays))
		if before == 0 || after == 0 {
			continue
		}

		pctSales := (after - before) / before
		points = append(points, math.Abs(pctSales/pctPrice))
	}

	if len(points) == 0 {
		return ElasticityResult{Sensitivity: SensitivityUnknown}
	}

	e := mean(points)
	return ElasticityResult{
		Estimated:   true,
		Elasticity:  e,
		Sensitivity: classifySensitivity(e),
		Points:      len(points),
	}
}

func classifySensitivity(e float64) string {
	switch {
	case e > 1.5:
		return SensitivityHigh
	case e > 0.7:
		return SensitivityMedium
	default:
		return SensitivityLow
	}
}
