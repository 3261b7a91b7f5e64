package analytics

import (
	"math"
	"sort"
	"time"
)

// Item relationship classifications.
const (
	RelationshipComplementary = "complementary"
	RelationshipSubstitute    = "substitute"
)

// ItemCorrelation relates a candidate item's demand to the target item's.
// Positive correlation means the items sell together (complementary);
// negative means one displaces the other (substitute).
type ItemCorrelation struct {
	ItemID       int64   `json:"item_id"`
	Coefficient  float64 `json:"coefficient"`
	Relationship string  `json:"relationship"`
	OverlapDays  int     `json:"overlap_days"`
}

// Correlations computes Pearson correlations between the target item's daily
// quantities and each candidate's, using only dates present in both series.
// Candidates with fewer than minOverlapDays shared dates or |r| below
// threshold are dropped. Results are sorted by |r| descending.
func Correlations(target []SalesPoint, candidates map[int64][]SalesPoint, minOverlapDays int, threshold float64) []ItemCorrelation {
	if minOverlapDays < 2 {
		minOverlapDays = 2
	}

	targetByDay := quantitiesByDay(target)
	if len(targetByDay) == 0 {
		return nil
	}

	var out []ItemCorrelation
	for itemID, series := range candidates {
		candByDay := quantitiesByDay(series)

		var xs, ys []float64
		for day, q := range targetByDay {
			if cq, ok := candByDay[day]; ok {
				xs = append(xs, q)
				ys = append(ys, cq)
			}
		}
		if len(xs) < minOverlapDays {
			continue
		}

		r, ok := pearson(xs, ys)
		if !ok || math.Abs(r) < threshold {
			continue
		}

		rel := RelationshipComplementary
		if r < 0 {
			rel = RelationshipSubstitute
		}
		out = append(out, ItemCorrelation{
			ItemID:       itemID,
			Coefficient:  r,
			Relationship: rel,
			OverlapDays:  len(xs),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Coefficient) > math.Abs(out[j].Coefficient)
	})
	return out
}

func quantitiesByDay(series []SalesPoint) map[time.Time]float64 {
	byDay := make(map[time.Time]float64, len(series))
	for _, p := range series {
		byDay[dayKey(p.Date)] += p.Quantity
	}
	return byDay
}
