// Package recommendations owns the pricing advice produced by a run: the
// persisted records, the priority ordering, and the compile step that merges
// stage outputs into one advisory set.
package recommendations

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Recommendation is one piece of pricing advice. ItemID is zero for generic
// advice not bound to a specific item.
type Recommendation struct {
	ID               uuid.UUID `json:"id"`
	BatchID          uuid.UUID `json:"batch_id"`
	UserID           uuid.UUID `json:"user_id"`
	ItemID           int64     `json:"item_id,omitempty"`
	CurrentPrice     float64   `json:"current_price,omitempty"`
	RecommendedPrice float64   `json:"recommended_price,omitempty"`
	Confidence       float64   `json:"confidence"`
	Priority         string    `json:"priority"`
	Rationale        string    `json:"rationale"`
	ReevaluationDate time.Time `json:"reevaluation_date"`
	CreatedAt        time.Time `json:"created_at"`
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Compile merges recommendations from all stages into the final advisory
// set: item duplicates collapse to the strongest entry, the set sorts high
// priority first, and an empty set is replaced by generic fallback advice so
// a completed run never comes back with nothing to say.
func Compile(batchID, userID uuid.UUID, now time.Time, groups ...[]Recommendation) []Recommendation {
	var merged []Recommendation
	for _, g := range groups {
		merged = append(merged, g...)
	}

	merged = dedupe(merged)
	sortByPriority(merged)

	if len(merged) == 0 {
		merged = genericFallback(batchID, userID, now)
	}

	for i := range merged {
		merged[i].BatchID = batchID
		merged[i].UserID = userID
		if merged[i].ID == uuid.Nil {
			merged[i].ID = uuid.New()
		}
		if merged[i].CreatedAt.IsZero() {
			merged[i].CreatedAt = now
		}
		if merged[i].ReevaluationDate.IsZero() {
			merged[i].ReevaluationDate = now.AddDate(0, 0, reevalDays(merged[i].Priority))
		}
	}
	return merged
}

// reevalDays is how long advice of a given priority stays fresh before it
// should be revisited.
func reevalDays(priority string) int {
	switch priority {
	case PriorityHigh:
		return 7
	case PriorityMedium:
		return 14
	}
	return 30
}

// dedupe keeps one recommendation per item, preferring higher priority, then
// higher confidence. Generic entries (ItemID zero) are never collapsed.
func dedupe(recs []Recommendation) []Recommendation {
	byItem := make(map[int64]int)
	out := recs[:0]
	for _, rec := range recs {
		if rec.ItemID == 0 {
			out = append(out, rec)
			continue
		}
		if idx, seen := byItem[rec.ItemID]; seen {
			if better(rec, out[idx]) {
				out[idx] = rec
			}
			continue
		}
		byItem[rec.ItemID] = len(out)
		out = append(out, rec)
	}
	return out
}

func better(a, b Recommendation) bool {
	ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
	if ra != rb {
		return ra < rb
	}
	return a.Confidence > b.Confidence
}

func sortByPriority(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := priorityRank(recs[i].Priority), priorityRank(recs[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return recs[i].Confidence > recs[j].Confidence
	})
}

// genericFallback is the advisory set returned when no stage produced a
// concrete recommendation, typically on thin data.
func genericFallback(batchID, userID uuid.UUID, now time.Time) []Recommendation {
	reeval := now.AddDate(0, 0, 14)
	base := Recommendation{
		BatchID:          batchID,
		UserID:           userID,
		Confidence:       0.3,
		Priority:         PriorityLow,
		ReevaluationDate: reeval,
		CreatedAt:        now,
	}

	review := base
	review.Rationale = "Not enough recent sales history for item-level pricing analysis. Review prices on your top sellers manually and re-run once more orders have accumulated."

	competitors := base
	competitors.Rationale = "Competitor price data is sparse. Adding competitor observations will unlock market-position recommendations."

	return []Recommendation{review, competitors}
}
