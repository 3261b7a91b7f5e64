package sales

import (
	"math"
	"sort"

	"github.com/pricewise-ai/pricewise/internal/analytics"
)

// priceEpsilon absorbs float drift from numeric casts; charged prices only
// differ at cent granularity.
const priceEpsilon = 1e-6

// PriceChanges derives price change events per item from charged unit
// prices. Observations are ordered by time per item, consecutive duplicate
// prices are collapsed, and each remaining transition becomes one event.
// The first observation of an item sets its baseline and emits nothing.
func PriceChanges(obs []PriceObservation) map[int64][]analytics.PriceChange {
	if len(obs) == 0 {
		return nil
	}

	byItem := make(map[int64][]PriceObservation)
	for _, o := range obs {
		byItem[o.ItemID] = append(byItem[o.ItemID], o)
	}

	changes := make(map[int64][]analytics.PriceChange, len(byItem))
	for itemID, seq := range byItem {
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].SeenAt.Before(seq[j].SeenAt) })

		prev := seq[0].UnitPrice
		for _, o := range seq[1:] {
			if math.Abs(o.UnitPrice-prev) <= priceEpsilon {
				continue
			}
			changes[itemID] = append(changes[itemID], analytics.PriceChange{
				ItemID:    itemID,
				OldPrice:  prev,
				NewPrice:  o.UnitPrice,
				ChangedAt: o.SeenAt,
			})
			prev = o.UnitPrice
		}
	}
	return changes
}
