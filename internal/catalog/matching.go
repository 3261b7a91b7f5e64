package catalog

import "strings"

// MatchCompetitors pairs our items with competitor observations of the same
// product, matched on normalized names. Per (item, competitor) only the
// most recent observation counts. Observations that match nothing in the
// catalog are dropped.
func MatchCompetitors(items []Item, observations []CompetitorItem) []CompetitorMatch {
	if len(items) == 0 || len(observations) == 0 {
		return nil
	}

	byName := make(map[string]Item, len(items))
	for _, it := range items {
		byName[normalizeName(it.Name)] = it
	}

	type key struct {
		itemID     int64
		competitor string
	}
	latest := make(map[key]CompetitorMatch)

	for _, obs := range observations {
		it, ok := byName[normalizeName(obs.ItemName)]
		if !ok {
			continue
		}
		k := key{it.ID, obs.Competitor}
		if prev, seen := latest[k]; seen && !obs.ObservedAt.After(prev.ObservedAt) {
			continue
		}

		m := CompetitorMatch{
			ItemID:     it.ID,
			ItemName:   it.Name,
			OurPrice:   it.CurrentPrice,
			Competitor: obs.Competitor,
			TheirPrice: obs.Price,
			ObservedAt: obs.ObservedAt,
		}
		if obs.Price != 0 {
			m.DeltaPct = (it.CurrentPrice - obs.Price) / obs.Price * 100
		}
		latest[k] = m
	}

	out := make([]CompetitorMatch, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	return out
}

// normalizeName lowercases, trims and collapses whitespace so "Flat White "
// and "flat  white" match.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
