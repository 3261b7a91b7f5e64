package sales

import "time"

// PriceObservation is one charged unit price seen in the order history.
// Observations are the raw material for deriving price change events; the
// price actually charged is authoritative over any price ledger.
type PriceObservation struct {
	ItemID    int64
	UnitPrice float64
	SeenAt    time.Time
}

// Summary aggregates a merchant's order activity over a lookback window.
type Summary struct {
	OrderCount int64      `json:"order_count"`
	Revenue    float64    `json:"revenue"`
	FirstOrder *time.Time `json:"first_order,omitempty"`
	LastOrder  *time.Time `json:"last_order,omitempty"`
}
