package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Item is one sellable product in a merchant's catalog.
type Item struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	CurrentPrice float64   `json:"current_price"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Margin returns the absolute margin at the current price, or 0 when cost
// is unknown.
func (i Item) Margin() float64 {
	if i.Cost == 0 {
		return 0
	}
	return i.CurrentPrice - i.Cost
}

// MarginPct returns the margin as a fraction of the current price.
func (i Item) MarginPct() float64 {
	if i.CurrentPrice == 0 || i.Cost == 0 {
		return 0
	}
	return (i.CurrentPrice - i.Cost) / i.CurrentPrice
}

// PriceHistoryEntry is one recorded price change in the merchant's own
// ledger. The pipeline consumes it read-only for bookkeeping; elasticity
// works off prices actually charged instead.
type PriceHistoryEntry struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ItemID    int64     `json:"item_id"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	ChangedAt time.Time `json:"changed_at"`
}

// CompetitorItem is one scraped competitor price observation.
type CompetitorItem struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Competitor string    `json:"competitor"`
	ItemName   string    `json:"item_name"`
	Price      float64   `json:"price"`
	Category   string    `json:"category"`
	ObservedAt time.Time `json:"observed_at"`
}

// CompetitorMatch pairs one of our items with a competitor's price for the
// same product.
type CompetitorMatch struct {
	ItemID     int64     `json:"item_id"`
	ItemName   string    `json:"item_name"`
	OurPrice   float64   `json:"our_price"`
	Competitor string    `json:"competitor"`
	TheirPrice float64   `json:"their_price"`
	DeltaPct   float64   `json:"delta_pct"` // positive when we are dearer
	ObservedAt time.Time `json:"observed_at"`
}
