package sales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(n int) time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestPriceChanges_CollapsesDuplicates(t *testing.T) {
	obs := []PriceObservation{
		{ItemID: 1, UnitPrice: 10.00, SeenAt: at(0)},
		{ItemID: 1, UnitPrice: 10.00, SeenAt: at(1)},
		{ItemID: 1, UnitPrice: 12.00, SeenAt: at(2)},
		{ItemID: 1, UnitPrice: 12.00, SeenAt: at(3)},
		{ItemID: 1, UnitPrice: 11.00, SeenAt: at(4)},
	}

	changes := PriceChanges(obs)
	require.Len(t, changes[1], 2)

	assert.Equal(t, 10.00, changes[1][0].OldPrice)
	assert.Equal(t, 12.00, changes[1][0].NewPrice)
	assert.Equal(t, at(2), changes[1][0].ChangedAt)

	assert.Equal(t, 12.00, changes[1][1].OldPrice)
	assert.Equal(t, 11.00, changes[1][1].NewPrice)
}

func TestPriceChanges_AscendingPerItem(t *testing.T) {
	obs := []PriceObservation{
		{ItemID: 1, UnitPrice: 10.00, SeenAt: at(5)},
		{ItemID: 1, UnitPrice: 12.00, SeenAt: at(9)},
		{ItemID: 1, UnitPrice: 11.00, SeenAt: at(7)},
	}

	changes := PriceChanges(obs)
	require.Len(t, changes[1], 2)
	assert.True(t, changes[1][0].ChangedAt.Before(changes[1][1].ChangedAt))
	// Sorted by time: 10 -> 11 at day 7, then 11 -> 12 at day 9.
	assert.Equal(t, 11.00, changes[1][0].NewPrice)
	assert.Equal(t, 12.00, changes[1][1].NewPrice)
}

func TestPriceChanges_MultipleItemsIndependent(t *testing.T) {
	obs := []PriceObservation{
		{ItemID: 1, UnitPrice: 10.00, SeenAt: at(0)},
		{ItemID: 2, UnitPrice: 5.00, SeenAt: at(0)},
		{ItemID: 1, UnitPrice: 11.00, SeenAt: at(1)},
		{ItemID: 2, UnitPrice: 5.00, SeenAt: at(1)},
	}

	changes := PriceChanges(obs)
	assert.Len(t, changes[1], 1)
	assert.Empty(t, changes[2])
}

func TestPriceChanges_SingleObservationNoEvent(t *testing.T) {
	changes := PriceChanges([]PriceObservation{{ItemID: 1, UnitPrice: 10.00, SeenAt: at(0)}})
	assert.Empty(t, changes[1])
}

func TestPriceChanges_FloatDriftNotAChange(t *testing.T) {
	obs := []PriceObservation{
		{ItemID: 1, UnitPrice: 9.99, SeenAt: at(0)},
		{ItemID: 1, UnitPrice: 9.99 + 1e-9, SeenAt: at(1)},
	}
	changes := PriceChanges(obs)
	assert.Empty(t, changes[1])
}

func TestPriceChanges_Empty(t *testing.T) {
	assert.Nil(t, PriceChanges(nil))
}
