package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsOn(quantities ...float64) []SalesPoint {
	series := make([]SalesPoint, len(quantities))
	for i, q := range quantities {
		series[i] = SalesPoint{Date: day(i), Quantity: q}
	}
	return series
}

func TestCorrelations_Complementary(t *testing.T) {
	target := pointsOn(1, 2, 3, 4, 5, 6, 7, 8)
	candidates := map[int64][]SalesPoint{
		42: pointsOn(2, 4, 6, 8, 10, 12, 14, 16), // perfectly in step
	}

	res := Correlations(target, candidates, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	require.Len(t, res, 1)
	assert.Equal(t, int64(42), res[0].ItemID)
	assert.InDelta(t, 1.0, res[0].Coefficient, 1e-9)
	assert.Equal(t, RelationshipComplementary, res[0].Relationship)
	assert.Equal(t, 8, res[0].OverlapDays)
}

func TestCorrelations_Substitute(t *testing.T) {
	target := pointsOn(1, 2, 3, 4, 5, 6, 7, 8)
	candidates := map[int64][]SalesPoint{
		7: pointsOn(16, 14, 12, 10, 8, 6, 4, 2), // one displaces the other
	}

	res := Correlations(target, candidates, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	require.Len(t, res, 1)
	assert.InDelta(t, -1.0, res[0].Coefficient, 1e-9)
	assert.Equal(t, RelationshipSubstitute, res[0].Relationship)
}

func TestCorrelations_WeakCorrelationDropped(t *testing.T) {
	// r = -0.2 against the 1,2,3,4 target: below the 0.3 threshold.
	target := pointsOn(1, 2, 3, 4)
	candidates := map[int64][]SalesPoint{
		9: pointsOn(2, 3, 4, 1),
	}

	res := Correlations(target, candidates, 2, DefaultCorrelationThreshold)
	assert.Empty(t, res)
}

func TestCorrelations_ConstantCandidateDropped(t *testing.T) {
	target := pointsOn(1, 2, 3, 4, 5, 6, 7)
	candidates := map[int64][]SalesPoint{
		3: pointsOn(5, 5, 5, 5, 5, 5, 5), // zero variance
	}

	res := Correlations(target, candidates, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	assert.Empty(t, res)
}

func TestCorrelations_InsufficientOverlap(t *testing.T) {
	target := pointsOn(1, 2, 3)
	candidates := map[int64][]SalesPoint{
		5: pointsOn(2, 4, 6),
	}

	res := Correlations(target, candidates, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	assert.Empty(t, res)
}

func TestCorrelations_DisjointDatesNoOverlap(t *testing.T) {
	target := pointsOn(1, 2, 3, 4, 5, 6, 7)
	shifted := make([]SalesPoint, 7)
	for i := range shifted {
		shifted[i] = SalesPoint{Date: day(i + 30), Quantity: float64(i + 1)}
	}

	res := Correlations(target, map[int64][]SalesPoint{5: shifted}, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	assert.Empty(t, res)
}

func TestCorrelations_SortedByStrength(t *testing.T) {
	target := pointsOn(1, 2, 3, 4, 5, 6, 7, 8)
	candidates := map[int64][]SalesPoint{
		1: pointsOn(2, 4, 6, 8, 10, 12, 14, 16),     // r = 1.0
		2: pointsOn(2, 4, 5, 9, 9, 13, 13, 18),      // strong but imperfect
	}

	res := Correlations(target, candidates, DefaultMinOverlapDays, DefaultCorrelationThreshold)
	require.Len(t, res, 2)
	assert.Equal(t, int64(1), res[0].ItemID)
	assert.Equal(t, int64(2), res[1].ItemID)
}
