package cost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculatePartNumberPrecedence(t *testing.T) {
	est := Calculate([]Component{
		{Name: "Circular Connector", PartNumber: "HA-190031-A", Count: 1},
	})

	require.Len(t, est.Items, 1)
	item := est.Items[0]
	// The part number carries the specific price even though the name would
	// also match a cheaper keyword.
	require.Equal(t, "ha-190031 (PN)", item.MatchedType)
	require.Equal(t, 15.00, item.UnitPrice)
	require.Equal(t, 15.00, est.TotalCost)
	require.Equal(t, "USD", est.Currency)
}

func TestCalculateNameKeyword(t *testing.T) {
	est := Calculate([]Component{
		{Name: "Shielded Cable Assembly", Count: 2},
		{Name: "Strain Relief", Count: 4},
	})

	require.Len(t, est.Items, 2)
	// Table order decides ties: "cable" outranks "shield" for this name.
	require.Equal(t, "cable", est.Items[0].MatchedType)
	require.Equal(t, 2.00, est.Items[0].UnitPrice)
	require.Equal(t, "relief", est.Items[1].MatchedType)
	require.Equal(t, 4.00+1.20, est.TotalCost)
}

func TestCalculateUnknownComponentFallback(t *testing.T) {
	est := Calculate([]Component{
		{Name: "Mystery Widget", PartNumber: "ZZ-0000", Count: 3},
	})

	item := est.Items[0]
	require.Equal(t, "estimate", item.MatchedType)
	require.Equal(t, 1.0, item.UnitPrice)
	require.Equal(t, 3.0, est.TotalCost)
}

func TestCalculateZeroCountDefaultsToOne(t *testing.T) {
	est := Calculate([]Component{
		{Name: "Housing", Count: 0},
		{Name: "Crimp Contact", Count: -2},
	})

	require.Equal(t, 1.0, est.Items[0].Count)
	require.Equal(t, 1.0, est.Items[1].Count)
	require.Equal(t, 1.50+0.10, est.TotalCost)
}

func TestCalculateRoundsToCents(t *testing.T) {
	est := Calculate([]Component{
		{Name: "Label", Count: 3}, // 0.15
		{Name: "Wire", Count: 0.5},
	})
	require.Equal(t, 0.4, est.TotalCost)
}

func TestCalculateEmptyList(t *testing.T) {
	est := Calculate(nil)
	require.Empty(t, est.Items)
	require.Zero(t, est.TotalCost)
}
