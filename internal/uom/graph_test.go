package uom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

func massGraph(conversions ...Conversion) *Graph {
	return NewGraph([]Unit{
		{Code: "KG", Dimension: DimensionMass},
		{Code: "G", Dimension: DimensionMass},
		{Code: "EA", Dimension: DimensionMass},
		{Code: "BOX", Dimension: DimensionMass},
		{Code: "L", Dimension: DimensionVolume},
	}, conversions)
}

func TestFactorBetweenIdentity(t *testing.T) {
	g := massGraph()
	for _, code := range []string{"KG", "g", "UNKNOWN"} {
		r := g.FactorBetween(code, code, nil)
		require.True(t, r.Found)
		require.Equal(t, 1.0, r.Factor)
	}
}

func TestFactorBetweenTransitive(t *testing.T) {
	g := massGraph(
		Conversion{From: "G", To: "EA", Factor: 0.01},
		Conversion{From: "EA", To: "KG", Factor: 0.1},
	)
	_, ok := g.Edge("G", "KG")
	require.False(t, ok)
	_, ok = g.Edge("KG", "G")
	require.False(t, ok)

	r := g.FactorBetween("G", "KG", nil)
	require.True(t, r.Found)
	require.InDelta(t, 0.01*0.1, r.Factor, 1e-12)
}

func TestFactorBetweenTerminatesOnCycle(t *testing.T) {
	g := massGraph(
		Conversion{From: "KG", To: "G", Factor: 1000},
		Conversion{From: "G", To: "EA", Factor: 0.01},
		Conversion{From: "EA", To: "KG", Factor: 0.1},
	)
	r := g.FactorBetween("KG", "BOX", nil)
	require.False(t, r.Found)
}

func TestFactorBetweenRestoresVisited(t *testing.T) {
	g := massGraph(
		Conversion{From: "KG", To: "G", Factor: 1000},
		Conversion{From: "G", To: "EA", Factor: 0.01},
	)
	visited := Visited{"BOX": {}}
	r := g.FactorBetween("KG", "EA", visited)
	require.True(t, r.Found)
	require.InDelta(t, 10.0, r.Factor, 1e-12)
	require.Equal(t, Visited{"BOX": {}}, visited)

	r = g.FactorBetween("KG", "EA", Visited{"KG": {}})
	require.False(t, r.Found)
}

func TestFactorBetweenFirstPathWins(t *testing.T) {
	g := NewGraph([]Unit{
		{Code: "A", Dimension: DimensionCount},
		{Code: "B", Dimension: DimensionCount},
		{Code: "C", Dimension: DimensionCount},
		{Code: "D", Dimension: DimensionCount},
	}, []Conversion{
		{From: "A", To: "C", Factor: 3},
		{From: "C", To: "D", Factor: 1},
		{From: "A", To: "B", Factor: 2},
		{From: "B", To: "D", Factor: 5},
	})
	// A->B->D is enumerated before A->C->D regardless of insertion order.
	r := g.FactorBetween("A", "D", nil)
	require.True(t, r.Found)
	require.Equal(t, 10.0, r.Factor)
}

func TestResolve(t *testing.T) {
	g := massGraph(
		Conversion{From: "BOX", To: "KG", Factor: 12},
		Conversion{From: "KG", To: "G", Factor: 1000},
	)

	cases := []struct {
		name     string
		base     string
		received string
		override float64
		factor   float64
		code     string
	}{
		{name: "same unit", base: "KG", received: "kg", factor: 1},
		{name: "empty received", base: "KG", received: "", factor: 1},
		{name: "direct edge", base: "KG", received: "BOX", factor: 12},
		{name: "reverse edge", base: "KG", received: "G", factor: 0.001},
		{name: "override", base: "KG", received: "G", override: 2.5, factor: 2.5},
		{name: "override beats dimension", base: "KG", received: "L", override: 0.9, factor: 0.9},
		{name: "dimension mismatch", base: "KG", received: "L", code: CodeDimensionMismatch},
		{name: "missing base", base: "LB", received: "KG", code: CodeBaseUOMNotFound},
		{name: "missing received", base: "KG", received: "LB", code: CodeReceivedUOMNotFound},
		{name: "no single edge", base: "G", received: "BOX", code: CodeConversionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, factor, err := g.Resolve(tc.base, tc.received, tc.override)
			if tc.code != "" {
				require.Error(t, err)
				require.Equal(t, tc.code, shared.CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tc.factor, factor, 1e-12)
		})
	}
}

func TestConvertFallsBackToPaths(t *testing.T) {
	g := massGraph(
		Conversion{From: "BOX", To: "KG", Factor: 12},
		Conversion{From: "KG", To: "G", Factor: 1000},
	)

	unit, factor, err := g.Convert("G", "BOX", 0)
	require.NoError(t, err)
	require.Equal(t, "BOX", unit.Code)
	require.InDelta(t, 12000.0, factor, 1e-9)

	_, factor, err = g.Convert("BOX", "G", 0)
	require.NoError(t, err)
	require.InDelta(t, 1.0/12000, factor, 1e-12)

	_, _, err = g.Convert("KG", "EA", 0)
	require.Equal(t, CodeConversionNotFound, shared.CodeOf(err))
}

func TestConvertRejectsNonPositivePathFactor(t *testing.T) {
	g := massGraph(
		Conversion{From: "EA", To: "BOX", Factor: 0},
		Conversion{From: "BOX", To: "KG", Factor: 12},
	)
	_, _, err := g.Convert("KG", "EA", 0)
	require.Equal(t, CodeConversionNotFound, shared.CodeOf(err))
}
