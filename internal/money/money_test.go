package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateProportional(t *testing.T) {
	alloc := Allocate([]float64{300, 700}, 100)
	require.Equal(t, []float64{30, 70}, alloc)
}

func TestAllocateRemainderGoesToLastLine(t *testing.T) {
	alloc := Allocate([]float64{100, 100, 100}, 10)
	require.Equal(t, []float64{3.33, 3.33, 3.34}, alloc)
	require.Equal(t, 10.0, Sum(alloc...))
}

func TestAllocateConservesDiscount(t *testing.T) {
	cases := []struct {
		name     string
		lines    []float64
		discount float64
	}{
		{name: "zero entry", lines: []float64{0, 50, 25.5}, discount: 7.77},
		{name: "single line", lines: []float64{19.99}, discount: 19.99},
		{name: "full discount", lines: []float64{33.33, 33.33, 33.34}, discount: 100},
		{name: "odd shares", lines: []float64{1, 1, 1, 1, 1, 1, 1}, discount: 1},
		{name: "tiny", lines: []float64{0.01, 999.99}, discount: 0.03},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc := Allocate(tc.lines, tc.discount)
			require.Len(t, alloc, len(tc.lines))
			require.Equal(t, Round2(tc.discount), Sum(alloc...))
		})
	}
}

func TestAllocateZeroCases(t *testing.T) {
	require.Equal(t, []float64{0, 0}, Allocate([]float64{10, 20}, 0))
	require.Equal(t, []float64{0, 0}, Allocate([]float64{0, 0}, 5))
	require.Empty(t, Allocate(nil, 5))
}

func TestAfterDiscount(t *testing.T) {
	lines := []float64{100, 100, 100}
	after := AfterDiscount(lines, Allocate(lines, 10))
	require.Equal(t, []float64{96.67, 96.67, 96.66}, after)
}

func TestResolveDiscount(t *testing.T) {
	require.Equal(t, 15.0, ResolveDiscount(Discount{Type: DiscountPercent, Value: 10}, 150))
	require.Equal(t, 12.35, ResolveDiscount(Discount{Type: DiscountAmount, Value: 12.345}, 150))
	require.Equal(t, 0.0, ResolveDiscount(Discount{}, 150))
	require.Equal(t, 3.33, ResolveDiscount(Discount{Type: DiscountPercent, Value: 33.3333}, 10))
}

func TestRounding(t *testing.T) {
	require.Equal(t, 1.01, Round2(1.005))
	require.Equal(t, -1.01, Round2(-1.005))
	require.Equal(t, 0.3, Round2(0.1*3))
	require.Equal(t, 2.346, Round3(2.3455))
	require.Equal(t, 0.3, MulRound(0.1, 3, 2))
	require.Equal(t, 0.0, Max0(-4))
}

func TestRoundFactorIsStable(t *testing.T) {
	f := RoundFactor(1.0 / 12)
	require.Equal(t, 0.083333333333, f)
	require.Equal(t, f, RoundFactor(f))
	require.Equal(t, 12.0, RoundFactor(12))
}
