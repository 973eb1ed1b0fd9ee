package opt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{StrategyBinary, StrategyPartition, StrategyScan, StrategyDinkelbach} {
		s, err := NewStrategy(testConfig(name))
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	_, err := NewStrategy(testConfig("exhaustive"))
	assert.Error(t, err)
}

func TestPartitionSearchKeepsBetterHalf(t *testing.T) {
	o := &scriptedOracle{pick: useLower}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyPartition), SystemClock{}, time.Hour)

	best, err := partitionSearch{skew: true}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 3}, {4, 10}, {4, 7}, {8, 10}, {4, 5}, {6, 7}, {6, 6}, {7, 7}}, o.calls)
	assert.Equal(t, 5.0, best.Ratio())
	// [6,6] ties [6,7] and must not replace it
	assert.Equal(t, 6, best.Lb)
	assert.Equal(t, 7, best.Ub)
	assert.Equal(t, 3, p.Metrics().Improvements)
}

func TestPartitionSearchEqualHalvesGoLeft(t *testing.T) {
	o := &scriptedOracle{pick: func(_ *Formulation, lb, _ int) ([]int, []int, bool) {
		return firstN(lb), firstN(lb), true
	}}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyPartition), SystemClock{}, time.Hour)

	best, err := partitionSearch{}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 5}, {6, 10}, {1, 3}, {4, 5}, {1, 2}, {3, 3}, {1, 1}, {2, 2}}, o.calls)
	assert.Equal(t, 1, best.Lb)
	assert.Equal(t, 3.0, best.Ratio())
}

func TestPartitionSearchStopsWhenNothingSolves(t *testing.T) {
	o := &scriptedOracle{pick: func(*Formulation, int, int) ([]int, []int, bool) { return nil, nil, false }}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyPartition), SystemClock{}, time.Hour)

	best, err := partitionSearch{skew: true}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, o.calls, 2)
	assert.False(t, best.Usable())
	assert.Empty(t, best.Orders)
}

func TestPartitionSearchSingleAisle(t *testing.T) {
	inst := tenAisles(t)
	inst.Aisles = inst.Aisles[:1]
	o := &scriptedOracle{pick: useLower}
	p := newTestProber(t, inst, o, testConfig(StrategyPartition), SystemClock{}, time.Hour)

	best, err := partitionSearch{skew: true}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 1}}, o.calls)
	assert.True(t, best.Usable())
}

func TestBinarySearchAcceptsSingleAisle(t *testing.T) {
	o := &scriptedOracle{pick: useLower}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyBinary), SystemClock{}, time.Hour)

	best, err := binarySearch{}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 1}}, o.calls)
	assert.Equal(t, 3.0, best.Ratio())
}

func TestBinarySearchMovesTowardFewerAisles(t *testing.T) {
	o := &scriptedOracle{pick: func(f *Formulation, lb, ub int) ([]int, []int, bool) {
		if lb < 4 {
			return nil, nil, false
		}
		return useLower(f, lb, ub)
	}}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyBinary), SystemClock{}, time.Hour)

	best, err := binarySearch{}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 1}, {6, 6}, {3, 3}, {4, 4}}, o.calls)
	assert.Equal(t, 5.0, best.Ratio())
	assert.Equal(t, 6, best.AisleCount)
}

func TestScanSearchStopsWhenBudgetRunsOut(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	o := &scriptedOracle{pick: useLower, clock: clock, cost: 100 * time.Second}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyScan), clock, 600*time.Second)

	best, err := scanSearch{}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, o.calls, 6)
	m := p.Metrics()
	assert.Equal(t, 6, m.OracleCalls)
	assert.Equal(t, 1, m.Skipped)
	// h=3 and h=6 both reach 5; the earlier one is kept
	assert.Equal(t, 3, best.AisleCount)
	assert.Equal(t, 5.0, best.Ratio())
}

func TestDinkelbachSearch(t *testing.T) {
	var seen []float64
	o := &scriptedOracle{pick: func(f *Formulation, lb, ub int) ([]int, []int, bool) {
		lambda := f.AisleCost()
		seen = append(seen, lambda)
		bestH, bestV := lb, 3*float64(ordersFor(lb))-lambda*float64(lb)
		for h := lb + 1; h <= ub; h++ {
			if v := 3*float64(ordersFor(h)) - lambda*float64(h); v > bestV {
				bestH, bestV = h, v
			}
		}
		return firstN(ordersFor(bestH)), firstN(bestH), true
	}}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyDinkelbach), SystemClock{}, time.Hour)

	best, err := dinkelbachSearch{eps: 1e-6, maxIter: 50}.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5}, seen)
	assert.Equal(t, [][2]int{{1, 10}, {1, 10}}, o.calls)
	assert.Equal(t, 5.0, best.Ratio())
	assert.Equal(t, 6, best.AisleCount)
	assert.Equal(t, 0.0, p.Formulation().AisleCost())
}

func TestStrategiesStopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, name := range []string{StrategyBinary, StrategyPartition, StrategyScan, StrategyDinkelbach} {
		o := &scriptedOracle{pick: useLower}
		p := newTestProber(t, tenAisles(t), o, testConfig(name), SystemClock{}, time.Hour)
		s, err := NewStrategy(testConfig(name))
		require.NoError(t, err)

		best, err := s.Search(ctx, p)
		require.NoError(t, err, name)
		assert.Empty(t, o.calls, name)
		assert.False(t, best.Usable(), name)
	}
}
