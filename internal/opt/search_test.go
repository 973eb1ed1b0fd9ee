package opt

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavepick/internal/wave"
)

// scriptedOracle answers each call from pick, which returns the orders and
// aisles to set to one, or ok=false for an infeasible call.
type scriptedOracle struct {
	clock    *ManualClock
	cost     time.Duration
	pick     func(f *Formulation, lb, ub int) (orders, aisles []int, ok bool)
	values   []float64
	err      error
	panicMsg string
	// releasePanic makes Release panic after counting the call.
	releasePanic bool

	calls    [][2]int
	limits   []time.Duration
	released int
}

func (o *scriptedOracle) Name() string { return "scripted" }

func (o *scriptedOracle) Solve(_ context.Context, f *Formulation, p OracleParams) (OracleResult, error) {
	lb, ub := f.AisleBounds()
	o.calls = append(o.calls, [2]int{lb, ub})
	o.limits = append(o.limits, p.TimeLimit)
	if o.clock != nil {
		o.clock.Advance(o.cost)
	}
	if o.panicMsg != "" {
		panic(o.panicMsg)
	}
	if o.err != nil {
		return OracleResult{}, o.err
	}
	if o.values != nil {
		return OracleResult{Status: StatusOptimal, Objective: f.Evaluate(o.values), Values: o.values}, nil
	}
	orders, aisles, ok := o.pick(f, lb, ub)
	if !ok {
		return OracleResult{Status: StatusInfeasible}, nil
	}
	vals := make([]float64, f.NumVars())
	for _, i := range orders {
		vals[f.OrderVars()[i]] = 1
	}
	for _, k := range aisles {
		vals[f.AisleVars()[k]] = 1
	}
	return OracleResult{Status: StatusOptimal, Objective: f.Evaluate(vals), Values: vals}, nil
}

func (o *scriptedOracle) Release(*Formulation) {
	o.released++
	if o.releasePanic {
		panic("release failed")
	}
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func twoByTwo(t *testing.T, lb, ub int) *wave.Instance {
	t.Helper()
	inst, err := wave.NewInstance(
		[]wave.Order{{0: 3}, {1: 2}},
		[]wave.Aisle{{0: 5}, {1: 5}},
		2, lb, ub,
	)
	require.NoError(t, err)
	return inst
}

// tenAisles has ten aisles of 5 units of item 0 and ten orders of 3 units.
// Using h aisles supports min(10, 5h/3) orders.
func tenAisles(t *testing.T) *wave.Instance {
	t.Helper()
	orders := make([]wave.Order, 10)
	aisles := make([]wave.Aisle, 10)
	for i := range orders {
		orders[i] = wave.Order{0: 3}
		aisles[i] = wave.Aisle{0: 5}
	}
	inst, err := wave.NewInstance(orders, aisles, 1, 1, 100)
	require.NoError(t, err)
	return inst
}

func ordersFor(h int) int {
	g := 5 * h / 3
	if g > 10 {
		g = 10
	}
	return g
}

func firstN(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// useLower picks exactly lb aisles and as many orders as they can serve.
func useLower(_ *Formulation, lb, _ int) ([]int, []int, bool) {
	return firstN(ordersFor(lb)), firstN(lb), true
}

func testConfig(strategy string) Config {
	cfg := DefaultConfig()
	cfg.Strategy = strategy
	cfg.PruneAisles = false
	return cfg
}

func newTestProber(t *testing.T, inst *wave.Instance, o Oracle, cfg Config, clock Clock, total time.Duration) *Prober {
	t.Helper()
	b := NewBudget(clock, total, cfg.SafetyMargin, cfg.MinCallTime, cfg.MaxCallTime)
	return newProber(Build(inst, cfg.Variant), o, b, cfg, quietLog(), nil)
}

func TestProbeSelectsAboveTolerance(t *testing.T) {
	inst := twoByTwo(t, 1, 10)
	f := Build(inst, VariantPooled)
	vals := make([]float64, f.NumVars())
	vals[f.OrderVars()[0]] = 0.0011
	vals[f.OrderVars()[1]] = 0.0009
	vals[f.AisleVars()[0]] = 0.0011
	vals[f.AisleVars()[1]] = 0.0009
	o := &scriptedOracle{values: vals}

	p := newTestProber(t, inst, o, testConfig(StrategyScan), SystemClock{}, time.Hour)
	c, err := p.Probe(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSolved, c.Outcome)
	assert.Equal(t, []int{0}, c.Orders)
	assert.Equal(t, []int{0}, c.Aisles)
	assert.Equal(t, 3, c.Units)
	assert.Equal(t, 3.0, c.Ratio())
}

func TestProbeSkipsBelowTimeFloor(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	o := &scriptedOracle{pick: useLower}
	cfg := testConfig(StrategyScan)
	// 35s total minus the 20s margin leaves 15s, below the 20s floor.
	p := newTestProber(t, tenAisles(t), o, cfg, clock, 35*time.Second)

	c, err := p.Probe(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientTime, c.Outcome)
	assert.Equal(t, ObjectiveInsufficientTime, c.Objective)
	assert.Empty(t, c.Orders)
	assert.Empty(t, c.Aisles)
	assert.Empty(t, o.calls)
	assert.Equal(t, 1, p.Metrics().Skipped)
}

func TestProbeCapsCallTime(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	o := &scriptedOracle{pick: useLower, clock: clock, cost: 500 * time.Second}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyScan), clock, 600*time.Second)

	_, err := p.Probe(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = p.Probe(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, o.limits, 2)
	assert.Equal(t, 100*time.Second, o.limits[0])
	assert.Equal(t, 80*time.Second, o.limits[1])
	assert.Equal(t, int64(0), p.Budget().RemainingSeconds())
}

func TestProbeInfeasibleSentinel(t *testing.T) {
	o := &scriptedOracle{pick: func(*Formulation, int, int) ([]int, []int, bool) { return nil, nil, false }}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyScan), SystemClock{}, time.Hour)

	c, err := p.Probe(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInfeasible, c.Outcome)
	assert.Equal(t, ObjectiveInfeasible, c.Objective)
	assert.True(t, math.IsInf(c.Ratio(), -1))
	assert.Equal(t, OutcomeInsufficientTime, p.Best().Outcome)
}

func TestProbeClampsBounds(t *testing.T) {
	o := &scriptedOracle{pick: useLower}
	p := newTestProber(t, tenAisles(t), o, testConfig(StrategyScan), SystemClock{}, time.Hour)

	_, err := p.Probe(context.Background(), 0, 50)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 10}}, o.calls)

	c, err := p.Probe(context.Background(), 11, 12)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInfeasible, c.Outcome)
	assert.Len(t, o.calls, 1)
}

func TestProbePrunesRedundantAisles(t *testing.T) {
	inst := twoByTwo(t, 1, 10)
	o := &scriptedOracle{pick: func(*Formulation, int, int) ([]int, []int, bool) {
		return []int{0}, []int{0, 1}, true
	}}
	cfg := testConfig(StrategyScan)
	cfg.PruneAisles = true
	p := newTestProber(t, inst, o, cfg, SystemClock{}, time.Hour)

	c, err := p.Probe(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, c.Aisles)
	assert.Equal(t, 1, c.AisleCount)
	assert.Equal(t, 3.0, c.Ratio())
}

func TestPruneAislesKeepsNeededSupply(t *testing.T) {
	inst, err := wave.NewInstance(
		[]wave.Order{{0: 4}},
		[]wave.Aisle{{0: 2}, {0: 2}, {0: 9}},
		1, 1, 10,
	)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pruneAisles(inst, []int{0}, []int{0, 1, 2}))
	assert.Equal(t, []int{0, 1}, pruneAisles(inst, []int{0}, []int{0, 1}))
	assert.Equal(t, []int{1}, pruneAisles(inst, []int{}, []int{1}))
}

func TestSplitPoint(t *testing.T) {
	assert.Equal(t, 3, splitPoint(1, 10, true))
	assert.Equal(t, 5, splitPoint(1, 10, false))
	assert.Equal(t, 1, splitPoint(1, 2, true))
	assert.Equal(t, 2, splitPoint(1, 3, true))
	assert.Equal(t, 7, splitPoint(4, 10, false))
	for a := 1; a < 40; a++ {
		for b := a + 1; b < 40; b++ {
			m := splitPoint(a, b, true)
			assert.True(t, m >= a && m < b, "split of [%d,%d] = %d", a, b, m)
		}
	}
}
