package opt

import (
	"context"
	"fmt"
	"math"
)

// Strategy searches the aisle-count parameter for the best units/aisles
// ratio. Implementations drive the oracle only through the Prober and return
// the best candidate recorded, which may be a sentinel.
type Strategy interface {
	Name() string
	Search(ctx context.Context, p *Prober) (Candidate, error)
}

// NewStrategy returns the search strategy named by cfg.Strategy.
func NewStrategy(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyBinary:
		return binarySearch{}, nil
	case StrategyPartition:
		return partitionSearch{skew: cfg.SkewFirstSplit}, nil
	case StrategyScan:
		return scanSearch{}, nil
	case StrategyDinkelbach:
		return dinkelbachSearch{eps: cfg.DinkelbachEpsilon, maxIter: cfg.DinkelbachIterations}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// binarySearch accepts a single aisle when it already picks something and
// otherwise binary searches exact counts on [2, n], moving toward fewer
// aisles whenever a count is solvable.
type binarySearch struct{}

func (binarySearch) Name() string { return StrategyBinary }

func (binarySearch) Search(ctx context.Context, p *Prober) (Candidate, error) {
	n := p.NumAisles()
	if n == 0 {
		return p.Best(), nil
	}
	first, err := p.Probe(ctx, 1, 1)
	if err != nil {
		return p.Best(), err
	}
	if first.Outcome == OutcomeInsufficientTime {
		return p.Best(), nil
	}
	if first.Usable() && first.Objective > 0 {
		return p.Best(), nil
	}
	a, b := 2, n
	for a <= b {
		mid := (a + b) / 2
		c, err := p.Probe(ctx, mid, mid)
		if err != nil {
			return p.Best(), err
		}
		if c.Outcome == OutcomeInsufficientTime {
			break
		}
		if c.Usable() {
			b = mid - 1
		} else {
			a = mid + 1
		}
	}
	return p.Best(), nil
}

// partitionSearch solves [a,mid] and [mid+1,b] as range subproblems and
// keeps the half with the better ratio. The first split may be skewed toward
// small counts.
type partitionSearch struct {
	skew bool
}

func (partitionSearch) Name() string { return StrategyPartition }

func (s partitionSearch) Search(ctx context.Context, p *Prober) (Candidate, error) {
	n := p.NumAisles()
	if n == 0 {
		return p.Best(), nil
	}
	if n == 1 {
		_, err := p.Probe(ctx, 1, 1)
		return p.Best(), err
	}
	a, b := 1, n
	for step := 0; a < b; step++ {
		mid := splitPoint(a, b, s.skew && step == 0)
		left, err := p.Probe(ctx, a, mid)
		if err != nil {
			return p.Best(), err
		}
		if left.Outcome == OutcomeInsufficientTime {
			break
		}
		right, err := p.Probe(ctx, mid+1, b)
		if err != nil {
			return p.Best(), err
		}
		if right.Outcome == OutcomeInsufficientTime {
			break
		}
		if !left.Usable() && !right.Usable() {
			break
		}
		if left.Ratio() >= right.Ratio() {
			b = mid
		} else {
			a = mid + 1
		}
	}
	return p.Best(), nil
}

// splitPoint returns mid in [a, b-1]. A skewed split divides a+b by
// floor(log2(a+b)) instead of 2.
func splitPoint(a, b int, skew bool) int {
	div := 2
	if skew {
		if d := int(math.Floor(math.Log2(float64(a + b)))); d > div {
			div = d
		}
	}
	mid := (a + b) / div
	if mid < a {
		mid = a
	}
	if mid > b-1 {
		mid = b - 1
	}
	return mid
}

// scanSearch probes every exact count from 1 to n until time runs out.
type scanSearch struct{}

func (scanSearch) Name() string { return StrategyScan }

func (scanSearch) Search(ctx context.Context, p *Prober) (Candidate, error) {
	for h := 1; h <= p.NumAisles(); h++ {
		c, err := p.Probe(ctx, h, h)
		if err != nil {
			return p.Best(), err
		}
		if c.Outcome == OutcomeInsufficientTime {
			break
		}
	}
	return p.Best(), nil
}

// dinkelbachSearch maximizes units - λ·aisles over [1, n], setting λ to the
// ratio of each new optimum until the parametric value reaches zero.
type dinkelbachSearch struct {
	eps     float64
	maxIter int
}

func (dinkelbachSearch) Name() string { return StrategyDinkelbach }

func (s dinkelbachSearch) Search(ctx context.Context, p *Prober) (Candidate, error) {
	n := p.NumAisles()
	if n == 0 {
		return p.Best(), nil
	}
	f := p.Formulation()
	defer f.SetAisleCost(0)

	lambda := 0.0
	for it := 0; it < s.maxIter; it++ {
		f.SetAisleCost(lambda)
		c, err := p.Probe(ctx, 1, n)
		if err != nil {
			return p.Best(), err
		}
		if !c.Usable() {
			break
		}
		value := float64(c.Units) - lambda*float64(c.AisleCount)
		if value <= s.eps {
			break
		}
		next := c.Ratio()
		if next <= lambda+s.eps {
			break
		}
		lambda = next
	}
	return p.Best(), nil
}
