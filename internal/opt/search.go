package opt

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Step is one entry of the search trace.
type Step struct {
	Seq       int           `json:"seq"`
	Lb        int           `json:"lb"`
	Ub        int           `json:"ub"`
	Outcome   string        `json:"outcome"`
	Objective float64       `json:"objective"`
	Units     int           `json:"units"`
	Aisles    int           `json:"aisles"`
	Ratio     float64       `json:"ratio"`
	Improved  bool          `json:"improved"`
	Elapsed   time.Duration `json:"elapsedNs"`
	CallTime  time.Duration `json:"callTimeNs"`
}

type SearchMetrics struct {
	Strategy     string
	Oracle       string
	OracleCalls  int
	Skipped      int
	Infeasible   int
	Improvements int
	BestRatio    float64
	BestUnits    int
	BestAisles   int
	Elapsed      time.Duration
	Steps        []Step
}

// Prober issues single oracle calls for a search strategy: it applies the
// aisle-count bounds, enforces the budget, extracts the selection and keeps
// the best candidate seen.
type Prober struct {
	f         *Formulation
	oracle    Oracle
	budget    *Budget
	cfg       Config
	log       *logrus.Entry
	observers []func(Step)

	best    Candidate
	metrics SearchMetrics
}

func newProber(f *Formulation, oracle Oracle, budget *Budget, cfg Config, log *logrus.Entry, observers []func(Step)) *Prober {
	return &Prober{
		f:         f,
		oracle:    oracle,
		budget:    budget,
		cfg:       cfg,
		log:       log,
		observers: observers,
		best:      sentinel(OutcomeInsufficientTime, 0, 0),
		metrics:   SearchMetrics{Strategy: cfg.Strategy, Oracle: oracle.Name(), BestRatio: 0},
	}
}

func (p *Prober) NumAisles() int             { return len(p.f.AisleVars()) }
func (p *Prober) Formulation() *Formulation { return p.f }
func (p *Prober) Budget() *Budget           { return p.budget }

// Best returns the best usable candidate so far, or the insufficient-time
// sentinel when nothing usable was found.
func (p *Prober) Best() Candidate { return p.best }

// Metrics returns a snapshot of the search metrics.
func (p *Prober) Metrics() SearchMetrics {
	m := p.metrics
	m.Elapsed = p.budget.Elapsed()
	m.Steps = append([]Step(nil), p.metrics.Steps...)
	return m
}

// Probe solves the formulation with lb <= sum(y) <= ub. Oracle failures are
// returned as errors wrapping ErrOracle; everything else is a candidate.
func (p *Prober) Probe(ctx context.Context, lb, ub int) (Candidate, error) {
	if lb < 1 {
		lb = 1
	}
	if n := p.NumAisles(); ub > n {
		ub = n
	}
	if lb > ub {
		c := sentinel(OutcomeInfeasible, lb, ub)
		p.record(c, 0, false)
		return c, nil
	}
	limit, ok := p.budget.Allowance()
	if !ok || ctx.Err() != nil {
		c := sentinel(OutcomeInsufficientTime, lb, ub)
		p.record(c, 0, false)
		return c, nil
	}

	p.f.SetAisleRange(lb, ub)
	started := p.budget.Elapsed()
	res, err := p.oracle.Solve(ctx, p.f, OracleParams{TimeLimit: limit, Gap: p.cfg.Gap, Threads: p.cfg.Threads})
	callTime := p.budget.Elapsed() - started
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %s [%d,%d]: %v", ErrOracle, p.oracle.Name(), lb, ub, err)
	}
	if !res.Status.HasSolution() || len(res.Values) < p.f.NumVars() {
		c := sentinel(OutcomeInfeasible, lb, ub)
		p.record(c, callTime, false)
		return c, nil
	}

	inst := p.f.Instance()
	c := Candidate{
		Outcome:   OutcomeSolved,
		Objective: math.Round(res.Objective*1e6) / 1e6,
		Orders:    selectAbove(res.Values, p.f.OrderVars(), p.cfg.Tolerance),
		Aisles:    selectAbove(res.Values, p.f.AisleVars(), p.cfg.Tolerance),
		Lb:        lb,
		Ub:        ub,
	}
	if p.cfg.PruneAisles {
		c.Aisles = pruneAisles(inst, c.Orders, c.Aisles)
	}
	c.AisleCount = len(c.Aisles)
	c.Units = inst.UnitsPicked(c.Solution())

	improved := c.Usable() && c.Ratio() > p.best.Ratio()
	if improved {
		p.best = c
	}
	p.record(c, callTime, improved)
	return c, nil
}

func (p *Prober) record(c Candidate, callTime time.Duration, improved bool) {
	m := &p.metrics
	switch c.Outcome {
	case OutcomeInsufficientTime:
		m.Skipped++
	case OutcomeInfeasible:
		if callTime > 0 || c.Lb <= c.Ub {
			m.OracleCalls++
		}
		m.Infeasible++
	default:
		m.OracleCalls++
	}
	ratio := 0.0
	if c.Usable() {
		ratio = c.Ratio()
	}
	if improved {
		m.Improvements++
		m.BestRatio = ratio
		m.BestUnits = c.Units
		m.BestAisles = c.AisleCount
	}
	st := Step{
		Seq:       len(m.Steps) + 1,
		Lb:        c.Lb,
		Ub:        c.Ub,
		Outcome:   c.Outcome.String(),
		Objective: c.Objective,
		Units:     c.Units,
		Aisles:    c.AisleCount,
		Ratio:     ratio,
		Improved:  improved,
		Elapsed:   p.budget.Elapsed(),
		CallTime:  callTime,
	}
	m.Steps = append(m.Steps, st)
	p.log.WithFields(logrus.Fields{
		"seq":       st.Seq,
		"lb":        st.Lb,
		"ub":        st.Ub,
		"outcome":   st.Outcome,
		"objective": st.Objective,
		"aisles":    st.Aisles,
		"ratio":     st.Ratio,
		"remaining": p.budget.RemainingSeconds(),
	}).Debug("oracle step")
	for _, fn := range p.observers {
		fn(st)
	}
}
