package opt

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wavepick/internal/wave"
)

// Result is the outcome of one top-level solve. Solution is never nil-sliced
// and is empty when no feasible wave was found within the budget.
type Result struct {
	Solution wave.Solution
	Ratio    float64
	Units    int
	Feasible bool
	Best     Candidate
	Metrics  SearchMetrics
	// OracleErr is set when the search was aborted by an oracle fault.
	OracleErr error
}

// Solver runs one search strategy against one oracle. A Solver holds no
// per-solve state and may be reused across instances, but not concurrently.
type Solver struct {
	oracle    Oracle
	cfg       Config
	clock     Clock
	log       *logrus.Entry
	observers []func(Step)
}

// Option configures a Solver at construction.
type Option func(*Solver)

func WithClock(c Clock) Option { return func(s *Solver) { s.clock = c } }

func WithLogger(l *logrus.Entry) Option { return func(s *Solver) { s.log = l } }

// WithObserver registers fn to receive every search step as it is recorded.
func WithObserver(fn func(Step)) Option {
	return func(s *Solver) { s.observers = append(s.observers, fn) }
}

func NewSolver(oracle Oracle, cfg Config, opts ...Option) (*Solver, error) {
	if oracle == nil {
		return nil, fmt.Errorf("nil oracle")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("solver config: %w", err)
	}
	s := &Solver{oracle: oracle, cfg: cfg, clock: SystemClock{}}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return s, nil
}

func (s *Solver) Config() Config { return s.cfg }

// Solve builds the formulation once and runs the configured strategy against
// it under the time budget. The only errors returned are for an invalid
// instance or strategy. Oracle faults and panics while building or
// searching end in an empty Result with OracleErr set.
func (s *Solver) Solve(ctx context.Context, inst *wave.Instance) (res Result, err error) {
	res = emptyResult()
	if err := inst.Validate(); err != nil {
		return res, err
	}
	budget := NewBudget(s.clock, s.cfg.TimeLimit, s.cfg.SafetyMargin, s.cfg.MinCallTime, s.cfg.MaxCallTime)
	strategy, err := NewStrategy(s.cfg)
	if err != nil {
		return res, err
	}
	log := s.log.WithFields(logrus.Fields{"strategy": strategy.Name(), "oracle": s.oracle.Name()})

	var p *Prober
	defer func() {
		if r := recover(); r != nil {
			res = emptyResult()
			if p != nil {
				res.Best, res.Metrics = p.Best(), p.Metrics()
			}
			res.OracleErr = fmt.Errorf("%w: panic: %v", ErrOracle, r)
			err = nil
			log.WithError(res.OracleErr).Error("solve aborted")
		}
	}()

	f := Build(inst, s.cfg.Variant)
	defer s.oracle.Release(f)

	p = newProber(f, s.oracle, budget, s.cfg, log, s.observers)
	best, err := runStrategy(ctx, strategy, p)

	res.Best, res.Metrics = best, p.Metrics()
	if err != nil {
		log.WithError(err).Error("search aborted")
		res.OracleErr = err
		return res, nil
	}
	sol := best.Solution()
	switch {
	case !best.Usable():
		log.WithField("outcome", best.Outcome.String()).Info("no wave found")
	case !inst.Feasible(sol):
		log.WithFields(logrus.Fields{"orders": len(sol.Orders), "aisles": len(sol.Aisles)}).Warn("discarding infeasible candidate")
	default:
		res.Solution = sol.Normalize()
		res.Units = inst.UnitsPicked(res.Solution)
		res.Ratio = inst.Ratio(res.Solution)
		res.Feasible = true
		log.WithFields(logrus.Fields{
			"ratio":   res.Ratio,
			"units":   res.Units,
			"aisles":  len(res.Solution.Aisles),
			"calls":   res.Metrics.OracleCalls,
			"elapsed": res.Metrics.Elapsed.String(),
		}).Info("wave solved")
	}
	return res, nil
}

func emptyResult() Result {
	return Result{Solution: wave.Solution{Orders: []int{}, Aisles: []int{}}}
}

func runStrategy(ctx context.Context, s Strategy, p *Prober) (best Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			best = p.Best()
			err = fmt.Errorf("%w: panic: %v", ErrOracle, r)
		}
	}()
	return s.Search(ctx, p)
}
