// Package bnb is an in-process oracle for the wave formulation. It enumerates
// aisle subsets within the aisle-count bounds and, for each complete subset,
// the orders it can serve, pruning both trees with upper bounds on the
// objective. It is exact when it finishes and returns its incumbent when the
// time limit or the context stops it.
package bnb

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wavepick/internal/opt"
)

// checkEvery is the number of nodes expanded between deadline checks.
const checkEvery = 1024

type Oracle struct {
	log *logrus.Entry

	mu       sync.Mutex
	prepared map[*opt.Formulation]*problem
}

func New(log *logrus.Entry) *Oracle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Oracle{log: log.WithField("oracle", "bnb"), prepared: map[*opt.Formulation]*problem{}}
}

func (o *Oracle) Name() string { return "bnb" }

// Release drops the data prepared for f.
func (o *Oracle) Release(f *opt.Formulation) {
	o.mu.Lock()
	delete(o.prepared, f)
	o.mu.Unlock()
}

func (o *Oracle) problemFor(f *opt.Formulation) *problem {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prepared[f]
	if !ok {
		p = prepare(f)
		o.prepared[f] = p
	}
	return p
}

// Solve maximizes the formulation objective under its current aisle-count
// bounds and aisle cost. Threads is ignored.
func (o *Oracle) Solve(ctx context.Context, f *opt.Formulation, params opt.OracleParams) (opt.OracleResult, error) {
	if err := ctx.Err(); err != nil {
		return opt.OracleResult{Status: opt.StatusUnknown}, nil
	}
	prob := o.problemFor(f)
	lb, ub := f.AisleBounds()
	s := &search{
		problem:  prob,
		ctx:      ctx,
		lb:       lb,
		ub:       ub,
		lambda:   f.AisleCost(),
		gap:      params.Gap,
		best:     math.Inf(-1),
		supply:   make([]int, prob.nItems),
		rest:     make([]int, prob.nItems),
		demand:   make([]int, prob.nItems),
		chosen:   make([]bool, len(prob.aisles)),
		picked:   make([]bool, len(prob.orders)),
		deadline: time.Now().Add(params.TimeLimit),
	}
	if params.TimeLimit <= 0 {
		s.deadline = time.Time{}
	}
	for _, a := range prob.aisles {
		for _, iq := range a.items {
			s.rest[iq.item] += iq.qty
		}
	}
	started := time.Now()
	s.aisleDFS(0)

	res := opt.OracleResult{}
	switch {
	case s.found && s.stopped:
		res.Status = opt.StatusFeasible
	case s.found:
		res.Status = opt.StatusOptimal
	case s.stopped:
		res.Status = opt.StatusUnknown
	default:
		res.Status = opt.StatusInfeasible
	}
	if s.found {
		res.Values = assignment(f, s.bestOrders, s.bestAisles)
		res.Objective = f.Evaluate(res.Values)
	}
	o.log.WithFields(logrus.Fields{
		"lb":      lb,
		"ub":      ub,
		"nodes":   s.nodes,
		"status":  res.Status.String(),
		"elapsed": time.Since(started).String(),
	}).Debug("bnb solve")
	return res, nil
}

type itemQty struct{ item, qty int }

type entry struct {
	id    int
	units int
	items []itemQty
}

// problem is the instance data reordered for the search: aisles and orders
// by decreasing units, ties by id.
type problem struct {
	nItems         int
	waveLB, waveUB int
	orders         []entry
	aisles         []entry
}

func prepare(f *opt.Formulation) *problem {
	inst := f.Instance()
	p := &problem{nItems: inst.NItems, waveLB: inst.WaveSizeLB, waveUB: inst.WaveSizeUB}
	for i, o := range inst.Orders {
		p.orders = append(p.orders, newEntry(i, o))
	}
	for k, a := range inst.Aisles {
		p.aisles = append(p.aisles, newEntry(k, a))
	}
	byUnits := func(es []entry) func(a, b int) bool {
		return func(a, b int) bool {
			if es[a].units != es[b].units {
				return es[a].units > es[b].units
			}
			return es[a].id < es[b].id
		}
	}
	sort.SliceStable(p.orders, byUnits(p.orders))
	sort.SliceStable(p.aisles, byUnits(p.aisles))
	return p
}

func newEntry(id int, m map[int]int) entry {
	e := entry{id: id}
	for item, q := range m {
		e.items = append(e.items, itemQty{item, q})
		e.units += q
	}
	sort.Slice(e.items, func(a, b int) bool { return e.items[a].item < e.items[b].item })
	return e
}

type search struct {
	*problem
	ctx      context.Context
	deadline time.Time
	lb, ub   int
	lambda   float64
	gap      float64

	nodes   int
	stopped bool

	supply  []int // selected aisles
	rest    []int // undecided aisles
	chosen  []bool
	nChosen int

	demand []int
	picked []bool
	cands  []int // order positions that fit the current supply
	suffix []int

	found      bool
	best       float64
	bestOrders []int
	bestAisles []int
}

func (s *search) tick() bool {
	if s.stopped {
		return true
	}
	s.nodes++
	if s.nodes%checkEvery == 0 {
		if s.ctx.Err() != nil || (!s.deadline.IsZero() && time.Now().After(s.deadline)) {
			s.stopped = true
		}
	}
	return s.stopped
}

// improves reports whether a node bounded by bound may beat the incumbent by
// more than the relative gap.
func (s *search) improves(bound float64) bool {
	if !s.found {
		return true
	}
	return bound > s.best+s.gap*math.Abs(s.best)+1e-9
}

func (s *search) fits(e entry, supply []int, extra []int) bool {
	for _, iq := range e.items {
		have := supply[iq.item]
		if extra != nil {
			have += extra[iq.item]
		}
		if s.demand[iq.item]+iq.qty > have {
			return false
		}
	}
	return true
}

// aisleBound is the best objective reachable if every undecided aisle were
// visited, charging the aisle cost for the fewest aisles still allowed.
func (s *search) aisleBound() float64 {
	units := 0
	for _, o := range s.orders {
		if s.fits(o, s.supply, s.rest) {
			units += o.units
		}
	}
	if units < s.waveLB {
		return math.Inf(-1)
	}
	if units > s.waveUB {
		units = s.waveUB
	}
	n := s.nChosen
	if n < s.lb {
		n = s.lb
	}
	return float64(units) - s.lambda*float64(n)
}

func (s *search) aisleDFS(pos int) {
	if s.tick() {
		return
	}
	if s.nChosen > s.ub || s.nChosen+len(s.aisles)-pos < s.lb {
		return
	}
	bound := s.aisleBound()
	if math.IsInf(bound, -1) || !s.improves(bound) {
		return
	}
	if pos == len(s.aisles) {
		s.solveOrders()
		return
	}
	a := s.aisles[pos]
	for _, iq := range a.items {
		s.rest[iq.item] -= iq.qty
	}
	if s.nChosen < s.ub {
		for _, iq := range a.items {
			s.supply[iq.item] += iq.qty
		}
		s.chosen[pos] = true
		s.nChosen++
		s.aisleDFS(pos + 1)
		s.nChosen--
		s.chosen[pos] = false
		for _, iq := range a.items {
			s.supply[iq.item] -= iq.qty
		}
	}
	s.aisleDFS(pos + 1)
	for _, iq := range a.items {
		s.rest[iq.item] += iq.qty
	}
}

// solveOrders searches order subsets for the current complete aisle set.
func (s *search) solveOrders() {
	s.cands = s.cands[:0]
	for n, o := range s.orders {
		if s.fits(o, s.supply, nil) && o.units <= s.waveUB {
			s.cands = append(s.cands, n)
		}
	}
	s.suffix = append(s.suffix[:0], make([]int, len(s.cands)+1)...)
	for n := len(s.cands) - 1; n >= 0; n-- {
		s.suffix[n] = s.suffix[n+1] + s.orders[s.cands[n]].units
	}
	s.orderDFS(0, 0)
}

func (s *search) orderDFS(idx, units int) {
	if s.tick() {
		return
	}
	cost := s.lambda * float64(s.nChosen)
	if units >= s.waveLB {
		if obj := float64(units) - cost; !s.found || obj > s.best {
			s.record(obj)
		}
	}
	if idx == len(s.cands) {
		return
	}
	reach := units + s.suffix[idx]
	if reach < s.waveLB {
		return
	}
	if reach > s.waveUB {
		reach = s.waveUB
	}
	if !s.improves(float64(reach) - cost) {
		return
	}
	pos := s.cands[idx]
	o := s.orders[pos]
	if units+o.units <= s.waveUB && s.fits(o, s.supply, nil) {
		for _, iq := range o.items {
			s.demand[iq.item] += iq.qty
		}
		s.picked[pos] = true
		s.orderDFS(idx+1, units+o.units)
		s.picked[pos] = false
		for _, iq := range o.items {
			s.demand[iq.item] -= iq.qty
		}
	}
	s.orderDFS(idx+1, units)
}

func (s *search) record(obj float64) {
	s.found = true
	s.best = obj
	s.bestOrders = s.bestOrders[:0]
	for pos, ok := range s.picked {
		if ok {
			s.bestOrders = append(s.bestOrders, s.orders[pos].id)
		}
	}
	s.bestAisles = s.bestAisles[:0]
	for pos, ok := range s.chosen {
		if ok {
			s.bestAisles = append(s.bestAisles, s.aisles[pos].id)
		}
	}
}

// assignment turns a selection into a value vector, allocating each item's
// demand over the visited aisles in allocation order.
func assignment(f *opt.Formulation, orders, aisles []int) []float64 {
	vals := make([]float64, f.NumVars())
	for _, i := range orders {
		vals[f.OrderVars()[i]] = 1
	}
	visited := map[int]bool{}
	for _, k := range aisles {
		vals[f.AisleVars()[k]] = 1
		visited[k] = true
	}
	if len(f.Allocations()) == 0 {
		return vals
	}
	demand := f.Instance().Demand(orders)
	for _, a := range f.Allocations() {
		if !visited[a.Aisle] || demand[a.Item] == 0 {
			continue
		}
		take := demand[a.Item]
		if supply := f.Instance().Aisles[a.Aisle][a.Item]; take > supply {
			take = supply
		}
		vals[a.Var] = float64(take)
		demand[a.Item] -= take
	}
	return vals
}
