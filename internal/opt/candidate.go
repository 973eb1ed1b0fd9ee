package opt

import (
	"math"
	"sort"

	"wavepick/internal/wave"
)

// Outcome classifies an oracle call: solved, proven infeasible, or stopped
// for lack of time.
type Outcome uint8

const (
	OutcomeSolved Outcome = iota
	OutcomeInfeasible
	OutcomeInsufficientTime
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSolved:
		return "solved"
	case OutcomeInfeasible:
		return "infeasible"
	default:
		return "insufficient_time"
	}
}

// Sentinel objectives carried by non-solved candidates.
const (
	ObjectiveInfeasible       = -1.0
	ObjectiveInsufficientTime = -2.0
)

// Candidate is the outcome of one oracle call.
type Candidate struct {
	Outcome    Outcome
	Objective  float64
	Orders     []int
	Aisles     []int
	AisleCount int
	Units      int
	// Lb and Ub are the aisle-count bounds the call ran under.
	Lb, Ub int
}

func sentinel(o Outcome, lb, ub int) Candidate {
	obj := ObjectiveInfeasible
	if o == OutcomeInsufficientTime {
		obj = ObjectiveInsufficientTime
	}
	return Candidate{Outcome: o, Objective: obj, Orders: []int{}, Aisles: []int{}, AisleCount: int(obj), Lb: lb, Ub: ub}
}

// Usable reports whether the candidate is a non-empty solved wave.
func (c Candidate) Usable() bool {
	return c.Outcome == OutcomeSolved && len(c.Orders) > 0 && len(c.Aisles) > 0
}

// Ratio is units per visited aisle, or -Inf when the candidate is unusable
// so that it never wins a comparison.
func (c Candidate) Ratio() float64 {
	if !c.Usable() || c.AisleCount <= 0 {
		return math.Inf(-1)
	}
	return float64(c.Units) / float64(c.AisleCount)
}

func (c Candidate) Solution() wave.Solution {
	return wave.Solution{Orders: append([]int{}, c.Orders...), Aisles: append([]int{}, c.Aisles...)}
}

// selectAbove returns the ids whose variable value exceeds tol.
func selectAbove(values []float64, vars []int, tol float64) []int {
	out := []int{}
	for id, v := range vars {
		if v < len(values) && values[v] > tol {
			out = append(out, id)
		}
	}
	return out
}

// pruneAisles drops visited aisles the selected orders do not need. Aisles
// holding the fewest units are tried first; ties go to the highest id.
func pruneAisles(inst *wave.Instance, orders, aisles []int) []int {
	if len(orders) == 0 || len(aisles) <= 1 {
		return aisles
	}
	demand := inst.Demand(orders)
	supply := inst.Supply(aisles)
	order := append([]int(nil), aisles...)
	sort.SliceStable(order, func(a, b int) bool {
		ua, ub := inst.Aisles[order[a]].Units(), inst.Aisles[order[b]].Units()
		if ua != ub {
			return ua < ub
		}
		return order[a] > order[b]
	})
	keep := make(map[int]bool, len(aisles))
	for _, k := range aisles {
		keep[k] = true
	}
	remaining := len(aisles)
	for _, k := range order {
		if remaining == 1 {
			break
		}
		needed := false
		for item, q := range inst.Aisles[k] {
			if supply[item]-q < demand[item] {
				needed = true
				break
			}
		}
		if needed {
			continue
		}
		for item, q := range inst.Aisles[k] {
			supply[item] -= q
		}
		keep[k] = false
		remaining--
	}
	out := make([]int, 0, remaining)
	for _, k := range aisles {
		if keep[k] {
			out = append(out, k)
		}
	}
	return out
}
