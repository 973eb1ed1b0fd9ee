package wave

import "sort"

// Solution is a wave: the selected order ids and the visited aisle ids.
type Solution struct {
	Orders []int `json:"orders"`
	Aisles []int `json:"aisles"`
}

// Empty reports whether either side of the wave is empty.
func (s Solution) Empty() bool { return len(s.Orders) == 0 || len(s.Aisles) == 0 }

// Normalize returns a copy with ids sorted and duplicates removed.
func (s Solution) Normalize() Solution {
	return Solution{Orders: uniqueSorted(s.Orders), Aisles: uniqueSorted(s.Aisles)}
}

func uniqueSorted(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// UnitsPicked sums the units of the selected orders. Unknown ids count zero.
func (inst *Instance) UnitsPicked(s Solution) int {
	total := 0
	for _, i := range uniqueSorted(s.Orders) {
		if i >= 0 && i < len(inst.Orders) {
			total += inst.Orders[i].Units()
		}
	}
	return total
}

// Feasible checks a wave against the instance without trusting whoever
// produced it. Empty selections and unknown ids are infeasible.
func (inst *Instance) Feasible(s Solution) bool {
	if inst == nil || s.Empty() {
		return false
	}
	s = s.Normalize()
	for _, i := range s.Orders {
		if i < 0 || i >= len(inst.Orders) {
			return false
		}
	}
	for _, k := range s.Aisles {
		if k < 0 || k >= len(inst.Aisles) {
			return false
		}
	}
	picked := inst.Demand(s.Orders)
	available := inst.Supply(s.Aisles)
	total := 0
	for _, q := range picked {
		total += q
	}
	if total < inst.WaveSizeLB || total > inst.WaveSizeUB {
		return false
	}
	for item := range picked {
		if picked[item] > available[item] {
			return false
		}
	}
	return true
}

// Ratio is units picked per visited aisle, 0 when either set is empty.
func (inst *Instance) Ratio(s Solution) float64 {
	if inst == nil || s.Empty() {
		return 0.0
	}
	aisles := len(uniqueSorted(s.Aisles))
	return float64(inst.UnitsPicked(s)) / float64(aisles)
}
