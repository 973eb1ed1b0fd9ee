// Package wave holds the wave-picking instance model together with the
// solver-independent feasibility check and ratio objective.
package wave

import (
	"errors"
	"fmt"
)

// ErrInvalidInstance is wrapped by every Validate failure.
var ErrInvalidInstance = errors.New("invalid instance")

// Order maps item id to required quantity. The order id is its index in
// Instance.Orders.
type Order map[int]int

// Aisle maps item id to available quantity. The aisle id is its index in
// Instance.Aisles.
type Aisle map[int]int

// Units returns the total quantity across all items of the order.
func (o Order) Units() int {
	total := 0
	for _, q := range o {
		total += q
	}
	return total
}

// Units returns the total quantity stocked in the aisle.
func (a Aisle) Units() int {
	total := 0
	for _, q := range a {
		total += q
	}
	return total
}

// Instance is one wave-picking problem: the orders to choose from, the
// aisles stocking their items, the item id range and the band the total
// picked units must fall in.
type Instance struct {
	Orders     []Order
	Aisles     []Aisle
	NItems     int
	WaveSizeLB int
	WaveSizeUB int
}

// NewInstance builds and validates an instance.
func NewInstance(orders []Order, aisles []Aisle, nItems, lb, ub int) (*Instance, error) {
	inst := &Instance{Orders: orders, Aisles: aisles, NItems: nItems, WaveSizeLB: lb, WaveSizeUB: ub}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// Validate checks the item ids and quantities, the wave band and the
// instance dimensions against DefaultLimits. Every error wraps
// ErrInvalidInstance.
func (inst *Instance) Validate() error {
	if inst == nil {
		return fmt.Errorf("%w: instance is nil", ErrInvalidInstance)
	}
	if inst.NItems < 0 {
		return fmt.Errorf("%w: nItems must be >= 0 (got %d)", ErrInvalidInstance, inst.NItems)
	}
	if err := DefaultLimits.Check(len(inst.Orders), inst.NItems, len(inst.Aisles)); err != nil {
		return err
	}
	if inst.WaveSizeLB < 0 || inst.WaveSizeUB < 0 {
		return fmt.Errorf("%w: wave bounds must be >= 0 (got [%d,%d])", ErrInvalidInstance, inst.WaveSizeLB, inst.WaveSizeUB)
	}
	if inst.WaveSizeLB > inst.WaveSizeUB {
		return fmt.Errorf("%w: waveSizeLB %d > waveSizeUB %d", ErrInvalidInstance, inst.WaveSizeLB, inst.WaveSizeUB)
	}
	for i, o := range inst.Orders {
		if err := checkItems(o, inst.NItems); err != nil {
			return fmt.Errorf("%w: order %d: %v", ErrInvalidInstance, i, err)
		}
	}
	for k, a := range inst.Aisles {
		if err := checkItems(a, inst.NItems); err != nil {
			return fmt.Errorf("%w: aisle %d: %v", ErrInvalidInstance, k, err)
		}
	}
	return nil
}

func checkItems(m map[int]int, nItems int) error {
	for item, q := range m {
		if item < 0 || item >= nItems {
			return fmt.Errorf("item %d out of range [0,%d)", item, nItems)
		}
		if q <= 0 {
			return fmt.Errorf("item %d quantity must be > 0 (got %d)", item, q)
		}
	}
	return nil
}

// TotalUnits is the sum of all order units, an upper bound on any wave.
func (inst *Instance) TotalUnits() int {
	total := 0
	for _, o := range inst.Orders {
		total += o.Units()
	}
	return total
}

// Supply returns the per-item quantity available across the given aisles.
// Out-of-range aisle ids are ignored.
func (inst *Instance) Supply(aisles []int) []int {
	out := make([]int, inst.NItems)
	for _, k := range aisles {
		if k < 0 || k >= len(inst.Aisles) {
			continue
		}
		for item, q := range inst.Aisles[k] {
			out[item] += q
		}
	}
	return out
}

// Demand returns the per-item quantity required by the given orders.
// Out-of-range order ids are ignored.
func (inst *Instance) Demand(orders []int) []int {
	out := make([]int, inst.NItems)
	for _, i := range orders {
		if i < 0 || i >= len(inst.Orders) {
			continue
		}
		for item, q := range inst.Orders[i] {
			out[item] += q
		}
	}
	return out
}
