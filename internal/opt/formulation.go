package opt

import (
	"fmt"
	"math"
	"sort"

	"wavepick/internal/wave"
)

// Variant selects how per-item supply is modeled.
type Variant string

const (
	// VariantPooled bounds demand by the summed supply of visited aisles.
	VariantPooled Variant = "pooled"
	// VariantCapacity routes supply through per-(aisle,item) allocation
	// variables z <= supply*y.
	VariantCapacity Variant = "capacity"
)

// VarKind is the integrality of a variable.
type VarKind uint8

const (
	Binary VarKind = iota
	Integer
)

// Var is one column of the formulation. Upper is its upper bound; every
// lower bound is zero.
type Var struct {
	Name  string
	Kind  VarKind
	Upper float64
}

// Term is a coefficient on the variable with index Var.
type Term struct {
	Var  int
	Coef float64
}

// Row is a ranged linear constraint Lo <= sum(Terms) <= Hi. Infinite bounds
// mean the side is absent.
type Row struct {
	Name  string
	Terms []Term
	Lo    float64
	Hi    float64
}

// Alloc identifies an allocation variable z_{k,j}.
type Alloc struct {
	Aisle int
	Item  int
	Var   int
}

// Formulation is the integer program built once per solve. Only the
// aisle-count bounds and the aisle cost change between oracle calls.
type Formulation struct {
	inst    *wave.Instance
	variant Variant

	vars  []Var
	x     []int
	y     []int
	z     []Alloc
	obj   []Term
	rows  []Row
	units []float64 // per order, objective coefficient of x_i

	aisleRow  int
	aisleCost float64
}

// Build constructs the formulation for inst. The aisle-count row starts at
// [1, nAisles].
func Build(inst *wave.Instance, variant Variant) *Formulation {
	if variant == "" {
		variant = VariantPooled
	}
	f := &Formulation{inst: inst, variant: variant}
	nOrders, nAisles := len(inst.Orders), len(inst.Aisles)

	f.x = make([]int, nOrders)
	f.units = make([]float64, nOrders)
	for i := range inst.Orders {
		f.x[i] = f.addVar(fmt.Sprintf("x_%d", i), Binary, 1)
	}
	f.y = make([]int, nAisles)
	for k := range inst.Aisles {
		f.y[k] = f.addVar(fmt.Sprintf("y_%d", k), Binary, 1)
	}

	// objective and wave band share the same expression
	picked := make([]Term, 0, nOrders)
	for i, o := range inst.Orders {
		u := float64(o.Units())
		f.units[i] = u
		if u > 0 {
			picked = append(picked, Term{Var: f.x[i], Coef: u})
		}
	}
	f.obj = picked
	f.rows = append(f.rows, Row{Name: "wave_units", Terms: picked, Lo: float64(inst.WaveSizeLB), Hi: float64(inst.WaveSizeUB)})

	aisles := make([]Term, nAisles)
	for k := range inst.Aisles {
		aisles[k] = Term{Var: f.y[k], Coef: 1}
	}
	f.aisleRow = len(f.rows)
	f.rows = append(f.rows, Row{Name: "aisle_count", Terms: aisles, Lo: 1, Hi: float64(nAisles)})

	demand := make([][]Term, inst.NItems)
	for i, o := range inst.Orders {
		for _, item := range sortedItems(o) {
			demand[item] = append(demand[item], Term{Var: f.x[i], Coef: float64(o[item])})
		}
	}
	supply := make([][]Term, inst.NItems)
	for k, a := range inst.Aisles {
		for _, item := range sortedItems(a) {
			qty := float64(a[item])
			if variant == VariantCapacity {
				z := f.addVar(fmt.Sprintf("z_%d_%d", k, item), Integer, qty)
				f.z = append(f.z, Alloc{Aisle: k, Item: item, Var: z})
				f.rows = append(f.rows, Row{
					Name:  fmt.Sprintf("capacity_%d_%d", k, item),
					Terms: []Term{{Var: z, Coef: 1}, {Var: f.y[k], Coef: -qty}},
					Lo:    math.Inf(-1),
					Hi:    0,
				})
				supply[item] = append(supply[item], Term{Var: z, Coef: -1})
			} else {
				supply[item] = append(supply[item], Term{Var: f.y[k], Coef: -qty})
			}
		}
	}
	for item := 0; item < inst.NItems; item++ {
		if len(demand[item]) == 0 {
			continue
		}
		terms := append(append([]Term(nil), demand[item]...), supply[item]...)
		f.rows = append(f.rows, Row{Name: fmt.Sprintf("availability_%d", item), Terms: terms, Lo: math.Inf(-1), Hi: 0})
	}
	return f
}

func (f *Formulation) addVar(name string, kind VarKind, upper float64) int {
	f.vars = append(f.vars, Var{Name: name, Kind: kind, Upper: upper})
	return len(f.vars) - 1
}

func sortedItems(m map[int]int) []int {
	items := make([]int, 0, len(m))
	for item := range m {
		items = append(items, item)
	}
	sort.Ints(items)
	return items
}

// SetAisleCount fixes sum(y) = h.
func (f *Formulation) SetAisleCount(h int) { f.SetAisleRange(h, h) }

// SetAisleRange bounds lb <= sum(y) <= ub in place.
func (f *Formulation) SetAisleRange(lb, ub int) {
	f.rows[f.aisleRow].Lo = float64(lb)
	f.rows[f.aisleRow].Hi = float64(ub)
}

// AisleBounds returns the current aisle-count bounds.
func (f *Formulation) AisleBounds() (lb, ub int) {
	r := f.rows[f.aisleRow]
	return int(r.Lo), int(r.Hi)
}

// SetAisleCost subtracts lambda per visited aisle from the objective.
func (f *Formulation) SetAisleCost(lambda float64) { f.aisleCost = lambda }

func (f *Formulation) AisleCost() float64 { return f.aisleCost }

func (f *Formulation) Instance() *wave.Instance { return f.inst }
func (f *Formulation) Variant() Variant         { return f.variant }
func (f *Formulation) NumVars() int             { return len(f.vars) }
func (f *Formulation) Var(i int) Var            { return f.vars[i] }
func (f *Formulation) Rows() []Row              { return f.rows }
func (f *Formulation) OrderVars() []int         { return f.x }
func (f *Formulation) AisleVars() []int         { return f.y }
func (f *Formulation) Allocations() []Alloc     { return f.z }

// OrderUnits is the objective coefficient of order i.
func (f *Formulation) OrderUnits(i int) float64 { return f.units[i] }

// Objective returns the current objective terms, including the aisle cost
// when one is set.
func (f *Formulation) Objective() []Term {
	if f.aisleCost == 0 {
		return f.obj
	}
	out := make([]Term, 0, len(f.obj)+len(f.y))
	out = append(out, f.obj...)
	for _, v := range f.y {
		out = append(out, Term{Var: v, Coef: -f.aisleCost})
	}
	return out
}

// Evaluate computes the objective for a full assignment.
func (f *Formulation) Evaluate(values []float64) float64 {
	total := 0.0
	for _, t := range f.Objective() {
		if t.Var < len(values) {
			total += t.Coef * values[t.Var]
		}
	}
	return total
}
