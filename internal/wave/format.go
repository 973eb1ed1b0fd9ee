package wave

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Challenge text format:
//
//	nOrders nItems nAisles
//	k item qty item qty ...   (one line per order)
//	k item qty item qty ...   (one line per aisle)
//	LB UB
//
// Parsing is whitespace-token based so line breaks are not significant.

// preallocCap bounds up-front allocation from declared counts.
const preallocCap = 1024

type tokenReader struct {
	sc   *bufio.Scanner
	read int
	// maxEntries caps the item/quantity pairs declared on one line; zero
	// means no cap.
	maxEntries int
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)
	return &tokenReader{sc: sc}
}

func (t *tokenReader) next(what string) (int, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unexpected end of input reading %s (token %d)", what, t.read+1)
	}
	t.read++
	v, err := strconv.Atoi(t.sc.Text())
	if err != nil {
		return 0, fmt.Errorf("token %d (%s): %w", t.read, what, err)
	}
	return v, nil
}

func (t *tokenReader) inventory(what string) (map[int]int, error) {
	n, err := t.next(what + " item count")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%s: negative item count %d", what, n)
	}
	if t.maxEntries > 0 && n > t.maxEntries {
		return nil, fmt.Errorf("%w: %s: %d entries exceeds the limit of %d", ErrInvalidInstance, what, n, t.maxEntries)
	}
	m := make(map[int]int, min(n, 64))
	for p := 0; p < n; p++ {
		item, err := t.next(what + " item")
		if err != nil {
			return nil, err
		}
		qty, err := t.next(what + " quantity")
		if err != nil {
			return nil, err
		}
		m[item] += qty
	}
	return m, nil
}

// Parse reads an instance in challenge text format under DefaultLimits.
func Parse(r io.Reader) (*Instance, error) {
	return ParseLimited(r, DefaultLimits)
}

// ParseLimited reads an instance in challenge text format and validates it.
// The header counts are checked against l before anything is read, and
// slices grow with the data actually present rather than the declared
// counts.
func ParseLimited(r io.Reader, l Limits) (*Instance, error) {
	t := newTokenReader(r)
	t.maxEntries = l.MaxItems
	nOrders, err := t.next("order count")
	if err != nil {
		return nil, err
	}
	nItems, err := t.next("item count")
	if err != nil {
		return nil, err
	}
	nAisles, err := t.next("aisle count")
	if err != nil {
		return nil, err
	}
	if err := l.Check(nOrders, nItems, nAisles); err != nil {
		return nil, err
	}
	orders := make([]Order, 0, min(nOrders, preallocCap))
	for i := 0; i < nOrders; i++ {
		m, err := t.inventory(fmt.Sprintf("order %d", i))
		if err != nil {
			return nil, err
		}
		orders = append(orders, m)
	}
	aisles := make([]Aisle, 0, min(nAisles, preallocCap))
	for k := 0; k < nAisles; k++ {
		m, err := t.inventory(fmt.Sprintf("aisle %d", k))
		if err != nil {
			return nil, err
		}
		aisles = append(aisles, m)
	}
	lb, err := t.next("wave size lower bound")
	if err != nil {
		return nil, err
	}
	ub, err := t.next("wave size upper bound")
	if err != nil {
		return nil, err
	}
	return NewInstance(orders, aisles, nItems, lb, ub)
}

// Write emits the instance in challenge text format. Items are written in
// ascending id order so output is deterministic.
func Write(w io.Writer, inst *Instance) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", len(inst.Orders), inst.NItems, len(inst.Aisles))
	for _, o := range inst.Orders {
		writeInventory(bw, o)
	}
	for _, a := range inst.Aisles {
		writeInventory(bw, a)
	}
	fmt.Fprintf(bw, "%d %d\n", inst.WaveSizeLB, inst.WaveSizeUB)
	return bw.Flush()
}

func writeInventory(bw *bufio.Writer, m map[int]int) {
	items := make([]int, 0, len(m))
	for item := range m {
		items = append(items, item)
	}
	sort.Ints(items)
	fmt.Fprintf(bw, "%d", len(items))
	for _, item := range items {
		fmt.Fprintf(bw, " %d %d", item, m[item])
	}
	bw.WriteString("\n")
}

// WriteSolution emits the order count, order ids, aisle count and aisle ids,
// one value per line.
func WriteSolution(w io.Writer, s Solution) error {
	s = s.Normalize()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(s.Orders))
	for _, i := range s.Orders {
		fmt.Fprintf(bw, "%d\n", i)
	}
	fmt.Fprintf(bw, "%d\n", len(s.Aisles))
	for _, k := range s.Aisles {
		fmt.Fprintf(bw, "%d\n", k)
	}
	return bw.Flush()
}

// ParseSolution reads the format produced by WriteSolution.
func ParseSolution(r io.Reader) (Solution, error) {
	t := newTokenReader(r)
	var s Solution
	n, err := t.next("order count")
	if err != nil {
		return s, err
	}
	for p := 0; p < n; p++ {
		id, err := t.next("order id")
		if err != nil {
			return s, err
		}
		s.Orders = append(s.Orders, id)
	}
	n, err = t.next("aisle count")
	if err != nil {
		return s, err
	}
	for p := 0; p < n; p++ {
		id, err := t.next("aisle id")
		if err != nil {
			return s, err
		}
		s.Aisles = append(s.Aisles, id)
	}
	return s, nil
}
