package wave

import "fmt"

// Limits caps the dimensions of an instance. The formulation and the
// oracles allocate per item, order and aisle, so an unbounded count in a
// request is a way to exhaust memory.
type Limits struct {
	MaxItems  int `yaml:"maxItems"`
	MaxOrders int `yaml:"maxOrders"`
	MaxAisles int `yaml:"maxAisles"`
}

// DefaultLimits cover the challenge datasets with room to spare. They are
// also the ceiling Instance.Validate enforces; configured limits may only
// be tighter.
var DefaultLimits = Limits{MaxItems: 1 << 20, MaxOrders: 1 << 20, MaxAisles: 1 << 20}

// Validate checks that every limit is positive and within DefaultLimits.
func (l Limits) Validate() error {
	d := DefaultLimits
	if l.MaxItems <= 0 || l.MaxItems > d.MaxItems {
		return fmt.Errorf("maxItems must be in [1,%d] (got %d)", d.MaxItems, l.MaxItems)
	}
	if l.MaxOrders <= 0 || l.MaxOrders > d.MaxOrders {
		return fmt.Errorf("maxOrders must be in [1,%d] (got %d)", d.MaxOrders, l.MaxOrders)
	}
	if l.MaxAisles <= 0 || l.MaxAisles > d.MaxAisles {
		return fmt.Errorf("maxAisles must be in [1,%d] (got %d)", d.MaxAisles, l.MaxAisles)
	}
	return nil
}

// Check rejects negative counts and counts above the limits.
func (l Limits) Check(nOrders, nItems, nAisles int) error {
	switch {
	case nOrders < 0 || nItems < 0 || nAisles < 0:
		return fmt.Errorf("%w: negative count (orders %d, items %d, aisles %d)", ErrInvalidInstance, nOrders, nItems, nAisles)
	case nItems > l.MaxItems:
		return fmt.Errorf("%w: %d items exceeds the limit of %d", ErrInvalidInstance, nItems, l.MaxItems)
	case nOrders > l.MaxOrders:
		return fmt.Errorf("%w: %d orders exceeds the limit of %d", ErrInvalidInstance, nOrders, l.MaxOrders)
	case nAisles > l.MaxAisles:
		return fmt.Errorf("%w: %d aisles exceeds the limit of %d", ErrInvalidInstance, nAisles, l.MaxAisles)
	}
	return nil
}
