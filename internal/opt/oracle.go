package opt

import (
	"context"
	"errors"
	"time"
)

// ErrOracle wraps any failure raised by an oracle backend.
var ErrOracle = errors.New("oracle failure")

type Status uint8

const (
	StatusUnknown Status = iota
	StatusOptimal
	// StatusFeasible means a limit was hit with an incumbent available.
	StatusFeasible
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// HasSolution reports whether Values carry an assignment.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusFeasible }

type OracleParams struct {
	TimeLimit time.Duration
	// Gap is the relative optimality gap the oracle may stop at.
	Gap float64
	// Threads is a parallelism hint; <= 0 lets the backend decide.
	Threads int
}

type OracleResult struct {
	Status    Status
	Objective float64
	// Values is indexed like the formulation's variables.
	Values []float64
}

// Oracle solves a formulation under its current bounds. Calls against one
// formulation are never concurrent.
type Oracle interface {
	Name() string
	Solve(ctx context.Context, f *Formulation, p OracleParams) (OracleResult, error)
	// Release frees any backend state tied to f. Called once per solve on
	// every exit path.
	Release(f *Formulation)
}
