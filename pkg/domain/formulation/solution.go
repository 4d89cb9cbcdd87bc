package formulation

import (
	"context"
	"time"
)

// Status is the outcome classification of a solve
type Status int

const (
	StatusUnknown Status = iota
	// Optimal: proven optimal incumbent.
	Optimal
	// Suboptimal: the time budget ran out and the best incumbent found is returned.
	Suboptimal
	// Infeasible: the constraints admit no solution.
	Infeasible
	// Unbounded: the objective can be improved without limit.
	Unbounded
	// NoSolution: the time budget ran out before any incumbent was found.
	NoSolution
)

// String method for Status enum
func (s Status) String() string {
	switch s {
	case Optimal:
		return "Optimal"
	case Suboptimal:
		return "Suboptimal"
	case Infeasible:
		return "Infeasible"
	case Unbounded:
		return "Unbounded"
	case NoSolution:
		return "NoSolution"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name in JSON output
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasIncumbent reports whether a solution with values accompanies the status
func (s Status) HasIncumbent() bool {
	return s == Optimal || s == Suboptimal
}

// Solution is what a Solver returns: one value per variable plus the status
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	RunTime   time.Duration
	Solver    string
}

// Value returns the value of a variable, 0 when the solution carries no values
func (s *Solution) Value(id VarID) float64 {
	if s == nil || int(id) >= len(s.Values) || id < 0 {
		return 0
	}
	return s.Values[id]
}

// SolveOptions carries the caller-supplied solve budget
type SolveOptions struct {
	// TimeLimit bounds the solve; zero means no limit.
	TimeLimit time.Duration
	// RelativeGap is the accepted MIP optimality gap; zero asks for proven optimality.
	RelativeGap float64
}

// Solver is the contract every solver adapter implements.
// On timeout an adapter returns its best incumbent with status Suboptimal,
// or NoSolution when it has none. Errors are reserved for adapter failures.
type Solver interface {
	Name() string
	Solve(ctx context.Context, f *Formulation, opts SolveOptions) (*Solution, error)
}
