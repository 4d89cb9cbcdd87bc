// Package allocation defines the failure taxonomy shared by the model builder,
// the solver adapters and the result interpreter.
package allocation

import (
	"errors"
	"fmt"
)

// Kind classifies an allocation failure
type Kind int

const (
	// MalformedInput: a required fact is missing or invalid and no safe default exists.
	MalformedInput Kind = iota + 1
	// InfeasibleModel: the constraints admit no solution.
	InfeasibleModel
	// SolverTimeout: the time budget ran out. With an incumbent this is a labelled,
	// suboptimal success and never reaches the caller as an error.
	SolverTimeout
	// FormulationDefect: an internal invariant was violated; a programming error.
	FormulationDefect
)

// String method for Kind enum
func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "MalformedInput"
	case InfeasibleModel:
		return "InfeasibleModel"
	case SolverTimeout:
		return "SolverTimeout"
	case FormulationDefect:
		return "FormulationDefect"
	default:
		return "Unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrInfeasibleModel   = errors.New("infeasible model")
	ErrSolverTimeout     = errors.New("solver timeout")
	ErrFormulationDefect = errors.New("formulation defect")
)

func (k Kind) sentinel() error {
	switch k {
	case MalformedInput:
		return ErrMalformedInput
	case InfeasibleModel:
		return ErrInfeasibleModel
	case SolverTimeout:
		return ErrSolverTimeout
	case FormulationDefect:
		return ErrFormulationDefect
	default:
		return nil
	}
}

// Error carries the kind of failure and the operation that produced it
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Malformed builds a MalformedInput error
func Malformed(op, format string, args ...any) *Error {
	return &Error{Kind: MalformedInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// Infeasible builds an InfeasibleModel error
func Infeasible(op, format string, args ...any) *Error {
	return &Error{Kind: InfeasibleModel, Op: op, Err: fmt.Errorf(format, args...)}
}

// Timeout builds a SolverTimeout error
func Timeout(op, format string, args ...any) *Error {
	return &Error{Kind: SolverTimeout, Op: op, Err: fmt.Errorf(format, args...)}
}

// Defect builds a FormulationDefect error
func Defect(op, format string, args ...any) *Error {
	return &Error{Kind: FormulationDefect, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
