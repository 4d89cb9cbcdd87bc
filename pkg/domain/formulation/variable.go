package formulation

import "math"

// VarID indexes a variable inside its Formulation
type VarID int

// Domain is the value domain of a variable
type Domain int

const (
	Continuous Domain = iota
	Binary
)

// String method for Domain enum
func (d Domain) String() string {
	switch d {
	case Continuous:
		return "Continuous"
	case Binary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Variable is a decision variable declaration
type Variable struct {
	ID     VarID
	Name   string
	Domain Domain
	Lower  float64
	Upper  float64
}

// Fixed reports whether the bounds leave a single admissible value
func (v Variable) Fixed() bool {
	return v.Lower == v.Upper
}

// Infinity is the upper bound of a variable that has none
var Infinity = math.Inf(1)
