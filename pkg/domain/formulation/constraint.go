package formulation

import (
	"math"
)

// Sense is the relational operator of a linear constraint
type Sense int

const (
	LessOrEqual Sense = iota
	GreaterOrEqual
	Equal
)

// String method for Sense enum
func (s Sense) String() string {
	switch s {
	case LessOrEqual:
		return "<="
	case GreaterOrEqual:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Term is coefficient * variable
type Term struct {
	Var  VarID
	Coef float64
}

// Constraint is sum(terms) <sense> RHS. Family groups constraints generated by the same rule.
type Constraint struct {
	Name   string
	Family string
	Terms  []Term
	Sense  Sense
	RHS    float64
}

// LHS evaluates the left-hand side at the given variable values
func (c Constraint) LHS(values []float64) float64 {
	return evaluate(c.Terms, values)
}

// Holds reports whether the constraint is satisfied within an absolute tolerance
// scaled by the magnitude of the right-hand side.
func (c Constraint) Holds(values []float64, tol float64) bool {
	lhs := c.LHS(values)
	slack := tol * (1 + math.Abs(c.RHS))
	switch c.Sense {
	case LessOrEqual:
		return lhs <= c.RHS+slack
	case GreaterOrEqual:
		return lhs >= c.RHS-slack
	default:
		return math.Abs(lhs-c.RHS) <= slack
	}
}

// Coefficient returns the coefficient of v in the constraint, 0 if absent
func (c Constraint) Coefficient(v VarID) float64 {
	var total float64
	for _, t := range c.Terms {
		if t.Var == v {
			total += t.Coef
		}
	}
	return total
}

// Direction is the optimization sense of the objective
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

// String method for Direction enum
func (d Direction) String() string {
	if d == Minimize {
		return "Minimize"
	}
	return "Maximize"
}

// Objective is a linear function to maximize or minimize
type Objective struct {
	Direction Direction
	Terms     []Term
	Constant  float64
}

// Evaluate returns the objective value at the given variable values
func (o Objective) Evaluate(values []float64) float64 {
	return o.Constant + evaluate(o.Terms, values)
}

// Coefficient returns the objective coefficient of v, 0 if absent
func (o Objective) Coefficient(v VarID) float64 {
	var total float64
	for _, t := range o.Terms {
		if t.Var == v {
			total += t.Coef
		}
	}
	return total
}

func evaluate(terms []Term, values []float64) float64 {
	var total float64
	for _, t := range terms {
		total += t.Coef * values[t.Var]
	}
	return total
}
