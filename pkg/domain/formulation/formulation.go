package formulation

import (
	"fmt"
	"math"
)

// Formulation is an immutable optimization problem instance.
// Accessors return copies; the zero value is an empty problem.
type Formulation struct {
	name        string
	variables   []Variable
	constraints []Constraint
	objective   Objective
	byName      map[string]VarID
}

// Name returns the problem name
func (f *Formulation) Name() string { return f.name }

// NumVariables returns the number of declared variables
func (f *Formulation) NumVariables() int { return len(f.variables) }

// NumConstraints returns the number of constraints
func (f *Formulation) NumConstraints() int { return len(f.constraints) }

// Variable returns the declaration of id
func (f *Formulation) Variable(id VarID) Variable { return f.variables[id] }

// Variables returns all variable declarations in id order
func (f *Formulation) Variables() []Variable {
	out := make([]Variable, len(f.variables))
	copy(out, f.variables)
	return out
}

// Lookup finds a variable by name
func (f *Formulation) Lookup(name string) (VarID, bool) {
	id, ok := f.byName[name]
	return id, ok
}

// Constraints returns all constraints in insertion order
func (f *Formulation) Constraints() []Constraint {
	out := make([]Constraint, len(f.constraints))
	for i, c := range f.constraints {
		out[i] = copyConstraint(c)
	}
	return out
}

// ConstraintsInFamily returns the constraints generated by one rule, in insertion order
func (f *Formulation) ConstraintsInFamily(family string) []Constraint {
	var out []Constraint
	for _, c := range f.constraints {
		if c.Family == family {
			out = append(out, copyConstraint(c))
		}
	}
	return out
}

// Objective returns the objective function
func (f *Formulation) Objective() Objective {
	terms := make([]Term, len(f.objective.Terms))
	copy(terms, f.objective.Terms)
	return Objective{Direction: f.objective.Direction, Terms: terms, Constant: f.objective.Constant}
}

// Binaries returns the ids of all binary variables
func (f *Formulation) Binaries() []VarID {
	var out []VarID
	for _, v := range f.variables {
		if v.Domain == Binary {
			out = append(out, v.ID)
		}
	}
	return out
}

// Violation describes a bound, integrality or constraint failure of a candidate solution
type Violation struct {
	Subject string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Subject, v.Detail)
}

// Check verifies bounds, integrality and every constraint against values
func (f *Formulation) Check(values []float64, tol float64) []Violation {
	if len(values) != len(f.variables) {
		return []Violation{{Subject: f.name, Detail: fmt.Sprintf("expected %d values, got %d", len(f.variables), len(values))}}
	}

	var violations []Violation
	for _, v := range f.variables {
		x := values[v.ID]
		if x < v.Lower-tol || x > v.Upper+tol {
			violations = append(violations, Violation{
				Subject: v.Name,
				Detail:  fmt.Sprintf("value %g outside [%g, %g]", x, v.Lower, v.Upper),
			})
		}
		if v.Domain == Binary && math.Abs(x-math.Round(x)) > tol {
			violations = append(violations, Violation{
				Subject: v.Name,
				Detail:  fmt.Sprintf("value %g is not integral", x),
			})
		}
	}
	for _, c := range f.constraints {
		if !c.Holds(values, tol) {
			violations = append(violations, Violation{
				Subject: c.Name,
				Detail:  fmt.Sprintf("lhs %g %s rhs %g violated", c.LHS(values), c.Sense, c.RHS),
			})
		}
	}
	return violations
}

func copyConstraint(c Constraint) Constraint {
	terms := make([]Term, len(c.Terms))
	copy(terms, c.Terms)
	c.Terms = terms
	return c
}
