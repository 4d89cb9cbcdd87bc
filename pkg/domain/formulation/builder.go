package formulation

import (
	"errors"
	"fmt"
	"math"
)

// Builder accumulates variables, constraints and the objective, then produces an
// immutable Formulation. The first error encountered is reported by Build.
type Builder struct {
	name        string
	variables   []Variable
	constraints []Constraint
	objective   Objective
	byName      map[string]VarID
	err         error
}

// NewBuilder creates a builder for a named problem
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		byName: make(map[string]VarID),
	}
}

// AddVariable declares a variable and returns its id. Binary bounds must lie within [0, 1].
func (b *Builder) AddVariable(name string, domain Domain, lower, upper float64) VarID {
	id := VarID(len(b.variables))
	if b.err != nil {
		return id
	}
	_, duplicate := b.byName[name]
	switch {
	case name == "":
		b.err = errors.New("variable name cannot be empty")
	case duplicate:
		b.err = fmt.Errorf("duplicate variable %q", name)
	case math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0):
		b.err = fmt.Errorf("variable %q has invalid bounds [%g, %g]", name, lower, upper)
	case lower > upper:
		b.err = fmt.Errorf("variable %q lower bound %g exceeds upper bound %g", name, lower, upper)
	case domain == Binary && (lower < 0 || upper > 1):
		b.err = fmt.Errorf("binary variable %q bounds [%g, %g] outside [0, 1]", name, lower, upper)
	}

	b.variables = append(b.variables, Variable{ID: id, Name: name, Domain: domain, Lower: lower, Upper: upper})
	b.byName[name] = id
	return id
}

// AddConstraint appends a linear constraint. Terms with zero coefficients are dropped.
func (b *Builder) AddConstraint(c Constraint) {
	if b.err != nil {
		return
	}
	if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
		b.err = fmt.Errorf("constraint %q has non-finite rhs %g", c.Name, c.RHS)
		return
	}

	terms := make([]Term, 0, len(c.Terms))
	for _, t := range c.Terms {
		if err := b.checkTerm(c.Name, t); err != nil {
			b.err = err
			return
		}
		if t.Coef != 0 {
			terms = append(terms, t)
		}
	}
	c.Terms = terms
	b.constraints = append(b.constraints, c)
}

// SetObjective replaces the objective function
func (b *Builder) SetObjective(direction Direction, terms []Term, constant float64) {
	if b.err != nil {
		return
	}
	kept := make([]Term, 0, len(terms))
	for _, t := range terms {
		if err := b.checkTerm("objective", t); err != nil {
			b.err = err
			return
		}
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	b.objective = Objective{Direction: direction, Terms: kept, Constant: constant}
}

// Build returns the finished formulation. The builder must not be reused afterwards.
func (b *Builder) Build() (*Formulation, error) {
	if b.err != nil {
		return nil, fmt.Errorf("formulation %s: %w", b.name, b.err)
	}

	f := &Formulation{
		name:        b.name,
		variables:   make([]Variable, len(b.variables)),
		constraints: make([]Constraint, len(b.constraints)),
		objective:   Objective{Direction: b.objective.Direction, Constant: b.objective.Constant},
		byName:      make(map[string]VarID, len(b.byName)),
	}
	copy(f.variables, b.variables)
	f.objective.Terms = append([]Term(nil), b.objective.Terms...)
	for i, c := range b.constraints {
		f.constraints[i] = copyConstraint(c)
	}
	for name, id := range b.byName {
		f.byName[name] = id
	}
	return f, nil
}

func (b *Builder) checkTerm(owner string, t Term) error {
	if t.Var < 0 || int(t.Var) >= len(b.variables) {
		return fmt.Errorf("%s references unknown variable %d", owner, t.Var)
	}
	if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
		return fmt.Errorf("%s has non-finite coefficient %g for %s", owner, t.Coef, b.variables[t.Var].Name)
	}
	return nil
}
