package exhaustive

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// simplexTolerance is handed to gonum's simplex
const simplexTolerance = 1e-10

type lpOutcome int

const (
	lpSolved lpOutcome = iota
	lpInfeasible
	lpUnbounded
)

// continuous solves the LP left over once every binary is fixed.
// values must hold the binary assignment; fixed marks the variables already decided.
// cost is the per-variable objective coefficient in maximize sense.
// On lpSolved every continuous value has been written into values.
type continuous struct {
	vars   []formulation.Variable
	rows   []formulation.Constraint
	cost   []float64
	values []float64
	fixed  []bool
	lower  []float64
	upper  []float64
}

func (p *continuous) solve() (lpOutcome, error) {
	p.lower = make([]float64, len(p.vars))
	p.upper = make([]float64, len(p.vars))
	for i, v := range p.vars {
		p.lower[i], p.upper[i] = v.Lower, v.Upper
	}

	active, ok := p.presolve()
	if !ok {
		return lpInfeasible, nil
	}

	inRows := make([]bool, len(p.vars))
	for _, r := range active {
		for _, t := range r.Terms {
			if !p.fixed[t.Var] {
				inRows[t.Var] = true
			}
		}
	}
	// Free-standing variables go to whichever bound the objective prefers.
	for i := range p.vars {
		if p.fixed[i] || inRows[i] {
			continue
		}
		if p.cost[i] > 0 {
			if math.IsInf(p.upper[i], 1) {
				return lpUnbounded, nil
			}
			p.fix(i, p.upper[i])
		} else {
			p.fix(i, p.lower[i])
		}
	}
	if len(active) == 0 {
		return lpSolved, nil
	}
	return p.simplex(active, inRows)
}

func (p *continuous) fix(i int, v float64) {
	p.values[i] = v
	p.fixed[i] = true
}

// presolve substitutes fixed variables, checks constant rows and folds singleton rows
// into variable bounds until nothing changes. It returns the rows that still couple
// two or more free variables.
func (p *continuous) presolve() ([]formulation.Constraint, bool) {
	active := p.rows
	for changed := true; changed; {
		changed = false
		next := make([]formulation.Constraint, 0, len(active))
		for _, r := range active {
			rhs, live := p.residual(r)
			switch len(live) {
			case 0:
				if !holds(0, r.Sense, rhs) {
					return nil, false
				}
			case 1:
				fixedNow, ok := p.tighten(live[0], r.Sense, rhs)
				if !ok {
					return nil, false
				}
				changed = changed || fixedNow
			default:
				next = append(next, r)
			}
		}
		active = next
	}
	return active, true
}

func (p *continuous) residual(r formulation.Constraint) (float64, []formulation.Term) {
	rhs := r.RHS
	var live []formulation.Term
	for _, t := range r.Terms {
		if p.fixed[t.Var] {
			rhs -= t.Coef * p.values[t.Var]
		} else {
			live = append(live, t)
		}
	}
	return rhs, live
}

// tighten applies coef*x (sense) rhs to the bounds of x and fixes x when they meet
func (p *continuous) tighten(t formulation.Term, sense formulation.Sense, rhs float64) (bool, bool) {
	i := int(t.Var)
	bound := rhs / t.Coef
	lo, up := p.lower[i], p.upper[i]

	switch {
	case sense == formulation.Equal:
		lo, up = math.Max(lo, bound), math.Min(up, bound)
	case (sense == formulation.LessOrEqual) == (t.Coef > 0):
		up = math.Min(up, bound)
	default:
		lo = math.Max(lo, bound)
	}

	slack := feasibilityTolerance * (1 + math.Abs(bound))
	if lo > up+slack {
		return false, false
	}
	if up-lo <= slack {
		p.lower[i], p.upper[i] = lo, lo
		p.fix(i, lo)
		return true, true
	}
	p.lower[i], p.upper[i] = lo, up
	return false, true
}

// simplex solves the coupled rows with gonum in standard form:
// minimize c'y subject to Ay = b, y >= 0, where y is x shifted to its lower bound
// followed by slack columns.
func (p *continuous) simplex(active []formulation.Constraint, inRows []bool) (lpOutcome, error) {
	var structural []int
	column := make(map[int]int)
	for i := range p.vars {
		if inRows[i] {
			column[i] = len(structural)
			structural = append(structural, i)
		}
	}

	inequalities := 0
	for _, r := range active {
		if r.Sense != formulation.Equal {
			inequalities++
		}
	}
	bounded := 0
	for _, i := range structural {
		if !math.IsInf(p.upper[i], 1) {
			bounded++
		}
	}

	rows := len(active) + bounded
	cols := len(structural) + inequalities + bounded
	// gonum needs strictly more columns than rows; each pad adds the row z + w = 0.
	pads := 0
	if cols <= rows {
		pads = rows - cols + 1
	}
	rows += pads
	cols += 2 * pads

	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)
	for k, i := range structural {
		c[k] = -p.cost[i]
	}

	slack := len(structural)
	for ri, r := range active {
		rhs, live := p.residual(r)
		for _, t := range live {
			A.Set(ri, column[int(t.Var)], t.Coef)
			rhs -= t.Coef * p.lower[t.Var]
		}
		switch r.Sense {
		case formulation.LessOrEqual:
			A.Set(ri, slack, 1)
			slack++
		case formulation.GreaterOrEqual:
			A.Set(ri, slack, -1)
			slack++
		}
		b[ri] = rhs
	}
	ri := len(active)
	for k, i := range structural {
		if math.IsInf(p.upper[i], 1) {
			continue
		}
		A.Set(ri, k, 1)
		A.Set(ri, slack, 1)
		b[ri] = p.upper[i] - p.lower[i]
		slack++
		ri++
	}
	for ; ri < rows; ri++ {
		A.Set(ri, slack, 1)
		A.Set(ri, slack+1, 1)
		slack += 2
	}

	for r := 0; r < rows; r++ {
		if b[r] >= 0 {
			continue
		}
		b[r] = -b[r]
		for col := 0; col < cols; col++ {
			if v := A.At(r, col); v != 0 {
				A.Set(r, col, -v)
			}
		}
	}

	_, y, err := lp.Simplex(c, A, b, simplexTolerance, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return lpInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return lpUnbounded, nil
	case err != nil:
		return lpInfeasible, fmt.Errorf("simplex on %dx%d system: %w", rows, cols, err)
	}

	for k, i := range structural {
		p.fix(i, p.lower[i]+y[k])
	}
	return lpSolved, nil
}

func holds(lhs float64, sense formulation.Sense, rhs float64) bool {
	slack := feasibilityTolerance * (1 + math.Abs(rhs))
	switch sense {
	case formulation.LessOrEqual:
		return lhs <= rhs+slack
	case formulation.GreaterOrEqual:
		return lhs >= rhs-slack
	default:
		return math.Abs(lhs-rhs) <= slack
	}
}
