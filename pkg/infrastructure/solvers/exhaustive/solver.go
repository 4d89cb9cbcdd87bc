// Package exhaustive is a reference solver for small allocation instances. It
// enumerates every assignment of the free binary variables and solves the
// continuous remainder exactly with gonum's simplex, so its answers are proven
// optimal. Instances with more free binaries than the configured limit are refused.
package exhaustive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// Name identifies the solver in solutions and settings
const Name = "exhaustive"

// DefaultMaxBinaries bounds the enumeration to about a million candidates
const DefaultMaxBinaries = 20

// feasibilityTolerance is the relative slack allowed on constraint checks
const feasibilityTolerance = 1e-7

// ErrTooLarge is returned when an instance has more free binaries than the limit
var ErrTooLarge = errors.New("too many binary variables for exhaustive search")

// Solver enumerates binary assignments
type Solver struct {
	maxBinaries int
	logger      *zap.Logger
}

// Option configures a Solver
type Option func(*Solver)

// WithMaxBinaries overrides DefaultMaxBinaries
func WithMaxBinaries(n int) Option {
	return func(s *Solver) {
		s.maxBinaries = n
	}
}

// New creates an exhaustive solver
func New(logger *zap.Logger, opts ...Option) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Solver{maxBinaries: DefaultMaxBinaries, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify interface compliance
var _ formulation.Solver = (*Solver)(nil)

// Name returns the solver name
func (s *Solver) Name() string { return Name }

// Solve searches every binary assignment. When opts.TimeLimit or ctx expires first,
// the best incumbent so far is returned as Suboptimal, or NoSolution without one.
func (s *Solver) Solve(ctx context.Context, f *formulation.Formulation, opts formulation.SolveOptions) (*formulation.Solution, error) {
	if f == nil {
		return nil, fmt.Errorf("exhaustive: formulation cannot be nil")
	}
	start := time.Now()
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	vars := f.Variables()
	objective := f.Objective()
	cost := make([]float64, len(vars))
	for _, t := range objective.Terms {
		cost[t.Var] += t.Coef
	}
	if objective.Direction == formulation.Minimize {
		for i := range cost {
			cost[i] = -cost[i]
		}
	}

	base := make([]float64, len(vars))
	var free []formulation.VarID
	for _, v := range vars {
		if v.Domain != formulation.Binary {
			continue
		}
		if v.Fixed() {
			base[v.ID] = v.Lower
		} else {
			free = append(free, v.ID)
		}
	}
	if len(free) > s.maxBinaries {
		return nil, fmt.Errorf("exhaustive: %d free binaries exceed the limit of %d: %w", len(free), s.maxBinaries, ErrTooLarge)
	}

	binaryRows, mixedRows := splitRows(f, vars)

	var (
		best      []float64
		bestScore float64
		explored  int
	)
	done := func(status formulation.Status) *formulation.Solution {
		sol := &formulation.Solution{Status: status, RunTime: time.Since(start), Solver: Name}
		if best != nil {
			sol.Values = best
			sol.Objective = objective.Evaluate(best)
		}
		s.logger.Debug("exhaustive search finished",
			zap.Stringer("status", status),
			zap.Int("binaries", len(free)),
			zap.Int("explored", explored),
			zap.Duration("runTime", sol.RunTime),
		)
		return sol
	}

	total := uint64(1) << uint(len(free))
	for mask := uint64(0); mask < total; mask++ {
		if err := ctx.Err(); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if best != nil {
				return done(formulation.Suboptimal), nil
			}
			return done(formulation.NoSolution), nil
		}
		explored++

		values := make([]float64, len(vars))
		copy(values, base)
		for bit, id := range free {
			if mask&(1<<uint(bit)) != 0 {
				values[id] = 1
			}
		}
		if !rowsHold(binaryRows, values) {
			continue
		}

		fixed := make([]bool, len(vars))
		for _, v := range vars {
			fixed[v.ID] = v.Domain == formulation.Binary
		}
		sub := &continuous{vars: vars, rows: mixedRows, cost: cost, values: values, fixed: fixed}
		outcome, err := sub.solve()
		if err != nil {
			return nil, fmt.Errorf("exhaustive: %w", err)
		}
		switch outcome {
		case lpInfeasible:
			continue
		case lpUnbounded:
			return done(formulation.Unbounded), nil
		}

		if violations := f.Check(values, feasibilityTolerance*10); len(violations) > 0 {
			s.logger.Debug("discarding numerically infeasible candidate",
				zap.Uint64("mask", mask), zap.Stringer("first", violations[0]))
			continue
		}
		score := 0.0
		for i, v := range values {
			score += cost[i] * v
		}
		if best == nil || improves(score, bestScore) {
			best, bestScore = values, score
		}
	}

	if best == nil {
		return done(formulation.Infeasible), nil
	}
	return done(formulation.Optimal), nil
}

// improves reports whether score beats incumbent by more than a relative rounding margin
func improves(score, incumbent float64) bool {
	return score > incumbent+1e-9*(1+math.Abs(incumbent))
}

// splitRows separates constraints over binaries only from those touching a continuous variable
func splitRows(f *formulation.Formulation, vars []formulation.Variable) (binary, mixed []formulation.Constraint) {
	for _, c := range f.Constraints() {
		onlyBinary := true
		for _, t := range c.Terms {
			if vars[t.Var].Domain != formulation.Binary {
				onlyBinary = false
				break
			}
		}
		if onlyBinary {
			binary = append(binary, c)
		} else {
			mixed = append(mixed, c)
		}
	}
	return binary, mixed
}

func rowsHold(rows []formulation.Constraint, values []float64) bool {
	for _, c := range rows {
		if !holds(c.LHS(values), c.Sense, c.RHS) {
			return false
		}
	}
	return true
}
