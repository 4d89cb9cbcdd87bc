// Package highs solves allocation formulations with the HiGHS MIP solver through
// the nextmv SDK. The provider is loaded at runtime by the SDK, so this adapter is
// only usable where the nextmv HiGHS plugin is installed.
package highs

import (
	"context"
	"fmt"
	"time"

	"github.com/nextmv-io/sdk/mip"
	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// Name identifies the solver in solutions and settings
const Name = "highs"

// Solver is the HiGHS adapter
type Solver struct {
	logger  *zap.Logger
	verbose bool
}

// New creates a HiGHS adapter. verbose forwards the provider's own log to stdout.
func New(logger *zap.Logger, verbose bool) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{logger: logger, verbose: verbose}
}

// Verify interface compliance
var _ formulation.Solver = (*Solver)(nil)

// Name returns the solver name
func (s *Solver) Name() string { return Name }

// Solve translates f into a nextmv model and runs HiGHS under the tighter of
// opts.TimeLimit and the context deadline.
func (s *Solver) Solve(ctx context.Context, f *formulation.Formulation, opts formulation.SolveOptions) (*formulation.Solution, error) {
	if f == nil {
		return nil, fmt.Errorf("highs: formulation cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, vars := translate(f)

	solver, err := mip.NewSolver(Name, m)
	if err != nil {
		return nil, fmt.Errorf("highs: create solver: %w", err)
	}

	solveOptions := mip.NewSolveOptions()
	if limit := budget(ctx, opts.TimeLimit); limit > 0 {
		if err := solveOptions.SetMaximumDuration(limit); err != nil {
			return nil, fmt.Errorf("highs: set time limit: %w", err)
		}
	}
	if err := solveOptions.SetMIPGapRelative(opts.RelativeGap); err != nil {
		return nil, fmt.Errorf("highs: set relative gap: %w", err)
	}
	if s.verbose {
		solveOptions.SetVerbosity(mip.Low)
	} else {
		solveOptions.SetVerbosity(mip.Off)
	}

	s.logger.Debug("solving with highs",
		zap.String("formulation", f.Name()),
		zap.Int("variables", f.NumVariables()),
		zap.Int("constraints", f.NumConstraints()),
	)
	result, err := solver.Solve(solveOptions)
	if err != nil {
		return nil, fmt.Errorf("highs: solve: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("highs: provider returned no solution")
	}

	sol := &formulation.Solution{
		Status:  classify(result),
		RunTime: result.RunTime(),
		Solver:  Name,
	}
	if sol.Status.HasIncumbent() {
		sol.Objective = result.ObjectiveValue()
		sol.Values = make([]float64, len(vars))
		for i, v := range vars {
			sol.Values[i] = result.Value(v)
		}
	}
	s.logger.Debug("highs finished", zap.Stringer("status", sol.Status), zap.Duration("runTime", sol.RunTime))
	return sol, nil
}

// translate builds the nextmv model; vars is indexed by formulation.VarID
func translate(f *formulation.Formulation) (mip.Model, []mip.Var) {
	m := mip.NewModel()

	variables := f.Variables()
	vars := make([]mip.Var, len(variables))
	for i, v := range variables {
		switch {
		case v.Domain == formulation.Binary && !v.Fixed():
			vars[i] = m.NewBool()
		default:
			// Pinned binaries are constants; a degenerate float range carries them.
			vars[i] = m.NewFloat(v.Lower, v.Upper)
		}
	}

	for _, c := range f.Constraints() {
		row := m.NewConstraint(sense(c.Sense), c.RHS)
		for _, t := range c.Terms {
			row.NewTerm(t.Coef, vars[t.Var])
		}
	}

	objective := f.Objective()
	if objective.Direction == formulation.Minimize {
		m.Objective().SetMinimize()
	} else {
		m.Objective().SetMaximize()
	}
	for _, t := range objective.Terms {
		m.Objective().NewTerm(t.Coef, vars[t.Var])
	}
	return m, vars
}

func sense(s formulation.Sense) mip.Sense {
	switch s {
	case formulation.LessOrEqual:
		return mip.LessThanOrEqual
	case formulation.GreaterOrEqual:
		return mip.GreaterThanOrEqual
	default:
		return mip.Equal
	}
}

// budget returns the solve time limit, 0 when unlimited
func budget(ctx context.Context, limit time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if limit <= 0 || remaining < limit {
		return remaining
	}
	return limit
}

// outcome is the part of mip.Solution that decides the status
type outcome interface {
	HasValues() bool
	IsOptimal() bool
	IsSubOptimal() bool
	IsInfeasible() bool
	IsUnbounded() bool
	IsTimeOut() bool
}

func classify(r outcome) formulation.Status {
	switch {
	case r.IsInfeasible():
		return formulation.Infeasible
	case r.IsUnbounded():
		return formulation.Unbounded
	case r.IsOptimal() && r.HasValues():
		return formulation.Optimal
	case r.HasValues():
		// Timeout or gap-limited stop with an incumbent.
		return formulation.Suboptimal
	default:
		return formulation.NoSolution
	}
}
