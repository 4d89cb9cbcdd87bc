package exhaustive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
	testhelpers "github.com/vsinha/batchalloc/pkg/infrastructure/testing"
)

func solve(t *testing.T, f *formulation.Formulation, opts ...Option) *formulation.Solution {
	t.Helper()
	sol, err := New(zap.NewNop(), opts...).Solve(context.Background(), f, formulation.SolveOptions{})
	require.NoError(t, err)
	return sol
}

func mustBuild(t *testing.T, b *formulation.Builder) *formulation.Formulation {
	t.Helper()
	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func TestSolve_Knapsack(t *testing.T) {
	b := formulation.NewBuilder("knapsack")
	x := b.AddVariable("x", formulation.Binary, 0, 1)
	y := b.AddVariable("y", formulation.Binary, 0, 1)
	z := b.AddVariable("z", formulation.Continuous, 0, formulation.Infinity)
	b.AddConstraint(formulation.Constraint{Name: "capacity", Terms: []formulation.Term{{Var: x, Coef: 3}, {Var: y, Coef: 4}}, Sense: formulation.LessOrEqual, RHS: 5})
	b.AddConstraint(formulation.Constraint{Name: "link", Terms: []formulation.Term{{Var: z, Coef: 1}, {Var: x, Coef: -2}}, Sense: formulation.Equal, RHS: 0})
	b.SetObjective(formulation.Maximize, []formulation.Term{{Var: x, Coef: 5}, {Var: y, Coef: 6}}, 1)

	sol := solve(t, mustBuild(t, b))
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Equal(t, Name, sol.Solver)
	assert.InDelta(t, 7, sol.Objective, 1e-9)
	assert.Equal(t, 0.0, sol.Value(x))
	assert.Equal(t, 1.0, sol.Value(y))
	assert.InDelta(t, 0, sol.Value(z), 1e-9)
}

func TestSolve_MinimizeWithCoupledContinuous(t *testing.T) {
	b := formulation.NewBuilder("cover")
	x := b.AddVariable("x", formulation.Binary, 0, 1)
	y := b.AddVariable("y", formulation.Continuous, 0, 0.5)
	w := b.AddVariable("w", formulation.Continuous, 0, formulation.Infinity)
	b.AddConstraint(formulation.Constraint{Name: "cover", Terms: []formulation.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}, {Var: w, Coef: 1}}, Sense: formulation.GreaterOrEqual, RHS: 1})
	b.AddConstraint(formulation.Constraint{Name: "cap", Terms: []formulation.Term{{Var: y, Coef: 1}, {Var: w, Coef: 1}}, Sense: formulation.LessOrEqual, RHS: 0.8})
	b.SetObjective(formulation.Minimize, []formulation.Term{{Var: x, Coef: 1}, {Var: y, Coef: 2}, {Var: w, Coef: 3}}, 0)

	sol := solve(t, mustBuild(t, b))
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Equal(t, 1.0, sol.Value(x))
	assert.InDelta(t, 1, sol.Objective, 1e-7)
}

func TestSolve_Infeasible(t *testing.T) {
	b := formulation.NewBuilder("infeasible")
	x := b.AddVariable("x", formulation.Binary, 0, 1)
	y := b.AddVariable("y", formulation.Continuous, 0, 1)
	b.AddConstraint(formulation.Constraint{Name: "too_much", Terms: []formulation.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, Sense: formulation.GreaterOrEqual, RHS: 3})
	b.SetObjective(formulation.Maximize, []formulation.Term{{Var: x, Coef: 1}}, 0)

	sol := solve(t, mustBuild(t, b))
	assert.Equal(t, formulation.Infeasible, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestSolve_Unbounded(t *testing.T) {
	b := formulation.NewBuilder("unbounded")
	x := b.AddVariable("x", formulation.Binary, 0, 1)
	y := b.AddVariable("y", formulation.Continuous, 0, formulation.Infinity)
	b.AddConstraint(formulation.Constraint{Name: "floor", Terms: []formulation.Term{{Var: y, Coef: 1}, {Var: x, Coef: -1}}, Sense: formulation.GreaterOrEqual, RHS: 0})
	b.SetObjective(formulation.Maximize, []formulation.Term{{Var: y, Coef: 1}}, 0)

	sol := solve(t, mustBuild(t, b))
	assert.Equal(t, formulation.Unbounded, sol.Status)
}

func TestSolve_TooLarge(t *testing.T) {
	b := formulation.NewBuilder("wide")
	b.AddVariable("a", formulation.Binary, 0, 1)
	b.AddVariable("b", formulation.Binary, 0, 1)
	b.AddVariable("pinned", formulation.Binary, 0, 0)

	_, err := New(nil, WithMaxBinaries(1)).Solve(context.Background(), mustBuild(t, b), formulation.SolveOptions{})
	assert.True(t, errors.Is(err, ErrTooLarge))

	sol := solve(t, mustBuild(t, b), WithMaxBinaries(2))
	assert.Equal(t, formulation.Optimal, sol.Status, "pinned binaries are not enumerated")
}

func TestSolve_ExpiredDeadline(t *testing.T) {
	b := formulation.NewBuilder("late")
	b.AddVariable("a", formulation.Binary, 0, 1)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	sol, err := New(nil).Solve(ctx, mustBuild(t, b), formulation.SolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, formulation.NoSolution, sol.Status)
}

func buildModel(t *testing.T, tables *entities.Tables) *model.Instance {
	t.Helper()
	inst, err := model.NewBuilder(model.DefaultConfig(), zap.NewNop()).Build(tables)
	require.NoError(t, err)
	return inst
}

func TestSolve_AllocationModel(t *testing.T) {
	inst := buildModel(t, testhelpers.TwoClientsTwoBatches())
	sol := solve(t, inst.Formulation)
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Empty(t, inst.Formulation.Check(sol.Values, 1e-6))

	for _, c := range inst.Clients() {
		sat, _ := inst.Satisfied(c, "PA")
		assert.InDelta(t, 1, sol.Value(sat), 1e-9, "client %s satisfied", c)

		received := 0
		for _, b := range inst.Batches() {
			id, _ := inst.Assign(c, b.ID)
			if sol.Value(id) >= 0.5 {
				received++
			}
		}
		assert.Equal(t, 1, received, "client %s gets exactly one batch", c)
	}
}

func TestSolve_ShortSupplyLeavesDeficit(t *testing.T) {
	inst := buildModel(t, testhelpers.ShortSupply())
	sol := solve(t, inst.Formulation)
	require.Equal(t, formulation.Optimal, sol.Status)

	winner, _ := inst.Assign("2001", "S1")
	assert.Equal(t, 1.0, sol.Value(winner), "higher priority client wins the only batch")

	sat, _ := inst.Satisfied("2002", "PB")
	deficit, _ := inst.Deficit("2002", "PB")
	assert.Equal(t, 0.0, sol.Value(sat))
	assert.InDelta(t, 20, sol.Value(deficit), 1e-7)
}

func TestSolve_KeepsFirstFeasibleCandidate(t *testing.T) {
	// every feasible point scores below zero, so the incumbent starts from the first one found
	b := formulation.NewBuilder("costly")
	x := b.AddVariable("x", formulation.Binary, 0, 1)
	y := b.AddVariable("y", formulation.Binary, 0, 1)
	b.AddConstraint(formulation.Constraint{Name: "pick", Terms: []formulation.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, Sense: formulation.GreaterOrEqual, RHS: 1})
	b.SetObjective(formulation.Maximize, []formulation.Term{{Var: x, Coef: -3}, {Var: y, Coef: -2}}, 0)

	sol := solve(t, mustBuild(t, b))
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Equal(t, 0.0, sol.Value(x))
	assert.Equal(t, 1.0, sol.Value(y))
	assert.InDelta(t, -2, sol.Objective, 1e-9)
}

func TestImproves(t *testing.T) {
	assert.True(t, improves(2, 1))
	assert.True(t, improves(-2, -3))
	assert.False(t, improves(1, 1))
	assert.False(t, improves(1+1e-12, 1), "rounding noise is not an improvement")
}

func TestSolve_PriorityScenarioWithIneligibleBatch(t *testing.T) {
	tables := testhelpers.NewTables(testhelpers.AsOf).
		Client("A", 10).
		Client("B", 1).
		Batch("B1", "X", 100, 5, "Mill A", "A", "B").
		Batch("B2", "X", 100, 50, "Mill A", "A", "B").
		Batch("B3", "X", 100, 80, "Mill A").
		Demand("A", "X", 100).
		Demand("B", "X", 100).
		Build()
	inst := buildModel(t, tables)

	sol := solve(t, inst.Formulation)
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Empty(t, inst.Formulation.Check(sol.Values, 1e-6))

	for _, c := range []entities.ClientID{"A", "B"} {
		sat, _ := inst.Satisfied(c, "X")
		assert.Equal(t, 1.0, sol.Value(sat), "client %s satisfied", c)
		stale, _ := inst.Assign(c, "B3")
		assert.Equal(t, 0.0, sol.Value(stale), "ineligible batch never goes to %s", c)
	}
}

func TestSolve_CompetingOverAgeBatches(t *testing.T) {
	tables := testhelpers.NewTables(testhelpers.AsOf).
		Client("A", 1).
		Batch("O1", "X", 100, 200, "Mill A", "A").
		Batch("O2", "X", 100, 200, "Mill A", "A").
		Demand("A", "X", 100).
		Build()
	config := model.DefaultConfig()
	config.AgingCap = true
	inst, err := model.NewBuilder(config, zap.NewNop()).Build(tables)
	require.NoError(t, err)
	require.Len(t, inst.Formulation.ConstraintsInFamily(model.FamilyAgingCap), 2)

	sol := solve(t, inst.Formulation)
	require.Equal(t, formulation.Optimal, sol.Status)
	assert.Empty(t, inst.Formulation.Check(sol.Values, 1e-6))

	shipped, waiting := 0, 0
	for _, b := range []entities.BatchID{"O1", "O2"} {
		assign, _ := inst.Assign("A", b)
		slack, ok := inst.AgingSlack(b)
		require.True(t, ok)
		if sol.Value(assign) == 1 {
			shipped++
			assert.InDelta(t, 0, sol.Value(slack), 1e-9)
		} else {
			waiting++
			assert.InDelta(t, 1, sol.Value(slack), 1e-9)
		}
	}
	assert.Equal(t, 1, shipped, "only one batch fits the demand")
	assert.Equal(t, 1, waiting)

	sat, _ := inst.Satisfied("A", "X")
	assert.Equal(t, 1.0, sol.Value(sat))
}
