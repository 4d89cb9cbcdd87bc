package interpret

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/domain/allocation"
	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
	testhelpers "github.com/vsinha/batchalloc/pkg/infrastructure/testing"
)

func buildInstance(t *testing.T, tables *entities.Tables) *model.Instance {
	t.Helper()
	inst, err := model.NewBuilder(model.DefaultConfig(), zap.NewNop()).Build(tables)
	require.NoError(t, err)
	return inst
}

// solution sets the named assignments and satisfied flags, leaving everything else at 0
func solution(t *testing.T, inst *model.Instance, status formulation.Status, assign [][2]string, satisfied ...[2]string) *formulation.Solution {
	t.Helper()
	values := make([]float64, inst.Formulation.NumVariables())
	for _, a := range assign {
		id, ok := inst.Assign(entities.ClientID(a[0]), entities.BatchID(a[1]))
		require.True(t, ok, "assign %v", a)
		values[id] = 1
	}
	for _, s := range satisfied {
		id, ok := inst.Satisfied(entities.ClientID(s[0]), entities.ProductID(s[1]))
		require.True(t, ok, "satisfied %v", s)
		values[id] = 1
	}
	return &formulation.Solution{Status: status, Objective: 42, Values: values, Solver: "test"}
}

func TestInterpret_Optimal(t *testing.T) {
	inst := buildInstance(t, testhelpers.TwoClientsTwoBatches())
	sol := solution(t, inst, formulation.Optimal,
		[][2]string{{"1002", "B1"}, {"1001", "B2"}},
		[2]string{"1001", "PA"}, [2]string{"1002", "PA"})

	plan, err := NewInterpreter(zap.NewNop()).Interpret(inst, sol)
	require.NoError(t, err)

	assert.True(t, plan.Optimal)
	assert.Equal(t, 42.0, plan.Objective)
	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, entities.ClientID("1001"), plan.Assignments[0].Client, "higher priority first")
	assert.Equal(t, entities.BatchID("B2"), plan.Assignments[0].Batch)
	assert.Equal(t, 40, plan.Assignments[0].AgeDays)
	assert.Empty(t, plan.Unassigned)

	require.Len(t, plan.Fulfillment, 2)
	for _, f := range plan.Fulfillment {
		assert.True(t, f.Satisfied)
		assert.Equal(t, 10.0, f.Dispatched)
		assert.Zero(t, f.Deficit)
		assert.Equal(t, 1.0, f.CoverageRatio())
	}
	assert.Equal(t, 2, plan.Stats.SatisfiedDemands)
	assert.Equal(t, 1.0, plan.Stats.CoverageRatio())
}

func TestInterpret_SuboptimalIsLabelled(t *testing.T) {
	inst := buildInstance(t, testhelpers.TwoClientsTwoBatches())
	sol := solution(t, inst, formulation.Suboptimal, [][2]string{{"1001", "B1"}}, [2]string{"1001", "PA"})

	plan, err := NewInterpreter(nil).Interpret(inst, sol)
	require.NoError(t, err)
	assert.False(t, plan.Optimal)
	assert.Equal(t, formulation.Suboptimal, plan.Status)
	assert.Equal(t, []entities.BatchID{"B2"}, plan.Unassigned)
	assert.Equal(t, 1, plan.Stats.OpenDemands)
	assert.InDelta(t, 0.5, plan.Stats.CoverageRatio(), 1e-9)
}

func TestInterpret_ThresholdTolerance(t *testing.T) {
	inst := buildInstance(t, testhelpers.TwoClientsTwoBatches())
	sol := solution(t, inst, formulation.Optimal, nil)
	id, _ := inst.Assign("1001", "B1")
	sol.Values[id] = 0.9999997
	other, _ := inst.Assign("1002", "B2")
	sol.Values[other] = 0.49

	plan, err := NewInterpreter(nil).Interpret(inst, sol)
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, entities.BatchID("B1"), plan.Assignments[0].Batch)
}

func TestInterpret_Statuses(t *testing.T) {
	inst := buildInstance(t, testhelpers.TwoClientsTwoBatches())

	testCases := []struct {
		status formulation.Status
		want   error
	}{
		{formulation.Infeasible, allocation.ErrInfeasibleModel},
		{formulation.NoSolution, allocation.ErrSolverTimeout},
		{formulation.Unbounded, allocation.ErrFormulationDefect},
		{formulation.StatusUnknown, allocation.ErrFormulationDefect},
	}
	for _, tc := range testCases {
		t.Run(tc.status.String(), func(t *testing.T) {
			plan, err := NewInterpreter(nil).Interpret(inst, &formulation.Solution{Status: tc.status})
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestInterpret_Defects(t *testing.T) {
	tables := testhelpers.NewTables(testhelpers.AsOf).
		Client("1", 2).
		Client("2", 1).
		Batch("ONLY1", "PA", 10, 1, "Mill A", "1").
		Demand("1", "PA", 10).
		Demand("2", "PA", 10).
		Build()
	inst := buildInstance(t, tables)

	testCases := []struct {
		name string
		sol  *formulation.Solution
	}{
		{"ineligible client", solution(t, inst, formulation.Optimal, [][2]string{{"2", "ONLY1"}})},
		{"double dispatch", func() *formulation.Solution {
			sol := solution(t, inst, formulation.Optimal, [][2]string{{"1", "ONLY1"}})
			id, _ := inst.Assign("2", "ONLY1")
			sol.Values[id] = 1
			return sol
		}()},
		{"satisfied without dispatch", solution(t, inst, formulation.Optimal, nil, [2]string{"2", "PA"})},
		{"short value vector", &formulation.Solution{Status: formulation.Optimal, Values: []float64{1}}},
		{"nil solution", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInterpreter(nil).Interpret(inst, tc.sol)
			assert.True(t, errors.Is(err, allocation.ErrFormulationDefect), "got %v", err)
		})
	}
}

func TestInterpret_SatisfiedFollowsDispatch(t *testing.T) {
	// priority 0 leaves the satisfied variable out of the objective, so the solver may report it as 0
	tables := testhelpers.NewTables(testhelpers.AsOf).
		Client("A", 0, "Mill A").
		Client("B", 0, "Mill A").
		Batch("B1", "PA", 10, 1, "Mill A", "A", "B").
		Demand("A", "PA", 5).
		Demand("B", "PA", 10).
		Build()
	inst := buildInstance(t, tables)
	sol := solution(t, inst, formulation.Optimal, [][2]string{{"B", "B1"}})

	plan, err := NewInterpreter(nil).Interpret(inst, sol)
	require.NoError(t, err)

	got := make(map[entities.ClientID]bool)
	for _, f := range plan.Fulfillment {
		got[f.Client] = f.Satisfied
	}
	assert.Equal(t, map[entities.ClientID]bool{"A": false, "B": true}, got)
	assert.Equal(t, 1, plan.Stats.SatisfiedDemands)
	assert.Equal(t, 1, plan.Stats.OpenDemands)
}
