package interpret

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/application/dto"
	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/domain/allocation"
	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// AssignThreshold is the value at or above which a binary assign variable counts as set
const AssignThreshold = 0.5

// massTolerance is the relative slack used when re-checking dispatched mass
const massTolerance = 1e-6

// Interpreter turns a solver solution back into business terms
type Interpreter struct {
	logger *zap.Logger
}

// NewInterpreter creates a result interpreter
func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger}
}

// Interpret maps a solution of inst to an allocation plan.
// Infeasible solves fail with ErrInfeasibleModel, a timeout without incumbent with ErrSolverTimeout.
// Unbounded solves and extracted assignments that break the model's own rules are FormulationDefects.
func (i *Interpreter) Interpret(inst *model.Instance, sol *formulation.Solution) (*dto.AllocationPlan, error) {
	const op = "interpret.Interpret"

	if inst == nil || inst.Formulation == nil {
		return nil, i.defect(allocation.Defect(op, "instance has no formulation"))
	}
	if sol == nil {
		return nil, i.defect(allocation.Defect(op, "solver returned no solution"))
	}

	switch sol.Status {
	case formulation.Optimal, formulation.Suboptimal:
	case formulation.Infeasible:
		return nil, allocation.Infeasible(op, "solver %s proved the model infeasible", sol.Solver)
	case formulation.NoSolution:
		return nil, allocation.Timeout(op, "solver %s ran out of time before finding an incumbent", sol.Solver)
	case formulation.Unbounded:
		return nil, i.defect(allocation.Defect(op, "solver %s reported an unbounded objective", sol.Solver))
	default:
		return nil, i.defect(allocation.Defect(op, "solver %s returned status %s", sol.Solver, sol.Status))
	}

	if len(sol.Values) != inst.Formulation.NumVariables() {
		return nil, i.defect(allocation.Defect(op, "solution has %d values for %d variables",
			len(sol.Values), inst.Formulation.NumVariables()))
	}

	assignments, err := i.extract(inst, sol)
	if err != nil {
		return nil, i.defect(err)
	}
	fulfillment, err := fulfill(inst, sol, assignments)
	if err != nil {
		return nil, i.defect(err)
	}

	plan := &dto.AllocationPlan{
		Status:      sol.Status,
		Optimal:     sol.Status == formulation.Optimal,
		Objective:   sol.Objective,
		Solver:      sol.Solver,
		RunTime:     sol.RunTime,
		AsOf:        inst.AsOf,
		Assignments: assignments,
		Fulfillment: fulfillment,
		Unassigned:  unassigned(inst, assignments),
	}
	plan.Stats = summarize(inst, plan)

	i.logger.Debug("plan interpreted",
		zap.Stringer("status", sol.Status),
		zap.Int("assignments", len(assignments)),
		zap.Int("unassigned", len(plan.Unassigned)),
		zap.Float64("coverage", plan.Stats.CoverageRatio()),
	)
	return plan, nil
}

func (i *Interpreter) defect(err error) error {
	i.logger.DPanic("allocation formulation defect", zap.Error(err))
	return err
}

// extract reads every assign variable at or above the threshold, re-checking
// eligibility and single dispatch on the way.
func (i *Interpreter) extract(inst *model.Instance, sol *formulation.Solution) ([]dto.Assignment, error) {
	const op = "interpret.extract"

	var out []dto.Assignment
	clients := inst.Clients()
	for _, b := range inst.Batches() {
		var owner entities.ClientID
		for _, c := range clients {
			id, _ := inst.Assign(c, b.ID)
			if sol.Value(id) < AssignThreshold {
				continue
			}
			if !inst.Compatible(c, b.ID) {
				return nil, allocation.Defect(op, "batch %s assigned to ineligible client %s", b.ID, c)
			}
			if owner != "" {
				return nil, allocation.Defect(op, "batch %s assigned to both %s and %s", b.ID, owner, c)
			}
			if inst.Demand(c, b.Product) == 0 {
				return nil, allocation.Defect(op, "batch %s of %s assigned to %s who requested none", b.ID, b.Product, c)
			}
			owner = c
			out = append(out, dto.Assignment{
				Client:   c,
				Batch:    b.ID,
				Product:  b.Product,
				Mass:     b.Mass,
				Location: b.Location,
				AgeDays:  b.AgeDays,
				Priority: inst.Priority(c),
				Urgency:  b.Urgency,
			})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.Priority != y.Priority {
			return x.Priority > y.Priority
		}
		if x.Urgency != y.Urgency {
			return x.Urgency > y.Urgency
		}
		if x.Client != y.Client {
			return x.Client < y.Client
		}
		return x.Batch < y.Batch
	})
	return out, nil
}

type pair struct {
	client  entities.ClientID
	product entities.ProductID
}

// fulfill derives per-pair dispatched mass and satisfaction from the accepted assignments
func fulfill(inst *model.Instance, sol *formulation.Solution, assignments []dto.Assignment) ([]dto.Fulfillment, error) {
	const op = "interpret.fulfill"

	dispatched := make(map[pair]float64)
	for _, a := range assignments {
		dispatched[pair{a.Client, a.Product}] += a.Mass
	}

	tolerance := inst.Config.ExcessTolerance
	var out []dto.Fulfillment
	for _, c := range inst.Clients() {
		for _, p := range inst.Products() {
			demand := inst.Demand(c, p)
			sent := dispatched[pair{c, p}]
			if demand == 0 && sent == 0 {
				continue
			}
			if sent > (demand+tolerance)*(1+massTolerance) {
				return nil, allocation.Defect(op, "client %s receives %g of %s against demand %g plus tolerance %g",
					c, sent, p, demand, tolerance)
			}
			covered := covers(sent, demand)
			if sat, ok := inst.Satisfied(c, p); ok && sol.Value(sat) >= AssignThreshold && !covered {
				return nil, allocation.Defect(op, "client %s is marked satisfied for %s with %g of %g dispatched",
					c, p, sent, demand)
			}
			out = append(out, dto.Fulfillment{
				Client:     c,
				Product:    p,
				Demand:     demand,
				Dispatched: sent,
				Deficit:    math.Max(0, demand-sent),
				Excess:     math.Max(0, sent-demand),
				Satisfied:  covered,
			})
		}
	}
	return out, nil
}

// covers reports whether sent meets a positive demand, up to rounding in the solver values.
// Zero demand is never satisfied; there is nothing to satisfy.
func covers(sent, demand float64) bool {
	return demand > 0 && sent >= demand*(1-massTolerance)
}

func unassigned(inst *model.Instance, assignments []dto.Assignment) []entities.BatchID {
	taken := make(map[entities.BatchID]bool, len(assignments))
	for _, a := range assignments {
		taken[a.Batch] = true
	}
	out := []entities.BatchID{}
	for _, b := range inst.Batches() {
		if !taken[b.ID] {
			out = append(out, b.ID)
		}
	}
	return out
}

func summarize(inst *model.Instance, plan *dto.AllocationPlan) dto.Stats {
	stats := dto.Stats{
		Batches:           len(inst.Batches()),
		AssignedBatches:   len(plan.Assignments),
		UnassignedBatches: len(plan.Unassigned),
	}
	for _, f := range plan.Fulfillment {
		stats.DemandedMass += f.Demand
		stats.DispatchedMass += f.Dispatched
		if f.Demand == 0 {
			continue
		}
		if f.Satisfied {
			stats.SatisfiedDemands++
		} else {
			stats.OpenDemands++
		}
	}
	return stats
}
