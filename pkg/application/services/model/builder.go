package model

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/domain/allocation"
	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// ProblemName names every formulation produced by the builder
const ProblemName = "batch_allocation"

// massEpsilon absorbs float noise when comparing batch mass against demand plus tolerance
const massEpsilon = 1e-9

// Builder turns entity tables into an allocation formulation. It holds no state
// between calls: the same tables and config always yield the same formulation.
type Builder struct {
	config Config
	logger *zap.Logger
}

// NewBuilder creates a model builder
func NewBuilder(config Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		config: config,
		logger: logger,
	}
}

// Config returns the model constants the builder formulates with
func (b *Builder) Config() Config {
	return b.config
}

// Build validates the tables and formulates the allocation problem.
// Any invalid fact fails with allocation.ErrMalformedInput before a formulation exists.
func (b *Builder) Build(tables *entities.Tables) (*Instance, error) {
	const op = "model.Build"

	if tables == nil {
		return nil, allocation.Malformed(op, "tables cannot be nil")
	}
	if err := b.config.Validate(); err != nil {
		return nil, allocation.Malformed(op, "invalid model config: %v", err)
	}
	if tables.AsOf.IsZero() {
		return nil, allocation.Malformed(op, "as-of time must be set to compute batch ages")
	}

	inst, err := newInstance(tables, b.config)
	if err != nil {
		return nil, &allocation.Error{Kind: allocation.MalformedInput, Op: op, Err: err}
	}

	fb := formulation.NewBuilder(ProblemName)
	b.declareVariables(fb, inst)
	b.addEligibility(fb, inst)
	if b.config.LocationMatch {
		b.addLocationMatch(fb, inst)
	}
	b.addSingleDispatch(fb, inst)
	b.addDispatchDefinition(fb, inst)
	b.addDemandBounds(fb, inst)
	b.addNoDemandGuard(fb, inst)
	if b.config.AgingCap {
		b.addAgingCap(fb, inst)
	}
	b.addDeviation(fb, inst)
	b.setObjective(fb, inst)

	f, err := fb.Build()
	if err != nil {
		// Every name and coefficient is generated here, so a rejection is our bug.
		b.logger.DPanic("generated formulation rejected", zap.Error(err))
		return nil, &allocation.Error{Kind: allocation.FormulationDefect, Op: op, Err: err}
	}
	inst.Formulation = f

	b.logger.Debug("formulation built",
		zap.Int("clients", len(inst.clients)),
		zap.Int("products", len(inst.products)),
		zap.Int("batches", len(inst.batches)),
		zap.Int("variables", f.NumVariables()),
		zap.Int("constraints", f.NumConstraints()),
		zap.Bool("agingCap", b.config.AgingCap),
		zap.Bool("locationMatch", b.config.LocationMatch),
	)
	return inst, nil
}

func (b *Builder) declareVariables(fb *formulation.Builder, inst *Instance) {
	inst.assign = make([][]formulation.VarID, len(inst.clients))
	for ci, c := range inst.clients {
		inst.assign[ci] = make([]formulation.VarID, len(inst.batches))
		for bi, bt := range inst.batches {
			inst.assign[ci][bi] = fb.AddVariable(
				fmt.Sprintf("assign[%s,%s]", c.ID, bt.ID), formulation.Binary, 0, 1)
		}
	}

	inst.satisfied = make([][]formulation.VarID, len(inst.clients))
	inst.dispatched = make([][]formulation.VarID, len(inst.clients))
	inst.deficit = make([][]formulation.VarID, len(inst.clients))
	inst.excess = make([][]formulation.VarID, len(inst.clients))
	for ci, c := range inst.clients {
		inst.satisfied[ci] = make([]formulation.VarID, len(inst.products))
		inst.dispatched[ci] = make([]formulation.VarID, len(inst.products))
		inst.deficit[ci] = make([]formulation.VarID, len(inst.products))
		inst.excess[ci] = make([]formulation.VarID, len(inst.products))
		for pi, p := range inst.products {
			// Nothing to satisfy without demand.
			upper := 1.0
			if inst.demand[ci][pi] == 0 {
				upper = 0
			}
			key := fmt.Sprintf("[%s,%s]", c.ID, p)
			inst.satisfied[ci][pi] = fb.AddVariable("satisfied"+key, formulation.Binary, 0, upper)
			inst.dispatched[ci][pi] = fb.AddVariable("dispatched"+key, formulation.Continuous, 0, formulation.Infinity)
			inst.deficit[ci][pi] = fb.AddVariable("deficit"+key, formulation.Continuous, 0, formulation.Infinity)
			inst.excess[ci][pi] = fb.AddVariable("excess"+key, formulation.Continuous, 0, formulation.Infinity)
		}
	}
}

// assign[c,b] <= compatibility[c,b]
func (b *Builder) addEligibility(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for bi, bt := range inst.batches {
			rhs := 0.0
			if inst.compatible[ci][bi] {
				rhs = 1
			}
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("eligibility[%s,%s]", c.ID, bt.ID),
				Family: FamilyEligibility,
				Terms:  []formulation.Term{{Var: inst.assign[ci][bi], Coef: 1}},
				Sense:  formulation.LessOrEqual,
				RHS:    rhs,
			})
		}
	}
}

// assign[c,b] <= [mill(b) is one of the client's locations]
func (b *Builder) addLocationMatch(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for bi, bt := range inst.batches {
			rhs := 0.0
			if c.OperatesAt(bt.Location) {
				rhs = 1
			}
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("location_match[%s,%s]", c.ID, bt.ID),
				Family: FamilyLocationMatch,
				Terms:  []formulation.Term{{Var: inst.assign[ci][bi], Coef: 1}},
				Sense:  formulation.LessOrEqual,
				RHS:    rhs,
			})
		}
	}
}

// sum_c assign[c,b] <= 1
func (b *Builder) addSingleDispatch(fb *formulation.Builder, inst *Instance) {
	for bi, bt := range inst.batches {
		terms := make([]formulation.Term, 0, len(inst.clients))
		for ci := range inst.clients {
			terms = append(terms, formulation.Term{Var: inst.assign[ci][bi], Coef: 1})
		}
		fb.AddConstraint(formulation.Constraint{
			Name:   fmt.Sprintf("single_dispatch[%s]", bt.ID),
			Family: FamilySingleDispatch,
			Terms:  terms,
			Sense:  formulation.LessOrEqual,
			RHS:    1,
		})
	}
}

// dispatched[c,p] - sum_{b carries p} mass[b] * assign[c,b] = 0
func (b *Builder) addDispatchDefinition(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for pi, p := range inst.products {
			terms := []formulation.Term{{Var: inst.dispatched[ci][pi], Coef: 1}}
			for _, bi := range inst.batchesOfProduct[pi] {
				terms = append(terms, formulation.Term{Var: inst.assign[ci][bi], Coef: -inst.batches[bi].Mass})
			}
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("dispatch_definition[%s,%s]", c.ID, p),
				Family: FamilyDispatchDefinition,
				Terms:  terms,
				Sense:  formulation.Equal,
				RHS:    0,
			})
		}
	}
}

// dispatched >= demand * satisfied and dispatched <= demand + tolerance
func (b *Builder) addDemandBounds(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for pi, p := range inst.products {
			demand := inst.demand[ci][pi]
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("demand_satisfaction[%s,%s]", c.ID, p),
				Family: FamilySatisfaction,
				Terms: []formulation.Term{
					{Var: inst.dispatched[ci][pi], Coef: 1},
					{Var: inst.satisfied[ci][pi], Coef: -demand},
				},
				Sense: formulation.GreaterOrEqual,
				RHS:   0,
			})
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("excess_cap[%s,%s]", c.ID, p),
				Family: FamilyExcessCap,
				Terms:  []formulation.Term{{Var: inst.dispatched[ci][pi], Coef: 1}},
				Sense:  formulation.LessOrEqual,
				RHS:    demand + b.config.ExcessTolerance,
			})
		}
	}
}

// sum_{b carries p} assign[c,b] = 0 wherever demand[c,p] = 0
func (b *Builder) addNoDemandGuard(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for pi, p := range inst.products {
			if inst.demand[ci][pi] != 0 || len(inst.batchesOfProduct[pi]) == 0 {
				continue
			}
			terms := make([]formulation.Term, 0, len(inst.batchesOfProduct[pi]))
			for _, bi := range inst.batchesOfProduct[pi] {
				terms = append(terms, formulation.Term{Var: inst.assign[ci][bi], Coef: 1})
			}
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("no_demand[%s,%s]", c.ID, p),
				Family: FamilyNoDemand,
				Terms:  terms,
				Sense:  formulation.Equal,
				RHS:    0,
			})
		}
	}
}

// age[b] * (1 - sum_c assign[c,b]) <= max_wait, rewritten as
// -age[b] * sum_c assign[c,b] - (age[b] - max_wait) * aging_slack[b] <= max_wait - age[b].
// The slack in [0, 1] is paid for in the objective, so over-age batches that
// compete for the same demand leave the losers waiting instead of making the
// model infeasible. Only emitted for over-age batches that some client could take.
func (b *Builder) addAgingCap(fb *formulation.Builder, inst *Instance) {
	inst.agingSlack = make(map[int]formulation.VarID)
	for bi, bt := range inst.batches {
		if bt.AgeDays <= b.config.MaxWaitDays || !b.hasCandidate(inst, bi) {
			continue
		}
		age := float64(bt.AgeDays)
		overdue := age - float64(b.config.MaxWaitDays)
		slack := fb.AddVariable(fmt.Sprintf("aging_slack[%s]", bt.ID), formulation.Continuous, 0, 1)
		inst.agingSlack[bi] = slack

		terms := make([]formulation.Term, 0, len(inst.clients)+1)
		for ci := range inst.clients {
			terms = append(terms, formulation.Term{Var: inst.assign[ci][bi], Coef: -age})
		}
		terms = append(terms, formulation.Term{Var: slack, Coef: -overdue})
		fb.AddConstraint(formulation.Constraint{
			Name:   fmt.Sprintf("aging_cap[%s]", bt.ID),
			Family: FamilyAgingCap,
			Terms:  terms,
			Sense:  formulation.LessOrEqual,
			RHS:    -overdue,
		})
	}
}

// agingPenalty outweighs any single satisfaction reward, so a takeable
// over-age batch is left waiting only when shipping it is impossible.
func (b *Builder) agingPenalty(inst *Instance) float64 {
	top := 0.0
	for _, c := range inst.clients {
		top = math.Max(top, c.Priority)
	}
	return b.config.PriorityWeight * (1 + top)
}

// hasCandidate reports whether some eligible client requests the batch's product
// and could take its whole mass within the excess tolerance.
func (b *Builder) hasCandidate(inst *Instance, bi int) bool {
	bt := inst.batches[bi]
	pi := inst.productIndex[bt.Product]
	for ci, c := range inst.clients {
		if !inst.compatible[ci][bi] {
			continue
		}
		if b.config.LocationMatch && !c.OperatesAt(bt.Location) {
			continue
		}
		demand := inst.demand[ci][pi]
		if demand > 0 && bt.Mass <= demand+b.config.ExcessTolerance+massEpsilon {
			return true
		}
	}
	return false
}

// demand - dispatched = deficit - excess, written as dispatched + deficit - excess = demand
func (b *Builder) addDeviation(fb *formulation.Builder, inst *Instance) {
	for ci, c := range inst.clients {
		for pi, p := range inst.products {
			fb.AddConstraint(formulation.Constraint{
				Name:   fmt.Sprintf("deviation[%s,%s]", c.ID, p),
				Family: FamilyDeviation,
				Terms: []formulation.Term{
					{Var: inst.dispatched[ci][pi], Coef: 1},
					{Var: inst.deficit[ci][pi], Coef: 1},
					{Var: inst.excess[ci][pi], Coef: -1},
				},
				Sense: formulation.Equal,
				RHS:   inst.demand[ci][pi],
			})
		}
	}
}

// maximize  W_priority * sum priority[c] * satisfied[c,p]
//         - W_deviation * sum (deficit[c,p] + excess[c,p])
//         + sum_b urgency[b] * sum_c assign[c,b]
//         - aging_penalty * sum aging_slack[b]
func (b *Builder) setObjective(fb *formulation.Builder, inst *Instance) {
	var terms []formulation.Term
	for ci, c := range inst.clients {
		for pi := range inst.products {
			if inst.demand[ci][pi] > 0 {
				terms = append(terms, formulation.Term{
					Var:  inst.satisfied[ci][pi],
					Coef: b.config.PriorityWeight * c.Priority,
				})
			}
			terms = append(terms,
				formulation.Term{Var: inst.deficit[ci][pi], Coef: -b.config.DeviationWeight},
				formulation.Term{Var: inst.excess[ci][pi], Coef: -b.config.DeviationWeight},
			)
		}
	}
	for bi, bt := range inst.batches {
		for ci := range inst.clients {
			terms = append(terms, formulation.Term{Var: inst.assign[ci][bi], Coef: bt.Urgency})
		}
	}
	if len(inst.agingSlack) > 0 {
		penalty := b.agingPenalty(inst)
		for bi := range inst.batches {
			if slack, ok := inst.agingSlack[bi]; ok {
				terms = append(terms, formulation.Term{Var: slack, Coef: -penalty})
			}
		}
	}
	fb.SetObjective(formulation.Maximize, terms, 0)
}
