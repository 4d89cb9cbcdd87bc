// Package planner runs one allocation: tables, model, solve, plan.
package planner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/application/dto"
	"github.com/vsinha/batchalloc/pkg/application/services/interpret"
	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/application/services/tables"
	"github.com/vsinha/batchalloc/pkg/domain/allocation"
	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
	"github.com/vsinha/batchalloc/pkg/infrastructure/events"
	"github.com/vsinha/batchalloc/pkg/infrastructure/metrics"
	"github.com/vsinha/batchalloc/pkg/infrastructure/solvers/lpformat"
)

// Stage names a step of a run in failure events and logs
const (
	StageAssemble  = "assemble"
	StageBuild     = "build"
	StageExport    = "export"
	StageSolve     = "solve"
	StageInterpret = "interpret"
)

// failureKindAdapter labels failures that carry no allocation.Kind, such as a solver
// adapter refusing an instance or a cancelled context.
const failureKindAdapter = "Adapter"

// Planner coordinates the tables assembler, the model builder, a solver and the interpreter
type Planner struct {
	assembler   *tables.Assembler
	builder     *model.Builder
	solver      formulation.Solver
	interpreter *interpret.Interpreter
	logger      *zap.Logger

	options  formulation.SolveOptions
	eventLog events.EventStore
	metrics  *metrics.Registry
	exportLP string
	runs     atomic.Int64
}

// Option configures a Planner
type Option func(*Planner)

// WithSolveOptions sets the time limit and gap handed to the solver
func WithSolveOptions(opts formulation.SolveOptions) Option {
	return func(p *Planner) { p.options = opts }
}

// WithEventStore records every run stage in store, one stream per run
func WithEventStore(store events.EventStore) Option {
	return func(p *Planner) { p.eventLog = store }
}

// WithMetrics records run metrics in reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Planner) { p.metrics = reg }
}

// WithLPExport writes each built formulation to path in LP format before solving
func WithLPExport(path string) Option {
	return func(p *Planner) { p.exportLP = path }
}

// NewPlanner creates a planner. The assembler may be nil when only PlanTables is used.
func NewPlanner(
	assembler *tables.Assembler,
	builder *model.Builder,
	solver formulation.Solver,
	interpreter *interpret.Interpreter,
	logger *zap.Logger,
	opts ...Option,
) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{
		assembler:   assembler,
		builder:     builder,
		solver:      solver,
		interpreter: interpreter,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan assembles the tables from the repositories as of asOf and plans them
func (p *Planner) Plan(ctx context.Context, asOf time.Time) (*dto.AllocationPlan, error) {
	if p.assembler == nil {
		return nil, fmt.Errorf("planner has no tables assembler")
	}
	run := p.nextRun()
	snapshot, err := p.assembler.Assemble(ctx, asOf)
	if err != nil {
		return nil, p.fail(run, StageAssemble, fmt.Errorf("failed to assemble tables: %w", err))
	}
	return p.plan(ctx, run, snapshot)
}

// PlanTables plans an already assembled snapshot
func (p *Planner) PlanTables(ctx context.Context, snapshot *entities.Tables) (*dto.AllocationPlan, error) {
	return p.plan(ctx, p.nextRun(), snapshot)
}

func (p *Planner) plan(ctx context.Context, run string, snapshot *entities.Tables) (*dto.AllocationPlan, error) {
	log := p.logger.With(zap.String("run", run))

	if snapshot != nil {
		p.record(run, events.TablesAssembledEvent, events.TablesAssembled{
			Clients:  len(snapshot.Clients),
			Products: len(snapshot.Products),
			Batches:  len(snapshot.Batches),
			Demands:  len(snapshot.Demands),
		})
	}

	inst, err := p.builder.Build(snapshot)
	if err != nil {
		return nil, p.fail(run, StageBuild, err)
	}
	f := inst.Formulation
	p.record(run, events.ModelBuiltEvent, events.ModelBuilt{
		Variables:   f.NumVariables(),
		Binaries:    len(f.Binaries()),
		Constraints: f.NumConstraints(),
	})
	if p.metrics != nil {
		p.metrics.ModelsBuilt.Inc()
		p.metrics.FormulationSize.WithLabelValues("variables").Set(float64(f.NumVariables()))
		p.metrics.FormulationSize.WithLabelValues("binaries").Set(float64(len(f.Binaries())))
		p.metrics.FormulationSize.WithLabelValues("constraints").Set(float64(f.NumConstraints()))
	}

	if p.exportLP != "" {
		if err := lpformat.WriteFile(p.exportLP, f); err != nil {
			return nil, p.fail(run, StageExport, fmt.Errorf("failed to export model: %w", err))
		}
		log.Info("exported model", zap.String("path", p.exportLP))
	}

	start := time.Now()
	sol, err := p.solver.Solve(ctx, f, p.options)
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.SolveLatencySec.Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, p.fail(run, StageSolve, fmt.Errorf("solver %s failed: %w", p.solver.Name(), err))
	}
	if p.metrics != nil {
		p.metrics.Solves.WithLabelValues(p.solver.Name(), sol.Status.String()).Inc()
	}
	p.record(run, events.ModelSolvedEvent, events.ModelSolved{
		Solver:    p.solver.Name(),
		Status:    sol.Status.String(),
		Objective: sol.Objective,
		RunTime:   elapsed,
	})
	log.Info("solved allocation model",
		zap.String("solver", p.solver.Name()),
		zap.Stringer("status", sol.Status),
		zap.Duration("elapsed", elapsed))

	result, err := p.interpreter.Interpret(inst, sol)
	if err != nil {
		return nil, p.fail(run, StageInterpret, err)
	}
	p.record(run, events.PlanInterpretedEvent, events.PlanInterpreted{
		AssignedBatches:   result.Stats.AssignedBatches,
		UnassignedBatches: result.Stats.UnassignedBatches,
		Coverage:          result.Stats.CoverageRatio(),
		Optimal:           result.Optimal,
	})
	if p.metrics != nil {
		p.metrics.AssignedBatches.Set(float64(result.Stats.AssignedBatches))
		p.metrics.UnassignedBatches.Set(float64(result.Stats.UnassignedBatches))
		p.metrics.DemandCoverage.Set(result.Stats.CoverageRatio())
	}
	if !result.Optimal {
		log.Warn("time limit reached, returning best plan found", zap.Duration("limit", p.options.TimeLimit))
	}
	return result, nil
}

func (p *Planner) nextRun() string {
	return fmt.Sprintf("run-%d", p.runs.Add(1))
}

// fail records a failed run and returns err unchanged
func (p *Planner) fail(run, stage string, err error) error {
	kind := failureKindAdapter
	if k, ok := allocation.KindOf(err); ok {
		kind = k.String()
	}
	if p.metrics != nil {
		p.metrics.RunFailures.WithLabelValues(kind).Inc()
	}
	p.record(run, events.RunFailedEvent, events.RunFailed{Stage: stage, Kind: kind, Error: err.Error()})
	p.logger.Debug("planning run failed",
		zap.String("run", run),
		zap.String("stage", stage),
		zap.String("kind", kind),
		zap.Error(err))
	return err
}

func (p *Planner) record(run, eventType string, data any) {
	if p.eventLog == nil {
		return
	}
	if err := p.eventLog.AppendEvent(run, events.NewEvent(eventType, run, data)); err != nil {
		p.logger.Warn("failed to record run event", zap.String("type", eventType), zap.Error(err))
	}
}
