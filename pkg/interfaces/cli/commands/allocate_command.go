package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/application/dto"
	"github.com/vsinha/batchalloc/pkg/application/services/interpret"
	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/application/services/planner"
	"github.com/vsinha/batchalloc/pkg/application/services/tables"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
	"github.com/vsinha/batchalloc/pkg/infrastructure/config"
	"github.com/vsinha/batchalloc/pkg/infrastructure/events"
	"github.com/vsinha/batchalloc/pkg/infrastructure/metrics"
	"github.com/vsinha/batchalloc/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/batchalloc/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/batchalloc/pkg/infrastructure/solvers/exhaustive"
	"github.com/vsinha/batchalloc/pkg/infrastructure/solvers/highs"
	"github.com/vsinha/batchalloc/pkg/interfaces/cli/output"
)

// AllocateCommand loads the CSV tables, plans them and prints the plan
type AllocateCommand struct {
	settings *config.Settings
	logger   *zap.Logger
	out      io.Writer
	now      func() time.Time
}

// NewAllocateCommand creates the command. A nil logger discards logs; a nil out prints to stdout.
func NewAllocateCommand(settings *config.Settings, logger *zap.Logger, out io.Writer) *AllocateCommand {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	return &AllocateCommand{
		settings: settings,
		logger:   logger,
		out:      out,
		now:      time.Now,
	}
}

// Execute runs the allocation command
func (c *AllocateCommand) Execute(ctx context.Context) (err error) {
	if err := c.validateInputs(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	asOf, err := c.settings.AsOfTime(c.now())
	if err != nil {
		return err
	}

	requests, batches, priorities, err := c.loadRepositories()
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	if path := c.settings.Output.MetricsFile; path != "" {
		defer func() {
			if werr := registry.WriteFile(path); werr != nil && err == nil {
				err = fmt.Errorf("failed to write metrics: %w", werr)
			}
		}()
	}

	store := events.NewInMemoryEventStore(c.logger)
	if c.logger.Core().Enabled(zap.DebugLevel) {
		if err := store.Subscribe(events.RunEventTypes, events.NewLoggingHandler(c.logger)); err != nil {
			return fmt.Errorf("failed to subscribe run logger: %w", err)
		}
	}

	opts := []planner.Option{
		planner.WithSolveOptions(formulation.SolveOptions{
			TimeLimit:   c.settings.Solver.TimeLimit,
			RelativeGap: c.settings.Solver.RelativeGap,
		}),
		planner.WithEventStore(store),
		planner.WithMetrics(registry),
	}
	if path := c.settings.Output.ExportLP; path != "" {
		opts = append(opts, planner.WithLPExport(path))
	}

	p := planner.NewPlanner(
		tables.NewAssembler(requests, batches, priorities, c.logger),
		model.NewBuilder(c.settings.ModelConfig(), c.logger),
		c.newSolver(),
		interpret.NewInterpreter(c.logger),
		c.logger,
		opts...,
	)

	plan, err := p.Plan(ctx, asOf)
	if err != nil {
		return fmt.Errorf("allocation failed: %w", err)
	}
	return c.print(plan)
}

func (c *AllocateCommand) print(plan *dto.AllocationPlan) error {
	err := output.Generate(c.out, plan, output.Config{
		Format:  c.settings.Output.Format,
		Verbose: c.logger.Core().Enabled(zap.DebugLevel),
	})
	if err != nil {
		return fmt.Errorf("error generating output: %w", err)
	}
	return nil
}

// validateInputs checks the input files exist; the priorities file is optional
func (c *AllocateCommand) validateInputs() error {
	in := c.settings.Inputs
	if in.Requests == "" || in.Stock == "" {
		return fmt.Errorf("must specify both --requests and --stock CSV files")
	}
	files := map[string]string{"Requests": in.Requests, "Stock": in.Stock}
	if in.Priorities != "" {
		files["Priorities"] = in.Priorities
	}
	for name, path := range files {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s file not found: %s", name, path)
		}
	}
	return nil
}

func (c *AllocateCommand) loadRepositories() (*memory.RequestRepository, *memory.BatchRepository, *memory.PriorityRepository, error) {
	loader := csv.NewLoader(c.settings.Columns)
	in := c.settings.Inputs

	requestRows, err := loader.LoadRequests(in.Requests)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading requests: %w", err)
	}
	requests := memory.NewRequestRepository()
	if err := requests.LoadRequests(requestRows); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load requests into repository: %w", err)
	}

	batchRows, err := loader.LoadBatches(in.Stock)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading stock: %w", err)
	}
	batches := memory.NewBatchRepository()
	if err := batches.LoadBatches(batchRows); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load stock into repository: %w", err)
	}

	priorities := memory.NewPriorityRepository()
	if in.Priorities != "" {
		priorityRows, err := loader.LoadPriorities(in.Priorities)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error loading priorities: %w", err)
		}
		if err := priorities.LoadPriorities(priorityRows); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load priorities into repository: %w", err)
		}
	}

	c.logger.Info("loaded input tables",
		zap.Int("requests", len(requestRows)),
		zap.Int("batches", len(batchRows)))
	return requests, batches, priorities, nil
}

func (c *AllocateCommand) newSolver() formulation.Solver {
	if c.settings.Solver.Name == exhaustive.Name {
		return exhaustive.New(c.logger, exhaustive.WithMaxBinaries(c.settings.Solver.MaxBinaries))
	}
	return highs.New(c.logger, c.logger.Core().Enabled(zap.DebugLevel))
}
