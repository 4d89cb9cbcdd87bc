package planner

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
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
	"github.com/vsinha/batchalloc/pkg/infrastructure/solvers/exhaustive"
	testhelpers "github.com/vsinha/batchalloc/pkg/infrastructure/testing"
)

func fulfillmentOf(plan *dto.AllocationPlan, client entities.ClientID) dto.Fulfillment {
	for _, f := range plan.Fulfillment {
		if f.Client == client {
			return f
		}
	}
	Fail("no fulfillment row for client " + string(client))
	return dto.Fulfillment{}
}

func batchesOf(plan *dto.AllocationPlan, client entities.ClientID) []entities.BatchID {
	var out []entities.BatchID
	for _, a := range plan.Assignments {
		if a.Client == client {
			out = append(out, a.Batch)
		}
	}
	return out
}

var _ = Describe("Planner", func() {
	var (
		ctx      context.Context
		store    *events.InMemoryEventStore
		registry *metrics.Registry
		p        *Planner
	)

	newPlanner := func(assembler *tables.Assembler, opts ...Option) *Planner {
		logger := zap.NewNop()
		opts = append([]Option{WithEventStore(store), WithMetrics(registry)}, opts...)
		return NewPlanner(
			assembler,
			model.NewBuilder(model.DefaultConfig(), logger),
			exhaustive.New(logger),
			interpret.NewInterpreter(logger),
			logger,
			opts...,
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = events.NewInMemoryEventStore(nil)
		registry = metrics.NewRegistry()
		p = newPlanner(nil)
	})

	Context("with two clients and two batches sellable to both", func() {
		It("should satisfy both clients with one batch each", func() {
			plan, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).NotTo(HaveOccurred())

			Expect(plan.Status).To(Equal(formulation.Optimal))
			Expect(plan.Optimal).To(BeTrue())
			Expect(plan.Solver).To(Equal(exhaustive.Name))
			Expect(plan.Assignments).To(HaveLen(2))
			Expect(batchesOf(plan, "1001")).To(HaveLen(1))
			Expect(batchesOf(plan, "1002")).To(HaveLen(1))
			Expect(plan.Unassigned).To(BeEmpty())

			for _, client := range []entities.ClientID{"1001", "1002"} {
				f := fulfillmentOf(plan, client)
				Expect(f.Satisfied).To(BeTrue())
				Expect(f.Dispatched).To(BeNumerically("~", 10, 1e-9))
				Expect(f.Deficit).To(BeNumerically("~", 0, 1e-9))
			}
			Expect(plan.Stats.CoverageRatio()).To(BeNumerically("~", 1, 1e-9))
		})

		It("should list the higher-priority client first", func() {
			plan, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Assignments[0].Client).To(Equal(entities.ClientID("1001")))
		})

		It("should record every stage of the run", func() {
			_, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).NotTo(HaveOccurred())

			recorded, err := store.ReadEvents("run-1", 1)
			Expect(err).NotTo(HaveOccurred())
			var types []string
			for _, e := range recorded {
				types = append(types, e.Type())
			}
			Expect(types).To(Equal([]string{
				events.TablesAssembledEvent,
				events.ModelBuiltEvent,
				events.ModelSolvedEvent,
				events.PlanInterpretedEvent,
			}))
			Expect(recorded[1].Data()).To(Equal(events.ModelBuilt{Variables: 12, Binaries: 6, Constraints: 14}))
		})

		It("should update the run metrics", func() {
			_, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.ToFloat64(registry.ModelsBuilt)).To(Equal(1.0))
			Expect(testutil.ToFloat64(registry.Solves.WithLabelValues(exhaustive.Name, "Optimal"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(registry.FormulationSize.WithLabelValues("binaries"))).To(Equal(6.0))
			Expect(testutil.ToFloat64(registry.AssignedBatches)).To(Equal(2.0))
			Expect(testutil.ToFloat64(registry.UnassignedBatches)).To(Equal(0.0))
			Expect(testutil.CollectAndCount(registry.SolveLatencySec)).To(Equal(1))
		})

		It("should export the model before solving when asked", func() {
			path := filepath.Join(GinkgoT().TempDir(), "model.lp")
			p = newPlanner(nil, WithLPExport(path))

			_, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).NotTo(HaveOccurred())

			written, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(written)).To(ContainSubstring("Maximize"))
			Expect(string(written)).To(ContainSubstring("assign(1001,B1)"))
		})
	})

	Context("with a batch sellable to only one client", func() {
		It("should send it to the eligible client regardless of priority", func() {
			snapshot := testhelpers.NewTables(testhelpers.AsOf).
				Client("1", 2).
				Client("2", 9).
				Batch("X", "PA", 10, 5, "Mill A", "1").
				Demand("1", "PA", 10).
				Demand("2", "PA", 10).
				Build()

			plan, err := p.PlanTables(ctx, snapshot)
			Expect(err).NotTo(HaveOccurred())

			Expect(batchesOf(plan, "1")).To(Equal([]entities.BatchID{"X"}))
			Expect(batchesOf(plan, "2")).To(BeEmpty())
			Expect(fulfillmentOf(plan, "2").Deficit).To(BeNumerically("~", 10, 1e-9))
			Expect(fulfillmentOf(plan, "2").Satisfied).To(BeFalse())
		})
	})

	Context("with more demand than stock", func() {
		It("should serve the higher-priority client and report the deficit", func() {
			plan, err := p.PlanTables(ctx, testhelpers.ShortSupply())
			Expect(err).NotTo(HaveOccurred())

			Expect(batchesOf(plan, "2001")).To(Equal([]entities.BatchID{"S1"}))
			Expect(fulfillmentOf(plan, "2001").Satisfied).To(BeTrue())
			short := fulfillmentOf(plan, "2002")
			Expect(short.Satisfied).To(BeFalse())
			Expect(short.Deficit).To(BeNumerically("~", 20, 1e-9))
			Expect(plan.Stats.OpenDemands).To(Equal(1))
			Expect(plan.Stats.CoverageRatio()).To(BeNumerically("~", 0.5, 1e-9))
		})
	})

	Context("with malformed tables", func() {
		It("should fail with MalformedInput and count the failure", func() {
			snapshot := testhelpers.TwoClientsTwoBatches()
			snapshot.Demands[0].Quantity = decimal.NewFromInt(-1)

			plan, err := p.PlanTables(ctx, snapshot)
			Expect(plan).To(BeNil())
			Expect(err).To(MatchError(allocation.ErrMalformedInput))
			Expect(testutil.ToFloat64(registry.RunFailures.WithLabelValues("MalformedInput"))).To(Equal(1.0))

			recorded, err := store.ReadEvents("run-1", 1)
			Expect(err).NotTo(HaveOccurred())
			last := recorded[len(recorded)-1]
			Expect(last.Type()).To(Equal(events.RunFailedEvent))
			Expect(last.Data()).To(HaveField("Stage", StageBuild))
		})
	})

	Context("with an instance too large for the solver", func() {
		It("should report an adapter failure", func() {
			logger := zap.NewNop()
			p = NewPlanner(nil,
				model.NewBuilder(model.DefaultConfig(), logger),
				exhaustive.New(logger, exhaustive.WithMaxBinaries(2)),
				interpret.NewInterpreter(logger),
				logger,
				WithMetrics(registry),
			)

			_, err := p.PlanTables(ctx, testhelpers.TwoClientsTwoBatches())
			Expect(err).To(MatchError(exhaustive.ErrTooLarge))
			Expect(testutil.ToFloat64(registry.RunFailures.WithLabelValues(failureKindAdapter))).To(Equal(1.0))
		})
	})

	Context("when planning from repositories", func() {
		It("should assemble the tables and plan them", func() {
			requests, batches, priorities := testhelpers.BuildRepositories()
			p = newPlanner(tables.NewAssembler(requests, batches, priorities, nil))

			plan, err := p.Plan(ctx, testhelpers.AsOf)
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Assignments).To(HaveLen(2))
			Expect(plan.AsOf).To(Equal(testhelpers.AsOf))
		})

		It("should refuse to run without an assembler", func() {
			_, err := p.Plan(ctx, testhelpers.AsOf)
			Expect(err).To(MatchError(ContainSubstring("no tables assembler")))
		})
	})
})
