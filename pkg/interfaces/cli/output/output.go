package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vsinha/batchalloc/pkg/application/dto"
)

// Config holds configuration for output generation
type Config struct {
	Format string
	// Verbose adds the urgency and coverage columns to text output.
	Verbose bool
}

// Generate writes the plan to w in the configured format
func Generate(w io.Writer, plan *dto.AllocationPlan, config Config) error {
	if plan == nil {
		return fmt.Errorf("no plan to print")
	}
	switch config.Format {
	case "text", "":
		return generateTextOutput(w, plan, config)
	case "json":
		return generateJSONOutput(w, plan)
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

// generateTextOutput creates human-readable text output
func generateTextOutput(w io.Writer, plan *dto.AllocationPlan, config Config) error {
	ew := &errWriter{w: w}

	ew.printf("Allocation Plan (as of %s)\n", plan.AsOf.Format("2006-01-02"))
	ew.printf("==================================\n\n")

	label := "optimal"
	if !plan.Optimal {
		label = "best found within time limit"
	}
	ew.printf("Status: %s (%s)\n", plan.Status, label)
	ew.printf("Solver: %s in %v\n", plan.Solver, plan.RunTime)
	ew.printf("Batches: %d assigned, %d unassigned of %d\n",
		plan.Stats.AssignedBatches, plan.Stats.UnassignedBatches, plan.Stats.Batches)
	ew.printf("Demand: %d satisfied, %d open, %.1f%% of %.2f t dispatched\n\n",
		plan.Stats.SatisfiedDemands, plan.Stats.OpenDemands,
		plan.Stats.CoverageRatio()*100, plan.Stats.DemandedMass)

	if len(plan.Assignments) > 0 {
		ew.printf("Assignments:\n")
		if config.Verbose {
			ew.printf("%-10s %-12s %-10s %10s %-14s %6s %8s %12s\n",
				"Client", "Batch", "Product", "Mass", "Mill", "Age", "Priority", "Urgency")
			ew.printf("%-10s %-12s %-10s %10s %-14s %6s %8s %12s\n",
				"----------", "------------", "----------", "----------", "--------------", "------", "--------", "------------")
		} else {
			ew.printf("%-10s %-12s %-10s %10s %-14s %6s\n",
				"Client", "Batch", "Product", "Mass", "Mill", "Age")
			ew.printf("%-10s %-12s %-10s %10s %-14s %6s\n",
				"----------", "------------", "----------", "----------", "--------------", "------")
		}
		for _, a := range plan.Assignments {
			if config.Verbose {
				ew.printf("%-10s %-12s %-10s %10.2f %-14s %6d %8.2f %12.4g\n",
					a.Client, a.Batch, a.Product, a.Mass, a.Location, a.AgeDays, a.Priority, a.Urgency)
			} else {
				ew.printf("%-10s %-12s %-10s %10.2f %-14s %6d\n",
					a.Client, a.Batch, a.Product, a.Mass, a.Location, a.AgeDays)
			}
		}
		ew.printf("\n")
	}

	if len(plan.Fulfillment) > 0 {
		ew.printf("Fulfillment:\n")
		ew.printf("%-10s %-10s %10s %10s %10s %10s %-9s\n",
			"Client", "Product", "Demand", "Sent", "Deficit", "Excess", "Satisfied")
		ew.printf("%-10s %-10s %10s %10s %10s %10s %-9s\n",
			"----------", "----------", "----------", "----------", "----------", "----------", "---------")
		for _, f := range plan.Fulfillment {
			satisfied := "no"
			if f.Satisfied {
				satisfied = "yes"
			}
			ew.printf("%-10s %-10s %10.2f %10.2f %10.2f %10.2f %-9s\n",
				f.Client, f.Product, f.Demand, f.Dispatched, f.Deficit, f.Excess, satisfied)
		}
		ew.printf("\n")
	}

	if len(plan.Unassigned) > 0 {
		ew.printf("Unassigned batches:\n")
		for _, b := range plan.Unassigned {
			ew.printf("  %s\n", b)
		}
	}
	return ew.err
}

// generateJSONOutput creates JSON output
func generateJSONOutput(w io.Writer, plan *dto.AllocationPlan) error {
	jsonData, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(jsonData)); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// errWriter keeps the first write error so the table code stays linear
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
