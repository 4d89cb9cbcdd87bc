package dto

import (
	"time"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// AllocationPlan is the caller-facing outcome of one optimization run
type AllocationPlan struct {
	Status      formulation.Status `json:"status"`
	Optimal     bool               `json:"optimal"`
	Objective   float64            `json:"objective"`
	Solver      string             `json:"solver"`
	RunTime     time.Duration      `json:"runTimeNs"`
	AsOf        time.Time          `json:"asOf"`
	Assignments []Assignment       `json:"assignments"`
	Fulfillment []Fulfillment      `json:"fulfillment"`
	Unassigned  []entities.BatchID `json:"unassigned"`
	Stats       Stats              `json:"stats"`
}

// Assignment sends one whole batch to one client
type Assignment struct {
	Client   entities.ClientID  `json:"client"`
	Batch    entities.BatchID   `json:"batch"`
	Product  entities.ProductID `json:"product"`
	Mass     float64            `json:"mass"`
	Location entities.Location  `json:"location,omitempty"`
	AgeDays  int                `json:"ageDays"`
	Priority float64            `json:"priority"`
	Urgency  float64            `json:"urgency"`
}

// Fulfillment reports how much of a (client, product) demand is covered
type Fulfillment struct {
	Client     entities.ClientID  `json:"client"`
	Product    entities.ProductID `json:"product"`
	Demand     float64            `json:"demand"`
	Dispatched float64            `json:"dispatched"`
	Deficit    float64            `json:"deficit"`
	Excess     float64            `json:"excess"`
	Satisfied  bool               `json:"satisfied"`
}

// CoverageRatio returns dispatched / demand, capped at 1. Zero demand reads as fully covered.
func (f Fulfillment) CoverageRatio() float64 {
	if f.Demand <= 0 {
		return 1.0
	}
	ratio := f.Dispatched / f.Demand
	if ratio > 1 {
		return 1.0
	}
	return ratio
}

// Stats summarizes a plan
type Stats struct {
	Batches           int     `json:"batches"`
	AssignedBatches   int     `json:"assignedBatches"`
	UnassignedBatches int     `json:"unassignedBatches"`
	DispatchedMass    float64 `json:"dispatchedMass"`
	DemandedMass      float64 `json:"demandedMass"`
	SatisfiedDemands  int     `json:"satisfiedDemands"`
	OpenDemands       int     `json:"openDemands"`
}

// CoverageRatio returns the share of total demanded mass that is dispatched, capped at 1
func (s Stats) CoverageRatio() float64 {
	if s.DemandedMass <= 0 {
		return 1.0
	}
	ratio := s.DispatchedMass / s.DemandedMass
	if ratio > 1 {
		return 1.0
	}
	return ratio
}
