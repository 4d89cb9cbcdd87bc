package model

import (
	"fmt"
	"math"
)

// Default model constants
const (
	DefaultExcessTolerance = 15.0
	DefaultPriorityWeight  = 1 << 30
	DefaultDeviationWeight = 1 << 16
	DefaultUrgencyBase     = 1.1
	DefaultMaxWaitDays     = 120
)

// Config holds the tunable constants of the allocation model
type Config struct {
	// ExcessTolerance is how much mass may be dispatched beyond a client's request.
	ExcessTolerance float64
	// PriorityWeight scales priority-weighted demand satisfaction.
	PriorityWeight float64
	// DeviationWeight scales the penalty on |demand - dispatched|.
	DeviationWeight float64
	// UrgencyBase is b in the per-batch reward b^age.
	UrgencyBase float64
	// MaxWaitDays is the aging cap threshold.
	MaxWaitDays int
	// AgingCap forces over-age batches out whenever some client could take them.
	AgingCap bool
	// LocationMatch restricts batches to clients operating at the batch's mill.
	LocationMatch bool
}

// DefaultConfig returns the calibrated defaults with both optional policies off
func DefaultConfig() Config {
	return Config{
		ExcessTolerance: DefaultExcessTolerance,
		PriorityWeight:  DefaultPriorityWeight,
		DeviationWeight: DefaultDeviationWeight,
		UrgencyBase:     DefaultUrgencyBase,
		MaxWaitDays:     DefaultMaxWaitDays,
	}
}

// Validate checks for invalid configuration values
func (c Config) Validate() error {
	if !finite(c.ExcessTolerance) || c.ExcessTolerance < 0 {
		return fmt.Errorf("excess tolerance must be a non-negative number, got %v", c.ExcessTolerance)
	}
	if !finite(c.PriorityWeight) || c.PriorityWeight <= 0 {
		return fmt.Errorf("priority weight must be positive, got %v", c.PriorityWeight)
	}
	if !finite(c.DeviationWeight) || c.DeviationWeight <= 0 {
		return fmt.Errorf("deviation weight must be positive, got %v", c.DeviationWeight)
	}
	if !finite(c.UrgencyBase) || c.UrgencyBase < 1 {
		return fmt.Errorf("urgency base must be >= 1, got %v", c.UrgencyBase)
	}
	if c.MaxWaitDays < 0 {
		return fmt.Errorf("max wait days cannot be negative, got %d", c.MaxWaitDays)
	}
	return nil
}

// Urgency returns UrgencyBase^ageDays
func (c Config) Urgency(ageDays int) float64 {
	return math.Pow(c.UrgencyBase, float64(ageDays))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
