package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SecondsPerDay converts epoch deltas into whole days of age
const SecondsPerDay = 24 * 3600

// Batch is an atomic, non-divisible lot of a single product
type Batch struct {
	ID        BatchID
	Product   ProductID
	Mass      decimal.Decimal
	ShippedAt time.Time
	Location  Location
	Center    string

	// Sellable maps client id to whether the batch may be sold to that client.
	// Clients absent from the map are not eligible.
	Sellable map[ClientID]bool
}

// NewBatch creates a validated Batch whose mass is the arrived plus in-transit quantity
func NewBatch(
	id BatchID,
	product ProductID,
	arrived, inTransit decimal.Decimal,
	shippedAt time.Time,
	location Location,
	sellable map[ClientID]bool,
) (*Batch, error) {
	if id == "" {
		return nil, fmt.Errorf("batch id cannot be empty")
	}
	if product == "" {
		return nil, fmt.Errorf("product id cannot be empty")
	}
	if arrived.IsNegative() {
		return nil, fmt.Errorf("arrived mass cannot be negative, got %s", arrived)
	}
	if inTransit.IsNegative() {
		return nil, fmt.Errorf("in-transit mass cannot be negative, got %s", inTransit)
	}

	eligibility := make(map[ClientID]bool, len(sellable))
	for client, ok := range sellable {
		eligibility[client] = ok
	}

	return &Batch{
		ID:        id,
		Product:   product,
		Mass:      arrived.Add(inTransit),
		ShippedAt: shippedAt,
		Location:  location,
		Sellable:  eligibility,
	}, nil
}

// SellableTo reports whether the batch may be shipped to the client
func (b Batch) SellableTo(client ClientID) bool {
	return b.Sellable[client]
}

// AgeDays returns max(0, asOf - ShippedAt) in whole days
func (b Batch) AgeDays(asOf time.Time) int {
	return AgeDays(b.ShippedAt, asOf)
}

// AgeDays returns the whole number of days elapsed from shippedAt to asOf, never negative
func AgeDays(shippedAt, asOf time.Time) int {
	seconds := asOf.Unix() - shippedAt.Unix()
	if seconds <= 0 {
		return 0
	}
	return int(seconds / SecondsPerDay)
}
