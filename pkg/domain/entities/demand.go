package entities

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DemandNoiseFloor is the smallest requested quantity treated as real demand.
// Requests below it are floored to zero.
var DemandNoiseFloor = decimal.NewFromInt(1)

// Request is one row of the sales programme for the planning period
type Request struct {
	Client      ClientID
	ClientName  string
	ClientGroup string
	Location    Location
	Product     ProductID
	Requested   decimal.Decimal
}

// NewRequest creates a validated Request; quantities below DemandNoiseFloor become zero
func NewRequest(client ClientID, location Location, product ProductID, requested decimal.Decimal) (*Request, error) {
	if client == "" {
		return nil, fmt.Errorf("client id cannot be empty")
	}
	if product == "" {
		return nil, fmt.Errorf("product id cannot be empty")
	}
	if requested.IsNegative() {
		return nil, fmt.Errorf("requested quantity cannot be negative, got %s", requested)
	}

	return &Request{
		Client:    client,
		Location:  location,
		Product:   product,
		Requested: FloorNoise(requested),
	}, nil
}

// Demand is the requested quantity of a product by a client
type Demand struct {
	Client   ClientID
	Product  ProductID
	Quantity decimal.Decimal
}

// FloorNoise returns zero for quantities below DemandNoiseFloor
func FloorNoise(q decimal.Decimal) decimal.Decimal {
	if q.LessThan(DemandNoiseFloor) {
		return decimal.Zero
	}
	return q
}

// Compatibility states whether a batch may be delivered to a client.
// Apt is an indicator: 1 eligible, 0 not eligible. Other values are malformed.
type Compatibility struct {
	Client ClientID
	Batch  BatchID
	Apt    int
}
