package model

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// Constraint families emitted by the builder
const (
	FamilyEligibility        = "eligibility"
	FamilyLocationMatch      = "location_match"
	FamilySingleDispatch     = "single_dispatch"
	FamilyDispatchDefinition = "dispatch_definition"
	FamilySatisfaction       = "demand_satisfaction"
	FamilyExcessCap          = "excess_cap"
	FamilyNoDemand           = "no_demand"
	FamilyAgingCap           = "aging_cap"
	FamilyDeviation          = "deviation"
)

// ClientFacts is the normalized view of a client used by the model
type ClientFacts struct {
	ID        entities.ClientID
	Priority  float64
	Locations []entities.Location
}

// OperatesAt reports whether the client works out of the given location
func (c ClientFacts) OperatesAt(location entities.Location) bool {
	for _, l := range c.Locations {
		if l == location {
			return true
		}
	}
	return false
}

// BatchFacts is the normalized view of a batch used by the model
type BatchFacts struct {
	ID       entities.BatchID
	Product  entities.ProductID
	Location entities.Location
	Mass     float64
	AgeDays  int
	Urgency  float64
}

// Instance is a built model: the formulation plus the lookup tables that map
// business keys to variables. Compatibility and demand are total over their
// Cartesian domains; absent pairs read as false and 0.
type Instance struct {
	Formulation *formulation.Formulation
	Config      Config
	AsOf        time.Time

	clients  []ClientFacts
	products []entities.ProductID
	batches  []BatchFacts

	clientIndex  map[entities.ClientID]int
	productIndex map[entities.ProductID]int
	batchIndex   map[entities.BatchID]int

	demand           [][]float64 // [client][product]
	compatible       [][]bool    // [client][batch]
	batchesOfProduct [][]int     // [product] -> batch indexes

	assign     [][]formulation.VarID // [client][batch]
	satisfied  [][]formulation.VarID // [client][product]
	dispatched [][]formulation.VarID
	deficit    [][]formulation.VarID
	excess     [][]formulation.VarID
	agingSlack map[int]formulation.VarID // [batch], over-age batches only
}

// Clients returns the client ids in model order
func (m *Instance) Clients() []entities.ClientID {
	out := make([]entities.ClientID, len(m.clients))
	for i, c := range m.clients {
		out[i] = c.ID
	}
	return out
}

// Products returns the product ids in model order
func (m *Instance) Products() []entities.ProductID {
	out := make([]entities.ProductID, len(m.products))
	copy(out, m.products)
	return out
}

// Batches returns the batch facts in model order
func (m *Instance) Batches() []BatchFacts {
	out := make([]BatchFacts, len(m.batches))
	copy(out, m.batches)
	return out
}

// Client returns the facts of a client
func (m *Instance) Client(id entities.ClientID) (ClientFacts, bool) {
	i, ok := m.clientIndex[id]
	if !ok {
		return ClientFacts{}, false
	}
	return m.clients[i], true
}

// Batch returns the facts of a batch
func (m *Instance) Batch(id entities.BatchID) (BatchFacts, bool) {
	i, ok := m.batchIndex[id]
	if !ok {
		return BatchFacts{}, false
	}
	return m.batches[i], true
}

// Priority returns a client's priority, 0 for unknown clients
func (m *Instance) Priority(c entities.ClientID) float64 {
	if i, ok := m.clientIndex[c]; ok {
		return m.clients[i].Priority
	}
	return 0
}

// Demand returns the demand of client c for product p, 0 when absent
func (m *Instance) Demand(c entities.ClientID, p entities.ProductID) float64 {
	ci, okC := m.clientIndex[c]
	pi, okP := m.productIndex[p]
	if !okC || !okP {
		return 0
	}
	return m.demand[ci][pi]
}

// Compatible reports whether batch b may go to client c, false when absent
func (m *Instance) Compatible(c entities.ClientID, b entities.BatchID) bool {
	ci, okC := m.clientIndex[c]
	bi, okB := m.batchIndex[b]
	if !okC || !okB {
		return false
	}
	return m.compatible[ci][bi]
}

// Assign returns the assign[c,b] variable
func (m *Instance) Assign(c entities.ClientID, b entities.BatchID) (formulation.VarID, bool) {
	ci, okC := m.clientIndex[c]
	bi, okB := m.batchIndex[b]
	if !okC || !okB {
		return 0, false
	}
	return m.assign[ci][bi], true
}

// Satisfied returns the satisfied[c,p] variable
func (m *Instance) Satisfied(c entities.ClientID, p entities.ProductID) (formulation.VarID, bool) {
	return m.pairVar(m.satisfied, c, p)
}

// AgingSlack returns the aging_slack[b] variable, present only for capped batches
func (m *Instance) AgingSlack(b entities.BatchID) (formulation.VarID, bool) {
	bi, ok := m.batchIndex[b]
	if !ok {
		return 0, false
	}
	v, ok := m.agingSlack[bi]
	return v, ok
}

// Dispatched returns the dispatched[c,p] variable
func (m *Instance) Dispatched(c entities.ClientID, p entities.ProductID) (formulation.VarID, bool) {
	return m.pairVar(m.dispatched, c, p)
}

// Deficit returns the deficit[c,p] variable
func (m *Instance) Deficit(c entities.ClientID, p entities.ProductID) (formulation.VarID, bool) {
	return m.pairVar(m.deficit, c, p)
}

// Excess returns the excess[c,p] variable
func (m *Instance) Excess(c entities.ClientID, p entities.ProductID) (formulation.VarID, bool) {
	return m.pairVar(m.excess, c, p)
}

func (m *Instance) pairVar(table [][]formulation.VarID, c entities.ClientID, p entities.ProductID) (formulation.VarID, bool) {
	ci, okC := m.clientIndex[c]
	pi, okP := m.productIndex[p]
	if !okC || !okP {
		return 0, false
	}
	return table[ci][pi], true
}

// newInstance validates the tables and materializes the total fact functions.
// Entities are sorted by id so the result does not depend on row order.
func newInstance(tables *entities.Tables, config Config) (*Instance, error) {
	m := &Instance{
		Config:       config,
		AsOf:         tables.AsOf,
		clientIndex:  make(map[entities.ClientID]int, len(tables.Clients)),
		productIndex: make(map[entities.ProductID]int, len(tables.Products)),
		batchIndex:   make(map[entities.BatchID]int, len(tables.Batches)),
	}

	if err := m.indexClients(tables.Clients); err != nil {
		return nil, err
	}
	if err := m.indexProducts(tables.Products); err != nil {
		return nil, err
	}
	if err := m.indexBatches(tables.Batches); err != nil {
		return nil, err
	}
	if err := m.loadDemand(tables.Demands); err != nil {
		return nil, err
	}
	if err := m.loadCompatibility(tables.Compatibility); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Instance) indexClients(clients []entities.Client) error {
	m.clients = make([]ClientFacts, 0, len(clients))
	seen := make(map[entities.ClientID]bool, len(clients))
	for _, c := range clients {
		if c.ID == "" {
			return fmt.Errorf("client id cannot be empty")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate client %s", c.ID)
		}
		if !finite(c.Priority) || c.Priority < 0 {
			return fmt.Errorf("client %s has invalid priority %v", c.ID, c.Priority)
		}
		seen[c.ID] = true
		m.clients = append(m.clients, ClientFacts{
			ID:        c.ID,
			Priority:  c.Priority,
			Locations: append([]entities.Location(nil), c.Locations...),
		})
	}
	sort.Slice(m.clients, func(i, j int) bool { return m.clients[i].ID < m.clients[j].ID })
	for i, c := range m.clients {
		m.clientIndex[c.ID] = i
	}
	return nil
}

func (m *Instance) indexProducts(products []entities.ProductID) error {
	m.products = make([]entities.ProductID, 0, len(products))
	for _, p := range products {
		if p == "" {
			return fmt.Errorf("product id cannot be empty")
		}
		if _, dup := m.productIndex[p]; dup {
			return fmt.Errorf("duplicate product %s", p)
		}
		m.productIndex[p] = -1
		m.products = append(m.products, p)
	}
	sort.Slice(m.products, func(i, j int) bool { return m.products[i] < m.products[j] })
	for i, p := range m.products {
		m.productIndex[p] = i
	}
	return nil
}

func (m *Instance) indexBatches(batches []entities.Batch) error {
	m.batches = make([]BatchFacts, 0, len(batches))
	seen := make(map[entities.BatchID]bool, len(batches))
	for _, b := range batches {
		if b.ID == "" {
			return fmt.Errorf("batch id cannot be empty")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate batch %s", b.ID)
		}
		seen[b.ID] = true
		if b.Mass.IsNegative() {
			return fmt.Errorf("batch %s has negative mass %s", b.ID, b.Mass)
		}
		if _, ok := m.productIndex[b.Product]; !ok {
			return fmt.Errorf("batch %s references unknown product %q", b.ID, b.Product)
		}

		age := b.AgeDays(m.AsOf)
		urgency := m.Config.Urgency(age)
		if math.IsInf(urgency, 0) {
			return fmt.Errorf("batch %s age of %d days overflows the urgency score", b.ID, age)
		}
		m.batches = append(m.batches, BatchFacts{
			ID:       b.ID,
			Product:  b.Product,
			Location: b.Location,
			Mass:     b.Mass.InexactFloat64(),
			AgeDays:  age,
			Urgency:  urgency,
		})
	}
	sort.Slice(m.batches, func(i, j int) bool { return m.batches[i].ID < m.batches[j].ID })

	m.batchesOfProduct = make([][]int, len(m.products))
	for i, b := range m.batches {
		m.batchIndex[b.ID] = i
		pi := m.productIndex[b.Product]
		m.batchesOfProduct[pi] = append(m.batchesOfProduct[pi], i)
	}
	return nil
}

func (m *Instance) loadDemand(demands []entities.Demand) error {
	m.demand = make([][]float64, len(m.clients))
	for i := range m.demand {
		m.demand[i] = make([]float64, len(m.products))
	}
	for _, d := range demands {
		ci, ok := m.clientIndex[d.Client]
		if !ok {
			return fmt.Errorf("demand references unknown client %q", d.Client)
		}
		pi, ok := m.productIndex[d.Product]
		if !ok {
			return fmt.Errorf("demand of client %s references unknown product %q", d.Client, d.Product)
		}
		if d.Quantity.IsNegative() {
			return fmt.Errorf("demand of client %s for %s is negative: %s", d.Client, d.Product, d.Quantity)
		}
		m.demand[ci][pi] = entities.FloorNoise(d.Quantity).InexactFloat64()
	}
	return nil
}

func (m *Instance) loadCompatibility(rows []entities.Compatibility) error {
	m.compatible = make([][]bool, len(m.clients))
	for i := range m.compatible {
		m.compatible[i] = make([]bool, len(m.batches))
	}
	for _, r := range rows {
		ci, ok := m.clientIndex[r.Client]
		if !ok {
			return fmt.Errorf("compatibility references unknown client %q", r.Client)
		}
		bi, ok := m.batchIndex[r.Batch]
		if !ok {
			return fmt.Errorf("compatibility of client %s references unknown batch %q", r.Client, r.Batch)
		}
		if r.Apt != 0 && r.Apt != 1 {
			return fmt.Errorf("compatibility of client %s with batch %s must be 0 or 1, got %d", r.Client, r.Batch, r.Apt)
		}
		m.compatible[ci][bi] = r.Apt == 1
	}
	return nil
}
