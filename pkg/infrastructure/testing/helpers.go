package testing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/infrastructure/repositories/memory"
)

// AsOf is the fixed planning instant used across fixtures
var AsOf = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// TablesBuilder assembles entity tables for tests. Batches register their product and
// their eligibility rows; demand rows register their product.
type TablesBuilder struct {
	tables   entities.Tables
	products map[entities.ProductID]bool
}

// NewTables starts a fixture snapshot taken at asOf
func NewTables(asOf time.Time) *TablesBuilder {
	return &TablesBuilder{
		tables:   entities.Tables{AsOf: asOf},
		products: make(map[entities.ProductID]bool),
	}
}

// Client adds a client - panics on validation error
func (b *TablesBuilder) Client(id string, priority float64, locations ...string) *TablesBuilder {
	locs := make([]entities.Location, len(locations))
	for i, l := range locations {
		locs[i] = entities.Location(l)
	}
	client, err := entities.NewClient(entities.ClientID(id), priority, locs)
	if err != nil {
		panic(err)
	}
	b.tables.Clients = append(b.tables.Clients, *client)
	return b
}

// Product registers products that may have neither batches nor demand
func (b *TablesBuilder) Product(ids ...string) *TablesBuilder {
	for _, id := range ids {
		b.addProduct(entities.ProductID(id))
	}
	return b
}

// Batch adds a batch shipped ageDays before AsOf, sellable to the named clients - panics on validation error
func (b *TablesBuilder) Batch(id, product string, mass float64, ageDays int, location string, sellableTo ...string) *TablesBuilder {
	sellable := make(map[entities.ClientID]bool, len(sellableTo))
	for _, c := range sellableTo {
		sellable[entities.ClientID(c)] = true
	}
	shipped := b.tables.AsOf.Add(-time.Duration(ageDays) * 24 * time.Hour)
	batch, err := entities.NewBatch(
		entities.BatchID(id),
		entities.ProductID(product),
		decimal.NewFromFloat(mass),
		decimal.Zero,
		shipped,
		entities.Location(location),
		sellable,
	)
	if err != nil {
		panic(err)
	}
	b.addProduct(batch.Product)
	b.tables.Batches = append(b.tables.Batches, *batch)
	return b
}

// Demand adds a demand row
func (b *TablesBuilder) Demand(client, product string, quantity float64) *TablesBuilder {
	b.addProduct(entities.ProductID(product))
	b.tables.Demands = append(b.tables.Demands, entities.Demand{
		Client:   entities.ClientID(client),
		Product:  entities.ProductID(product),
		Quantity: decimal.NewFromFloat(quantity),
	})
	return b
}

// Compatibility appends a raw compatibility row, bypassing the batch eligibility maps
func (b *TablesBuilder) Compatibility(client, batch string, apt int) *TablesBuilder {
	b.tables.Compatibility = append(b.tables.Compatibility, entities.Compatibility{
		Client: entities.ClientID(client),
		Batch:  entities.BatchID(batch),
		Apt:    apt,
	})
	return b
}

// Build returns the snapshot with compatibility rows materialized for every sellable pair
func (b *TablesBuilder) Build() *entities.Tables {
	out := b.tables
	out.Clients = append([]entities.Client(nil), b.tables.Clients...)
	out.Batches = append([]entities.Batch(nil), b.tables.Batches...)
	out.Demands = append([]entities.Demand(nil), b.tables.Demands...)
	out.Compatibility = append([]entities.Compatibility(nil), b.tables.Compatibility...)

	locations := make(map[entities.Location]bool)
	for _, c := range out.Clients {
		for _, l := range c.Locations {
			locations[l] = true
		}
		for _, batch := range out.Batches {
			if batch.SellableTo(c.ID) {
				out.Compatibility = append(out.Compatibility, entities.Compatibility{Client: c.ID, Batch: batch.ID, Apt: 1})
			}
		}
	}
	for _, batch := range out.Batches {
		if batch.Location != "" {
			locations[batch.Location] = true
		}
	}
	out.Locations = make([]entities.Location, 0, len(locations))
	for l := range locations {
		out.Locations = append(out.Locations, l)
	}
	sort.Slice(out.Locations, func(i, j int) bool { return out.Locations[i] < out.Locations[j] })
	return &out
}

func (b *TablesBuilder) addProduct(p entities.ProductID) {
	if b.products[p] {
		return
	}
	b.products[p] = true
	b.tables.Products = append(b.tables.Products, p)
}

// TwoClientsTwoBatches is the smallest interesting scenario: a high-priority client and a
// low-priority client both want 10t of PA, and two 10t PA batches are sellable to both.
func TwoClientsTwoBatches() *entities.Tables {
	return NewTables(AsOf).
		Client("1001", 5, "Mill A").
		Client("1002", 1, "Mill B").
		Batch("B1", "PA", 10, 3, "Mill A", "1001", "1002").
		Batch("B2", "PA", 10, 40, "Mill B", "1001", "1002").
		Demand("1001", "PA", 10).
		Demand("1002", "PA", 10).
		Build()
}

// ShortSupply has more demand than stock: one 20t batch for two clients wanting 20t each
func ShortSupply() *entities.Tables {
	return NewTables(AsOf).
		Client("2001", 3).
		Client("2002", 1).
		Batch("S1", "PB", 20, 10, "Mill A", "2001", "2002").
		Demand("2001", "PB", 20).
		Demand("2002", "PB", 20).
		Build()
}

// BuildRepositories loads the rows behind TwoClientsTwoBatches into in-memory repositories
func BuildRepositories() (*memory.RequestRepository, *memory.BatchRepository, *memory.PriorityRepository) {
	requests := memory.NewRequestRepository()
	batches := memory.NewBatchRepository()
	priorities := memory.NewPriorityRepository()

	for _, r := range []struct {
		client, location, product string
		qty                       int64
	}{
		{"1001", "Mill A", "PA", 10},
		{"1002", "Mill B", "PA", 10},
	} {
		req, err := entities.NewRequest(
			entities.ClientID(r.client),
			entities.Location(r.location),
			entities.ProductID(r.product),
			decimal.NewFromInt(r.qty),
		)
		if err != nil {
			panic(err)
		}
		if err := requests.SaveRequest(req); err != nil {
			panic(err)
		}
	}

	for _, t := range TwoClientsTwoBatches().Batches {
		batch := t
		if err := batches.SaveBatch(&batch); err != nil {
			panic(err)
		}
	}

	for _, p := range []entities.Priority{{Client: "1001", Importance: 5}, {Client: "1002", Importance: 1}} {
		priority := p
		if err := priorities.SavePriority(&priority); err != nil {
			panic(err)
		}
	}
	return requests, batches, priorities
}
