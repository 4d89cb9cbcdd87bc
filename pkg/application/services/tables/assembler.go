package tables

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/repositories"
)

// Assembler builds the entity tables snapshot a model is built from
type Assembler struct {
	requests   repositories.RequestRepository
	batches    repositories.BatchRepository
	priorities repositories.PriorityRepository
	logger     *zap.Logger
}

// NewAssembler creates a tables assembler over the three source repositories
func NewAssembler(
	requests repositories.RequestRepository,
	batches repositories.BatchRepository,
	priorities repositories.PriorityRepository,
	logger *zap.Logger,
) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		requests:   requests,
		batches:    batches,
		priorities: priorities,
		logger:     logger,
	}
}

// Assemble reads every repository and produces deduplicated, sorted entity sets plus
// total fact tables. Clients are the union of request clients and eligibility-map codes;
// priority rows for clients outside that union are dropped.
func (a *Assembler) Assemble(ctx context.Context, asOf time.Time) (*entities.Tables, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	requests, err := a.requests.GetRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	batches, err := a.batches.GetAllBatches()
	if err != nil {
		return nil, fmt.Errorf("failed to read batches: %w", err)
	}
	priorityRows, err := a.priorities.GetPriorities()
	if err != nil {
		return nil, fmt.Errorf("failed to read priorities: %w", err)
	}

	clientSet := make(map[entities.ClientID]bool)
	productSet := make(map[entities.ProductID]bool)
	locationSet := make(map[entities.Location]bool)
	clientLocations := make(map[entities.ClientID][]entities.Location)
	names := make(map[entities.ClientID][2]string)

	type pair struct {
		client  entities.ClientID
		product entities.ProductID
	}
	demand := make(map[pair]*entities.Demand)
	var demandOrder []pair

	for _, r := range requests {
		clientSet[r.Client] = true
		productSet[r.Product] = true
		if r.Location != "" {
			locationSet[r.Location] = true
			clientLocations[r.Client] = append(clientLocations[r.Client], r.Location)
		}
		if r.ClientName != "" || r.ClientGroup != "" {
			names[r.Client] = [2]string{r.ClientName, r.ClientGroup}
		}

		key := pair{r.Client, r.Product}
		if _, seen := demand[key]; !seen {
			demandOrder = append(demandOrder, key)
		} else {
			a.logger.Debug("duplicate request row, keeping the last",
				zap.String("client", string(r.Client)), zap.String("product", string(r.Product)))
		}
		demand[key] = &entities.Demand{Client: r.Client, Product: r.Product, Quantity: entities.FloorNoise(r.Requested)}
	}

	for _, b := range batches {
		productSet[b.Product] = true
		if b.Location != "" {
			locationSet[b.Location] = true
		}
		for c := range b.Sellable {
			clientSet[c] = true
		}
	}

	priority := make(map[entities.ClientID]float64)
	for _, p := range priorityRows {
		// last writer wins
		priority[p.Client] = p.Importance
	}

	out := &entities.Tables{AsOf: asOf}

	for _, id := range sortedKeys(clientSet) {
		client, err := entities.NewClient(id, priority[id], clientLocations[id])
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", id, err)
		}
		client.Name, client.Group = names[id][0], names[id][1]
		out.Clients = append(out.Clients, *client)
	}
	out.Products = sortedKeys(productSet)
	out.Locations = sortedKeys(locationSet)

	for _, b := range batches {
		out.Batches = append(out.Batches, *b)
	}
	sort.Slice(out.Batches, func(i, j int) bool { return out.Batches[i].ID < out.Batches[j].ID })

	sort.Slice(demandOrder, func(i, j int) bool {
		if demandOrder[i].client != demandOrder[j].client {
			return demandOrder[i].client < demandOrder[j].client
		}
		return demandOrder[i].product < demandOrder[j].product
	})
	for _, key := range demandOrder {
		out.Demands = append(out.Demands, *demand[key])
	}

	// Compatibility is materialized over the full client x batch product.
	out.Compatibility = make([]entities.Compatibility, 0, len(out.Clients)*len(out.Batches))
	for _, c := range out.Clients {
		for _, b := range out.Batches {
			apt := 0
			if b.SellableTo(c.ID) {
				apt = 1
			}
			out.Compatibility = append(out.Compatibility, entities.Compatibility{Client: c.ID, Batch: b.ID, Apt: apt})
		}
	}

	dropped := 0
	for c := range priority {
		if !clientSet[c] {
			dropped++
		}
	}
	a.logger.Debug("tables assembled",
		zap.Int("clients", len(out.Clients)),
		zap.Int("products", len(out.Products)),
		zap.Int("batches", len(out.Batches)),
		zap.Int("locations", len(out.Locations)),
		zap.Int("demands", len(out.Demands)),
		zap.Int("droppedPriorities", dropped),
	)
	return out, nil
}

func sortedKeys[K ~string](set map[K]bool) []K {
	keys := make([]K, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
