package memory

import (
	"fmt"
	"sort"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/repositories"
)

// BatchRepository provides in-memory stock storage
type BatchRepository struct {
	batches    []entities.Batch
	batchesMap map[entities.BatchID]int
}

// NewBatchRepository creates a new in-memory batch repository
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		batches:    []entities.Batch{},
		batchesMap: make(map[entities.BatchID]int),
	}
}

// Verify interface compliance
var _ repositories.BatchRepository = (*BatchRepository)(nil)

// LoadBatches loads batches into the repository
func (r *BatchRepository) LoadBatches(batches []*entities.Batch) error {
	for _, batch := range batches {
		if err := r.SaveBatch(batch); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores a batch; batch ids are unique
func (r *BatchRepository) SaveBatch(batch *entities.Batch) error {
	if batch == nil {
		return fmt.Errorf("batch cannot be nil")
	}
	if _, exists := r.batchesMap[batch.ID]; exists {
		return fmt.Errorf("batch with id %s already exists", batch.ID)
	}
	r.batchesMap[batch.ID] = len(r.batches)
	r.batches = append(r.batches, *batch)
	return nil
}

// GetBatch returns a batch by id
func (r *BatchRepository) GetBatch(id entities.BatchID) (*entities.Batch, error) {
	index, exists := r.batchesMap[id]
	if !exists {
		return nil, fmt.Errorf("batch not found: %s", id)
	}
	return &r.batches[index], nil
}

// GetAllBatches returns all batches ordered by id
func (r *BatchRepository) GetAllBatches() ([]*entities.Batch, error) {
	batches := make([]*entities.Batch, 0, len(r.batches))
	for i := range r.batches {
		batches = append(batches, &r.batches[i])
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

// GetBatchesByProduct returns the batches of a product, oldest shipment first
func (r *BatchRepository) GetBatchesByProduct(product entities.ProductID) ([]*entities.Batch, error) {
	var batches []*entities.Batch
	for i := range r.batches {
		if r.batches[i].Product == product {
			batches = append(batches, &r.batches[i])
		}
	}
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].ShippedAt.Before(batches[j].ShippedAt)
	})
	return batches, nil
}
