package repositories

import "github.com/vsinha/batchalloc/pkg/domain/entities"

// BatchRepository provides access to stock batches and their eligibility maps
type BatchRepository interface {
	GetBatch(id entities.BatchID) (*entities.Batch, error)
	GetAllBatches() ([]*entities.Batch, error)
	GetBatchesByProduct(product entities.ProductID) ([]*entities.Batch, error)
	LoadBatches(batches []*entities.Batch) error
}
