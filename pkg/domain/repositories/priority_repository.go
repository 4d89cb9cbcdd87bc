package repositories

import "github.com/vsinha/batchalloc/pkg/domain/entities"

// PriorityRepository provides access to client importance.
// Rows are returned in load order; later rows supersede earlier ones for the same client.
type PriorityRepository interface {
	GetPriorities() ([]*entities.Priority, error)
	LoadPriorities(priorities []*entities.Priority) error
}
