package memory

import (
	"fmt"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/repositories"
)

// PriorityRepository provides in-memory storage of client importance rows
type PriorityRepository struct {
	priorities []entities.Priority
}

// NewPriorityRepository creates a new in-memory priority repository
func NewPriorityRepository() *PriorityRepository {
	return &PriorityRepository{
		priorities: []entities.Priority{},
	}
}

// Verify interface compliance
var _ repositories.PriorityRepository = (*PriorityRepository)(nil)

// LoadPriorities loads priority rows into the repository
func (r *PriorityRepository) LoadPriorities(priorities []*entities.Priority) error {
	for _, p := range priorities {
		if err := r.SavePriority(p); err != nil {
			return err
		}
	}
	return nil
}

// SavePriority appends a priority row. Duplicates are kept; readers apply last-writer-wins.
func (r *PriorityRepository) SavePriority(p *entities.Priority) error {
	if p == nil {
		return fmt.Errorf("priority cannot be nil")
	}
	if p.Client == "" {
		return fmt.Errorf("priority client cannot be empty")
	}
	r.priorities = append(r.priorities, *p)
	return nil
}

// GetPriorities returns all priority rows in load order
func (r *PriorityRepository) GetPriorities() ([]*entities.Priority, error) {
	priorities := make([]*entities.Priority, 0, len(r.priorities))
	for i := range r.priorities {
		priorities = append(priorities, &r.priorities[i])
	}
	return priorities, nil
}
