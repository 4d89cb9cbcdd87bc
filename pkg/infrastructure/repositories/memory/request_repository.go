package memory

import (
	"fmt"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	"github.com/vsinha/batchalloc/pkg/domain/repositories"
)

// RequestRepository provides in-memory storage of the sales programme
type RequestRepository struct {
	requests []entities.Request
}

// NewRequestRepository creates a new in-memory request repository
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{
		requests: []entities.Request{},
	}
}

// Verify interface compliance
var _ repositories.RequestRepository = (*RequestRepository)(nil)

// LoadRequests loads requests into the repository
func (r *RequestRepository) LoadRequests(requests []*entities.Request) error {
	for _, req := range requests {
		if err := r.SaveRequest(req); err != nil {
			return err
		}
	}
	return nil
}

// SaveRequest appends a request row
func (r *RequestRepository) SaveRequest(req *entities.Request) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	r.requests = append(r.requests, *req)
	return nil
}

// GetRequests returns all requests in load order
func (r *RequestRepository) GetRequests() ([]*entities.Request, error) {
	requests := make([]*entities.Request, 0, len(r.requests))
	for i := range r.requests {
		requests = append(requests, &r.requests[i])
	}
	return requests, nil
}

// GetRequestsByClient returns a client's requests in load order
func (r *RequestRepository) GetRequestsByClient(client entities.ClientID) ([]*entities.Request, error) {
	var requests []*entities.Request
	for i := range r.requests {
		if r.requests[i].Client == client {
			requests = append(requests, &r.requests[i])
		}
	}
	return requests, nil
}
