package repositories

import "github.com/vsinha/batchalloc/pkg/domain/entities"

// RequestRepository provides access to the sales programme
type RequestRepository interface {
	GetRequests() ([]*entities.Request, error)
	GetRequestsByClient(client entities.ClientID) ([]*entities.Request, error)
	LoadRequests(requests []*entities.Request) error
}
