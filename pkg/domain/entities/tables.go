package entities

import "time"

// Tables is the read-only snapshot of normalized business facts for one optimization run.
// Entity sets are expected to be deduplicated and every fact row to reference them.
type Tables struct {
	AsOf          time.Time
	Clients       []Client
	Products      []ProductID
	Batches       []Batch
	Locations     []Location
	Demands       []Demand
	Compatibility []Compatibility
}

// ClientByID returns the client with the given id
func (t *Tables) ClientByID(id ClientID) (Client, bool) {
	for _, c := range t.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

// BatchByID returns the batch with the given id
func (t *Tables) BatchByID(id BatchID) (Batch, bool) {
	for _, b := range t.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return Batch{}, false
}
