package entities

import (
	"fmt"
	"math"
	"sort"
)

// Client is a buyer holding outstanding demand
type Client struct {
	ID        ClientID
	Name      string
	Group     string
	Priority  float64
	Locations []Location
}

// NewClient creates a validated Client. Locations are deduplicated and sorted.
func NewClient(id ClientID, priority float64, locations []Location) (*Client, error) {
	if id == "" {
		return nil, fmt.Errorf("client id cannot be empty")
	}
	if math.IsNaN(priority) || math.IsInf(priority, 0) {
		return nil, fmt.Errorf("priority must be finite, got %v", priority)
	}
	if priority < 0 {
		return nil, fmt.Errorf("priority cannot be negative, got %v", priority)
	}

	return &Client{
		ID:        id,
		Priority:  priority,
		Locations: uniqueLocations(locations),
	}, nil
}

// OperatesAt reports whether the client works out of the given location
func (c Client) OperatesAt(location Location) bool {
	for _, l := range c.Locations {
		if l == location {
			return true
		}
	}
	return false
}

// Priority is one row of the client importance table
type Priority struct {
	Client     ClientID
	Importance float64
}

func uniqueLocations(locations []Location) []Location {
	seen := make(map[Location]bool, len(locations))
	out := make([]Location, 0, len(locations))
	for _, l := range locations {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
