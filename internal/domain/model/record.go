package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownResource is returned for a collection name the console does not administer.
var ErrUnknownResource = errors.New("unknown resource")

// Record is one row of an administered resource, keyed by field name. The
// session layer enforces no schema on it.
type Record map[string]any

// Delta is the subset of an edited Record that differs from its prior state.
type Delta = Record

// Resource names an administered entity collection on the backend.
type Resource string

const (
	ResourceUsers    Resource = "users"
	ResourceBookings Resource = "bookings"
	ResourceRooms    Resource = "rooms"
	ResourceDesks    Resource = "desks"
)

// Resources lists every collection the console administers.
var Resources = []Resource{ResourceUsers, ResourceBookings, ResourceRooms, ResourceDesks}

// ParseResource validates a collection name.
func ParseResource(name string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Resources {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownResource, name)
}

// SortOrder is the direction of a list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ListParams selects a page of a resource collection. A zero Limit requests
// the whole collection.
type ListParams struct {
	Offset    int
	Limit     int
	SortField string
	SortOrder SortOrder
}

// Page is one list response with the total reported by the backend.
type Page struct {
	Records []Record
	Total   int
}
