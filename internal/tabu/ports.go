// Package tabu provides named, bounded tabu lists for local search. Each
// list remembers the most recently inserted distinct moves up to its
// capacity and forgets the oldest one first; membership queries never change
// that order.
package tabu

import (
	"context"
	"net/http"
)

// Registry manages tabu lists. Implementations must be safe for concurrent
// use.
type Registry interface {
	// CreateList registers a new empty list with a fixed capacity.
	CreateList(ctx context.Context, name string, capacity int) (ListInfo, error)

	// GetList returns the current state of a list.
	GetList(ctx context.Context, id string) (ListInfo, error)

	// Lists returns every registered list, oldest first.
	Lists(ctx context.Context) []ListInfo

	// DeleteList removes a list.
	DeleteList(ctx context.Context, id string) error

	// ResetList empties a list, optionally changing its capacity.
	ResetList(ctx context.Context, id string, capacity *int) (ListInfo, error)

	// IsTabu reports whether move is currently forbidden in the list.
	IsTabu(ctx context.Context, id string, move Move) (bool, error)

	// Insert marks move as tabu, evicting the oldest move when full.
	Insert(ctx context.Context, id string, move Move) (InsertResult, error)

	// FilterAllowed returns the candidates that are not tabu.
	FilterAllowed(ctx context.Context, id string, candidates []Move) ([]Move, error)

	// RegisterRoutes mounts the HTTP API on mux.
	RegisterRoutes(mux *http.ServeMux)

	// Start begins the background idle list sweep.
	Start(ctx context.Context)

	// Stop ends the idle sweep and waits for it to finish.
	Stop()
}
