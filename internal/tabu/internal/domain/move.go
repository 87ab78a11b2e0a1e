package domain

import (
	"fmt"
	"time"
)

// Move is a forbidden move in a local search, typically a pair of
// coordinates such as (item, bin) or (from, to). It marshals to JSON as a
// two-element array.
type Move [2]int64

// String formats the move as "(a,b)".
func (m Move) String() string {
	return fmt.Sprintf("(%d,%d)", m[0], m[1])
}

// ListInfo describes a tabu list owned by the registry.
type ListInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Capacity   int       `json:"capacity"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}
