// Package events defines the tabu list lifecycle events shared by the
// registry service and the NATS publisher.
package events

import (
	"strings"
	"time"
)

// Type is the kind of lifecycle change a ListEvent describes.
type Type string

// List lifecycle event types.
const (
	TypeCreated Type = "created"
	TypeReset   Type = "reset"
	TypeDeleted Type = "deleted"
	TypeExpired Type = "expired"
)

// SubjectPrefix is the root of every subject lifecycle events are published on.
const SubjectPrefix = "tabu.lists"

// ListEvent is emitted when a tabu list is created, reset, deleted or
// expired by the idle sweep.
type ListEvent struct {
	Type       Type      `json:"type"`
	ListID     string    `json:"list_id"`
	Name       string    `json:"name"`
	Capacity   int       `json:"capacity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Subject returns the NATS subject for the event.
// Format: tabu.lists.{type}.
func (e ListEvent) Subject() string {
	return SubjectPrefix + "." + SanitizeSubjectName(string(e.Type))
}

// SanitizeSubjectName sanitizes a name for use in NATS subjects.
func SanitizeSubjectName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "*", "_")
	name = strings.ReplaceAll(name, ">", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
