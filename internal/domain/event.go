package domain

import (
	"path"
	"strings"
)

// EventType is the kind of change a watcher observed on a file
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// CanonicalEventTypes lists event types in their canonical order
var CanonicalEventTypes = []EventType{EventCreated, EventModified, EventDeleted}

// Valid reports whether t is one of the canonical event types
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventModified, EventDeleted:
		return true
	}
	return false
}

// FileEvent is a single debounced change emitted by the watcher.
// Path is relative to the watched root and uses forward slashes.
type FileEvent struct {
	Type      EventType `json:"type" validate:"required,oneof=created modified deleted"`
	Path      string    `json:"path" validate:"required,max=4096"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
}

// Extension returns the lowercased extension of the event path including the dot
func (e FileEvent) Extension() string {
	return strings.ToLower(path.Ext(e.Path))
}

// NormalizePath converts a watcher path into the forward-slash form rules match against
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}
