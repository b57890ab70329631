package models

// IndexEventType identifies the kind of an index lifecycle event.
type IndexEventType string

const (
	EventNoteIndexed      IndexEventType = "note.indexed"
	EventNoteRemoved      IndexEventType = "note.removed"
	EventRebuildStarted   IndexEventType = "rebuild.started"
	EventRebuildCompleted IndexEventType = "rebuild.completed"
	EventIndexError       IndexEventType = "index.error"
)

// IndexEvent is a transient notification describing one indexing outcome.
// Events are broadcast, never persisted.
type IndexEvent struct {
	Type   IndexEventType `json:"type"`
	Path   string         `json:"path,omitempty"`
	NoteID string         `json:"note_id,omitempty"`
	Count  int            `json:"count,omitempty"`
	Reason string         `json:"reason,omitempty"`
}
