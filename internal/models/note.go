// Package models defines the domain types for Tessera.
package models

import "time"

// Note represents a parsed Markdown document in the mosaic.
type Note struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	RawContent  []byte       `json:"-"`
	Body        string       `json:"body"`
	Metadata    NoteMetadata `json:"metadata"`
	Path        string       `json:"path"`
	Checksum    string       `json:"checksum"`
	CreatedAt   time.Time    `json:"created_at"`
	ModifiedAt  time.Time    `json:"modified_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NoteMetadata is the structured frontmatter of a note. Unrecognized
// fields land in Custom so they survive a round trip.
type NoteMetadata struct {
	Title    string               `json:"title,omitempty"`
	Tags     []string             `json:"tags,omitempty"`
	Aliases  []string             `json:"aliases,omitempty"`
	Created  *time.Time           `json:"created,omitempty"`
	Modified *time.Time           `json:"modified,omitempty"`
	Custom   map[string]MetaValue `json:"custom,omitempty"`
}

// Attachment is a binary file associated with one or more notes.
type Attachment struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	MIMEType string   `json:"mime_type"`
	Size     int64    `json:"size"`
	Checksum string   `json:"checksum"`
	Path     string   `json:"path"`
	NoteIDs  []string `json:"note_ids,omitempty"`
}

// LinkType classifies a link target.
type LinkType string

const (
	LinkInternal   LinkType = "internal"
	LinkExternal   LinkType = "external"
	LinkAttachment LinkType = "attachment"
)

// Link is a reference extracted from a note body. Position is the ordinal
// index of the link within the document, not a byte offset.
type Link struct {
	Type     LinkType `json:"type"`
	Target   string   `json:"target"`
	Text     string   `json:"text,omitempty"`
	Position int      `json:"position"`
}
