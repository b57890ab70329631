package database

import (
	"context"

	"github.com/tessera-kb/tessera/internal/models"
)

// Store is the persistence interface consumed by the indexer, the search
// engine, and the API layer. Depending on it rather than *DB keeps those
// consumers testable with fakes.
type Store interface {
	UpsertNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	DeleteNote(ctx context.Context, id string) error
	SearchNotes(ctx context.Context, query string, limit, offset int) ([]*models.Note, error)
	GetNotesByTag(ctx context.Context, tag string) ([]*models.Note, error)
	GetTagsWithCounts(ctx context.Context) (map[string]int, error)
	UpdateNoteLinks(ctx context.Context, noteID string, links []models.Link) error
	GetBacklinks(ctx context.Context, noteID string) ([]string, error)
	RebuildIndex(ctx context.Context) error
	AllChecksums(ctx context.Context) (map[string]string, error)
	ListNotes(ctx context.Context, limit, offset int) ([]*models.Note, int, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
