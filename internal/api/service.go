package api

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/indexer"
	"github.com/tessera-kb/tessera/internal/models"
	"github.com/tessera-kb/tessera/internal/search"
	"github.com/tessera-kb/tessera/internal/storage"
)

// Service coordinates storage, database, indexer and search operations
// for the API layer.
type Service struct {
	store  *storage.Storage
	db     database.Store
	ix     *indexer.Indexer
	engine *search.Engine
}

// NewService creates a new API service.
func NewService(store *storage.Storage, db database.Store, ix *indexer.Indexer, engine *search.Engine) *Service {
	return &Service{store: store, db: db, ix: ix, engine: engine}
}

// NoteDetail is the response payload for a single note.
type NoteDetail struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Path        string              `json:"path"`
	Content     string              `json:"content"`
	Body        string              `json:"body"`
	Checksum    string              `json:"checksum"`
	Tags        []string            `json:"tags"`
	Backlinks   []string            `json:"backlinks"`
	Attachments []models.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
	ModifiedAt  time.Time           `json:"modified_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Tags       []string  `json:"tags"`
	ModifiedAt time.Time `json:"modified_at"`
}

// notePathForID returns the canonical mosaic-relative path for a note id.
func notePathForID(id string) string {
	return path.Join("notes", id+".md")
}

func (s *Service) detail(ctx context.Context, note *models.Note) (*NoteDetail, error) {
	backlinks, err := s.db.GetBacklinks(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	if backlinks == nil {
		backlinks = []string{}
	}
	tags := note.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	attachments := note.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	return &NoteDetail{
		ID:          note.ID,
		Title:       note.Title,
		Path:        note.Path,
		Content:     string(note.RawContent),
		Body:        note.Body,
		Checksum:    note.Checksum,
		Tags:        tags,
		Backlinks:   backlinks,
		Attachments: attachments,
		CreatedAt:   note.CreatedAt,
		ModifiedAt:  note.ModifiedAt,
	}, nil
}

// GetNote loads a note by id from the database and enriches it with
// backlinks.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	note, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, apperr.ErrNoteNotFound
	}
	return s.detail(ctx, note)
}

// CreateNote writes a new note file and indexes it. Fails with
// ErrAlreadyExists when the id is taken.
func (s *Service) CreateNote(ctx context.Context, id string, content []byte) (*NoteDetail, error) {
	existing, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.ErrAlreadyExists
	}

	relPath := notePathForID(id)
	note, err := s.store.ParseNote(relPath, content)
	if err != nil {
		return nil, err
	}
	note.Path = relPath
	if err := s.store.SaveNote(note); err != nil {
		return nil, err
	}
	if err := s.ix.IndexFile(ctx, relPath); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, id)
}

// UpdateNote replaces a note's content with optimistic concurrency: when
// ifMatch is non-empty it must equal the current checksum.
func (s *Service) UpdateNote(ctx context.Context, id string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.ErrNoteNotFound
	}
	if ifMatch != "" && ifMatch != existing.Checksum {
		return nil, apperr.ErrConflict
	}

	note, err := s.store.ParseNote(existing.Path, content)
	if err != nil {
		return nil, err
	}
	note.Path = existing.Path
	if err := s.store.SaveNote(note); err != nil {
		return nil, err
	}
	if err := s.ix.IndexFile(ctx, note.Path); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, id)
}

// DeleteNote removes a note from disk and from the index.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	note, err := s.db.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if note == nil {
		return apperr.ErrNoteNotFound
	}
	if err := s.store.DeleteNote(note.Path); err != nil {
		return err
	}
	return s.ix.RemoveFromIndex(ctx, note.Path)
}

// ListNotes returns paginated notes, most recently modified first.
func (s *Service) ListNotes(ctx context.Context, limit, offset int) ([]NoteListItem, int, error) {
	notes, total, err := s.db.ListNotes(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(notes))
	for i, n := range notes {
		tags := n.Metadata.Tags
		if tags == nil {
			tags = []string{}
		}
		items[i] = NoteListItem{
			ID:         n.ID,
			Title:      n.Title,
			Path:       n.Path,
			Checksum:   n.Checksum,
			Tags:       tags,
			ModifiedAt: n.ModifiedAt,
		}
	}
	return items, total, nil
}

// Search delegates to the search engine.
func (s *Service) Search(ctx context.Context, query string) ([]search.Result, error) {
	return s.engine.Search(ctx, query)
}

// Suggest delegates to the search engine.
func (s *Service) Suggest(ctx context.Context, partial string) ([]search.Suggestion, error) {
	return s.engine.GetSuggestions(ctx, partial)
}

// Tags returns every tag with its usage count.
func (s *Service) Tags(ctx context.Context) (map[string]int, error) {
	return s.db.GetTagsWithCounts(ctx)
}

// Backlinks returns the ids of notes linking to id.
func (s *Service) Backlinks(ctx context.Context, id string) ([]string, error) {
	return s.db.GetBacklinks(ctx, id)
}

// Rebuild runs a full re-index of the mosaic and returns the number of
// notes indexed.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	return s.ix.RebuildIndex(ctx)
}

// AddAttachment copies sourcePath into the owning note's attachment
// namespace and persists the association.
func (s *Service) AddAttachment(ctx context.Context, noteID, sourcePath string) (*models.Attachment, error) {
	note, err := s.db.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, apperr.ErrNoteNotFound
	}
	att, err := s.store.AddAttachment(sourcePath, noteID)
	if err != nil {
		return nil, err
	}
	note.Attachments = append(note.Attachments, *att)
	if err := s.db.UpsertNote(ctx, note); err != nil {
		return nil, fmt.Errorf("api: persist attachment: %w", err)
	}
	return att, nil
}
