// Package storage maps between on-disk files and the Note/Attachment/Link model.
package storage

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/checksum"
	"github.com/tessera-kb/tessera/internal/models"
)

// Config holds the mosaic layout and attachment limits.
type Config struct {
	Root              string
	NotesDir          string
	AttachmentsDir    string
	NoteExtensions    []string
	MaxAttachmentSize int64
}

// DefaultConfig returns the canonical mosaic layout.
func DefaultConfig(root string) Config {
	return Config{
		Root:              root,
		NotesDir:          "notes",
		AttachmentsDir:    "attachments",
		NoteExtensions:    []string{".md", ".markdown"},
		MaxAttachmentSize: 100 << 20, // 100 MB
	}
}

// Storage reads and writes mosaic files. It never touches the database.
type Storage struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Storage rooted at cfg.Root. The root must exist.
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, apperr.FileOp("resolve root", cfg.Root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrMosaicNotInitialized
		}
		return nil, apperr.FileOp("stat root", abs, err)
	}
	if !info.IsDir() {
		return nil, apperr.FileOp("stat root", abs, fmt.Errorf("not a directory"))
	}
	cfg.Root = abs
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{cfg: cfg, logger: logger}, nil
}

// NotesDir returns the absolute path of the notes directory.
func (s *Storage) NotesDir() string {
	return filepath.Join(s.cfg.Root, s.cfg.NotesDir)
}

// AttachmentsDir returns the absolute path of the attachments directory.
func (s *Storage) AttachmentsDir() string {
	return filepath.Join(s.cfg.Root, s.cfg.AttachmentsDir)
}

// Root returns the absolute mosaic root.
func (s *Storage) Root() string {
	return s.cfg.Root
}

// safePath resolves rel against the mosaic root and rejects any result
// that escapes it.
func (s *Storage) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", apperr.FileOp("resolve", rel, fmt.Errorf("absolute paths not allowed"))
	}
	abs, err := filepath.Abs(filepath.Join(s.cfg.Root, cleaned))
	if err != nil {
		return "", apperr.FileOp("resolve", rel, err)
	}
	if abs != s.cfg.Root && !strings.HasPrefix(abs, s.cfg.Root+string(os.PathSeparator)) {
		return "", apperr.FileOp("resolve", rel, fmt.Errorf("path escapes mosaic root"))
	}
	return abs, nil
}

// relPath makes p relative to the mosaic root when it is absolute.
func (s *Storage) relPath(p string) string {
	if !filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if rel, err := filepath.Rel(s.cfg.Root, p); err == nil {
		return rel
	}
	return p
}

// NoteIDForPath derives the note id (the filename stem) from any path to
// a note file.
func NoteIDForPath(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isNoteFile reports whether path carries a configured note extension.
func (s *Storage) isNoteFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range s.cfg.NoteExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ParseNote builds a Note from raw file content. The path supplies the id
// (filename stem) and file-system timestamps; content supplies everything
// else. Malformed frontmatter degrades to an empty-metadata note.
func (s *Storage) ParseNote(path string, content []byte) (*models.Note, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "" || stem == "." {
		return nil, apperr.Parse("filename", fmt.Sprintf("cannot derive note id from %q", path))
	}

	meta, body := splitFrontmatter(content)

	title := meta.Title
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = stem
	}

	createdAt, modifiedAt := fileTimes(path)
	if meta.Created != nil {
		createdAt = *meta.Created
	}
	if meta.Modified != nil {
		modifiedAt = *meta.Modified
	}

	return &models.Note{
		ID:         stem,
		Title:      title,
		RawContent: content,
		Body:       body,
		Metadata:   meta,
		Path:       s.relPath(path),
		Checksum:   checksum.Sum(content),
		CreatedAt:  createdAt,
		ModifiedAt: modifiedAt,
	}, nil
}

// fileTimes returns creation and modification times from file metadata,
// falling back to now when the file cannot be statted.
func fileTimes(path string) (time.Time, time.Time) {
	now := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		return now, now
	}
	// Birth time is not portably available; mod time serves for both.
	return info.ModTime(), info.ModTime()
}

// SaveNote writes note.RawContent verbatim, creating parent directories as
// needed. The write is atomic: tmp file, fsync, rename.
func (s *Storage) SaveNote(note *models.Note) error {
	abs, err := s.safePath(note.Path)
	if err != nil {
		return err
	}
	return s.writeAtomic(abs, note.RawContent)
}

func (s *Storage) writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.FileOp("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tessera-tmp-*")
	if err != nil {
		return apperr.FileOp("create temp", dir, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return apperr.FileOp("write temp", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return apperr.FileOp("fsync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.FileOp("close temp", tmpName, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return apperr.FileOp("rename", abs, err)
	}
	success = true
	return nil
}

// DeleteNote removes the note file at path (relative to the mosaic root).
func (s *Storage) DeleteNote(path string) error {
	abs, err := s.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return apperr.ErrNoteNotFound
		}
		return apperr.FileOp("remove", path, err)
	}
	return nil
}

// LoadNote reads and parses the note at path (relative to the mosaic root).
func (s *Storage) LoadNote(path string) (*models.Note, error) {
	abs, err := s.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrNoteNotFound
		}
		return nil, apperr.FileOp("read", path, err)
	}
	return s.ParseNote(abs, data)
}

// ListNotes walks the notes directory and parses every note file. Files
// that fail to parse are logged and skipped; a single corrupt note never
// aborts the listing.
func (s *Storage) ListNotes() ([]*models.Note, error) {
	notesDir := s.NotesDir()
	if _, err := os.Stat(notesDir); os.IsNotExist(err) {
		return nil, nil
	}

	var notes []*models.Note
	err := filepath.WalkDir(notesDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !s.isNoteFile(p) {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			s.logger.Warn("storage: skipping unreadable note",
				slog.String("path", p), slog.String("error", readErr.Error()))
			return nil
		}
		note, parseErr := s.ParseNote(p, data)
		if parseErr != nil {
			s.logger.Warn("storage: skipping unparseable note",
				slog.String("path", p), slog.String("error", parseErr.Error()))
			return nil
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, apperr.FileOp("list notes", notesDir, err)
	}
	return notes, nil
}
