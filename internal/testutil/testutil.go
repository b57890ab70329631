// Package testutil provides shared test helpers for setting up mosaics
// and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *database.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tessera-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := database.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestMosaic creates a temporary mosaic directory with notes/ and
// attachments/ laid out, and returns it with a *storage.Storage.
func TestMosaic(t *testing.T) (string, *storage.Storage) {
	t.Helper()
	root := t.TempDir()
	cfg := storage.DefaultConfig(root)
	for _, dir := range []string{cfg.NotesDir, cfg.AttachmentsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteNote writes a note file under the mosaic's notes directory and
// returns its mosaic-relative path.
func WriteNote(t *testing.T, root, name, content string) string {
	t.Helper()
	abs := filepath.Join(root, "notes", name)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		t.Fatal(err)
	}
	return filepath.ToSlash(rel)
}

// Eventually polls until cond returns true or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
