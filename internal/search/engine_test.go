package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/models"
)

// fakeStore is an in-memory database.Store serving canned results.
type fakeStore struct {
	searchResults []*models.Note
	tagResults    []*models.Note
	tags          map[string]int
	searchErr     error
}

func (f *fakeStore) UpsertNote(context.Context, *models.Note) error { return nil }
func (f *fakeStore) GetNote(context.Context, string) (*models.Note, error) {
	return nil, nil
}
func (f *fakeStore) DeleteNote(context.Context, string) error { return nil }
func (f *fakeStore) SearchNotes(_ context.Context, _ string, limit, _ int) ([]*models.Note, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.searchResults) > limit {
		return f.searchResults[:limit], nil
	}
	return f.searchResults, nil
}
func (f *fakeStore) GetNotesByTag(context.Context, string) ([]*models.Note, error) {
	return f.tagResults, nil
}
func (f *fakeStore) GetTagsWithCounts(context.Context) (map[string]int, error) {
	return f.tags, nil
}
func (f *fakeStore) UpdateNoteLinks(context.Context, string, []models.Link) error { return nil }
func (f *fakeStore) GetBacklinks(context.Context, string) ([]string, error)       { return nil, nil }
func (f *fakeStore) RebuildIndex(context.Context) error                           { return nil }
func (f *fakeStore) AllChecksums(context.Context) (map[string]string, error)      { return nil, nil }
func (f *fakeStore) ListNotes(context.Context, int, int) ([]*models.Note, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) Close() error { return nil }

func testNote(id, title, body string, modified time.Time, tags ...string) *models.Note {
	return &models.Note{
		ID:         id,
		Title:      title,
		Body:       body,
		Path:       "notes/" + id + ".md",
		ModifiedAt: modified,
		Metadata:   models.NoteMetadata{Tags: tags},
	}
}

func TestParseQuery(t *testing.T) {
	e := New(&fakeStore{}, DefaultConfig(), nil)

	tests := []struct {
		query  string
		kind   queryKind
		text   string
		weight float64
	}{
		{"hello world", kindFullText, "hello world", 1.0},
		{"  padded  ", kindFullText, "padded", 1.0},
		{"tag:project", kindTag, "project", 1.0},
		{"tag: spaced", kindTag, "spaced", 1.0},
		{"title:meeting", kindTitle, "meeting", 2.0},
		{"titlecase", kindFullText, "titlecase", 1.0},
	}
	for _, tt := range tests {
		c, err := e.parseQuery(tt.query)
		if err != nil {
			t.Fatalf("parseQuery(%q): %v", tt.query, err)
		}
		if c.kind != tt.kind || c.text != tt.text || c.weight != tt.weight {
			t.Errorf("parseQuery(%q) = %+v, want kind=%d text=%q weight=%v",
				tt.query, c, tt.kind, tt.text, tt.weight)
		}
	}
}

func TestParseQuery_Empty(t *testing.T) {
	e := New(&fakeStore{}, DefaultConfig(), nil)
	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := e.parseQuery(q); err == nil {
			t.Errorf("parseQuery(%q) should fail", q)
		}
	}

	_, err := e.Search(context.Background(), "")
	var serr *apperr.SearchError
	if !errors.As(err, &serr) {
		t.Fatalf("Search(\"\") error = %v, want SearchError", err)
	}
}

func TestSearch_RecencyAndTitleBoost(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := testNote("fresh", "Daily log", "golang notes", now)
	old := testNote("old", "Archive", "golang archive", now.AddDate(0, 0, -9))
	titled := testNote("titled", "Golang tips", "tips", now.AddDate(0, 0, -9))

	fs := &fakeStore{searchResults: []*models.Note{old, fresh, titled}}
	e := New(fs, DefaultConfig(), nil)
	e.now = func() time.Time { return now }

	results, err := e.Search(context.Background(), "golang")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// Title match doubles the score, so "titled" outranks both; "fresh"
	// gets the full recency boost, "old" (9 days) a tenth of it.
	wantOrder := []string{"titled", "fresh", "old"}
	for i, id := range wantOrder {
		if results[i].Note.ID != id {
			t.Fatalf("rank %d = %s, want %s", i, results[i].Note.ID, id)
		}
	}

	approx := func(got, want float64) bool {
		d := got - want
		return d < 1e-9 && d > -1e-9
	}
	if !approx(results[1].Score, 1.0+0.1) {
		t.Errorf("fresh score = %v, want 1.1", results[1].Score)
	}
	if !approx(results[2].Score, 1.0+0.1/10) {
		t.Errorf("old score = %v, want 1.01", results[2].Score)
	}
	if !approx(results[0].Score, (1.0+0.1/10)*2.0) {
		t.Errorf("titled score = %v, want 2.02", results[0].Score)
	}
}

func TestSearch_TagQuery(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{tagResults: []*models.Note{
		testNote("a", "A", "body", now, "project"),
		testNote("b", "B", "body", now, "project"),
	}}
	e := New(fs, DefaultConfig(), nil)

	results, err := e.Search(context.Background(), "tag:project")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Score != 1.0 {
			t.Errorf("tag result score = %v, want 1.0", r.Score)
		}
		if len(r.Matches) != 1 || r.Matches[0].Type != MatchTag || r.Matches[0].Content != "project" {
			t.Errorf("tag result matches = %+v", r.Matches)
		}
	}
}

func TestRank_DedupAndTruncate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxResults = 2
	e := New(&fakeStore{}, cfg, nil)

	n := func(id string) *models.Note { return testNote(id, id, "", time.Now()) }
	results := e.rank([]Result{
		{Note: n("a"), Score: 1.0},
		{Note: n("a"), Score: 5.0}, // duplicate, first occurrence wins
		{Note: n("b"), Score: 3.0},
		{Note: n("c"), Score: 2.0},
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Note.ID != "b" || results[1].Note.ID != "c" {
		t.Errorf("order = [%s %s], want [b c]", results[0].Note.ID, results[1].Note.ID)
	}
}

func TestFindMatches(t *testing.T) {
	note := testNote("n", "Go Patterns", "intro line\nuses go routines\nclosing line", time.Now(), "golang", "misc")

	matches := findMatches(note, "go")
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(matches), matches)
	}

	title := matches[0]
	if title.Type != MatchTitle || title.Content != "Go Patterns" || title.StartOffset != 0 {
		t.Errorf("title match = %+v", title)
	}

	body := matches[1]
	if body.Type != MatchBody || body.LineNumber != 1 {
		t.Errorf("body match = %+v, want line 1", body)
	}
	if body.StartOffset != 5 || body.EndOffset != 7 {
		t.Errorf("body offsets = [%d,%d), want [5,7)", body.StartOffset, body.EndOffset)
	}
	if body.ContextBefore != "intro line" || body.ContextAfter != "closing line" {
		t.Errorf("context = %q / %q", body.ContextBefore, body.ContextAfter)
	}

	tag := matches[2]
	if tag.Type != MatchTag || tag.Content != "golang" {
		t.Errorf("tag match = %+v", tag)
	}
}

func TestFindMatches_FirstAndLastLine(t *testing.T) {
	note := testNote("n", "x", "go here\nmiddle\ngo there", time.Now())
	matches := findMatches(note, "go")
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].LineNumber != 0 || matches[0].ContextBefore != "" || matches[0].ContextAfter != "middle" {
		t.Errorf("first-line match = %+v", matches[0])
	}
	if matches[1].LineNumber != 2 || matches[1].ContextBefore != "middle" || matches[1].ContextAfter != "" {
		t.Errorf("last-line match = %+v", matches[1])
	}
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		content, query, want string
	}{
		{"hello world", "world", "hello **world**"},
		{"Hello World", "world", "Hello **World**"},
		{"world world", "world", "**world** world"},
		{"no match here", "zzz", "no match here"},
	}
	for _, tt := range tests {
		if got := highlight(tt.content, tt.query); got != tt.want {
			t.Errorf("highlight(%q, %q) = %q, want %q", tt.content, tt.query, got, tt.want)
		}
	}
}

func TestGetSuggestions(t *testing.T) {
	fs := &fakeStore{tags: map[string]int{
		"project":  3,
		"projects": 1,
		"other":    5,
	}}
	e := New(fs, DefaultConfig(), nil)
	ctx := context.Background()

	// Seed history through real searches.
	if _, err := e.Search(ctx, "project planning"); err != nil {
		t.Fatal(err)
	}

	sugs, err := e.GetSuggestions(ctx, "project")
	if err != nil {
		t.Fatal(err)
	}
	if len(sugs) != 3 {
		t.Fatalf("got %d suggestions, want 3: %+v", len(sugs), sugs)
	}

	// Exact tag first at 1.0, then near-miss tag, then history at 0.7.
	if sugs[0].Text != "tag:project" || sugs[0].Confidence != 1.0 || sugs[0].Type != SuggestionTag {
		t.Errorf("sugs[0] = %+v", sugs[0])
	}
	if sugs[1].Text != "tag:projects" || sugs[1].Confidence != 0.7 {
		t.Errorf("sugs[1] = %+v, want tag:projects at 0.7", sugs[1])
	}
	if sugs[2].Text != "project planning" || sugs[2].Type != SuggestionQuery || sugs[2].Confidence != 0.7 {
		t.Errorf("sugs[2] = %+v", sugs[2])
	}
}

func TestGetSuggestions_ShortPartial(t *testing.T) {
	e := New(&fakeStore{tags: map[string]int{"go": 1}}, DefaultConfig(), nil)
	sugs, err := e.GetSuggestions(context.Background(), "g")
	if err != nil {
		t.Fatal(err)
	}
	if sugs != nil {
		t.Errorf("partial below two chars should yield nil, got %+v", sugs)
	}
}

func TestGetSuggestions_ConfidenceFloor(t *testing.T) {
	fs := &fakeStore{tags: map[string]int{"golang-concurrency-patterns": 1}}
	e := New(fs, DefaultConfig(), nil)

	sugs, err := e.GetSuggestions(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if len(sugs) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(sugs))
	}
	if sugs[0].Confidence != 0.1 {
		t.Errorf("confidence = %v, want floor 0.1", sugs[0].Confidence)
	}
}

func TestGetSuggestions_Truncated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSuggestions = 2
	tags := make(map[string]int)
	for i := 0; i < 5; i++ {
		tags[fmt.Sprintf("note-%d", i)] = 1
	}
	e := New(&fakeStore{tags: tags}, cfg, nil)

	sugs, err := e.GetSuggestions(context.Background(), "note")
	if err != nil {
		t.Fatal(err)
	}
	if len(sugs) != 2 {
		t.Errorf("got %d suggestions, want 2", len(sugs))
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	e := New(&fakeStore{}, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := e.Search(ctx, fmt.Sprintf("query %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	e.mu.Lock()
	got := len(e.history)
	last := e.history[len(e.history)-1]
	e.mu.Unlock()
	if got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
	if !strings.HasSuffix(last, "9") {
		t.Errorf("newest history entry = %q", last)
	}
}

func TestSearchError_Propagates(t *testing.T) {
	fs := &fakeStore{searchErr: errors.New("disk on fire")}
	e := New(fs, DefaultConfig(), nil)
	if _, err := e.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error from store to propagate")
	}
}
