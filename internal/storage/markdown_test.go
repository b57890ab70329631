package storage

import (
	"testing"

	"github.com/tessera-kb/tessera/internal/models"
)

func TestExtractLinks_Classification(t *testing.T) {
	_, store := testStorage(t)
	body := `See [note b](b.md) and [the docs](https://example.com/docs).
Also [diagram](attachment:diagram.png) and [local file](file:data.csv).
`
	links := store.ExtractLinks(body)
	if len(links) != 4 {
		t.Fatalf("expected 4 links, got %d: %v", len(links), links)
	}

	wantTypes := []models.LinkType{
		models.LinkInternal,
		models.LinkExternal,
		models.LinkAttachment,
		models.LinkAttachment,
	}
	for i, want := range wantTypes {
		if links[i].Type != want {
			t.Errorf("links[%d].Type = %q, want %q", i, links[i].Type, want)
		}
		if links[i].Position != i {
			t.Errorf("links[%d].Position = %d, want %d", i, links[i].Position, i)
		}
	}
	if links[0].Target != "b" {
		t.Errorf("internal target = %q, want note id %q", links[0].Target, "b")
	}
	if links[0].Text != "note b" {
		t.Errorf("display text = %q", links[0].Text)
	}
	if links[1].Target != "https://example.com/docs" {
		t.Errorf("external target = %q", links[1].Target)
	}
}

func TestExtractLinks_InternalNormalization(t *testing.T) {
	_, store := testStorage(t)
	body := "[a](topics/deep/a.md#section) [b](b.markdown) [c](c)"
	links := store.ExtractLinks(body)
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	for i, want := range []string{"a", "b", "c"} {
		if links[i].Target != want {
			t.Errorf("links[%d].Target = %q, want %q", i, links[i].Target, want)
		}
	}
}

func TestExtractLinks_AutoLink(t *testing.T) {
	_, store := testStorage(t)
	links := store.ExtractLinks("visit <https://example.com> today")
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Type != models.LinkExternal {
		t.Errorf("type = %q, want external", links[0].Type)
	}
}

func TestExtractLinks_Idempotent(t *testing.T) {
	_, store := testStorage(t)
	body := "[a](a.md) text [b](b.md)"
	first := store.ExtractLinks(body)
	second := store.ExtractLinks(body)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("links[%d] differ: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestFirstHeading(t *testing.T) {
	if got := firstHeading("para\n\n## Second Level\n\n# Top"); got != "Second Level" {
		t.Errorf("firstHeading = %q, want first heading in document order", got)
	}
	if got := firstHeading("no headings at all"); got != "" {
		t.Errorf("firstHeading = %q, want empty", got)
	}
}
