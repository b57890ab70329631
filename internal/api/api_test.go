package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/events"
	"github.com/tessera-kb/tessera/internal/indexer"
	"github.com/tessera-kb/tessera/internal/models"
	"github.com/tessera-kb/tessera/internal/search"
	"github.com/tessera-kb/tessera/internal/storage"
	"github.com/tessera-kb/tessera/internal/testutil"
)

type testEnv struct {
	root   string
	store  *storage.Storage
	db     *database.DB
	server *httptest.Server
}

func newTestEnv(t *testing.T, authEnabled bool, token string) *testEnv {
	t.Helper()
	root, store := testutil.TestMosaic(t)
	db := testutil.TestDB(t)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	ix := indexer.New(indexer.DefaultConfig(), store, db, bus, nil)
	engine := search.New(db, search.DefaultConfig(), nil)
	svc := NewService(store, db, ix, engine)

	router := NewRouter(svc, authEnabled, token, bus, filepath.Join(root, "attachments"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{root: root, store: store, db: db, server: srv}
}

func (env *testEnv) request(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, data
}

func (env *testEnv) createNote(t *testing.T, id, content string) NoteDetail {
	t.Helper()
	res, data := env.request(t, "POST", "/notes", map[string]string{
		"id":      id,
		"content": content,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create %s: status %d: %s", id, res.StatusCode, data)
	}
	var note NoteDetail
	if err := json.Unmarshal(data, &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	env := newTestEnv(t, false, "")

	content := "---\ntags: [test]\n---\n# First Note\n\nhello"
	created := env.createNote(t, "first", content)
	if created.ID != "first" || created.Title != "First Note" {
		t.Errorf("created = %+v", created)
	}
	if created.Path != "notes/first.md" {
		t.Errorf("path = %q", created.Path)
	}
	if len(created.Tags) != 1 || created.Tags[0] != "test" {
		t.Errorf("tags = %v", created.Tags)
	}

	res, data := env.request(t, "GET", "/notes/first", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", res.StatusCode)
	}
	var got NoteDetail
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Checksum != created.Checksum {
		t.Errorf("checksum drifted: %q vs %q", got.Checksum, created.Checksum)
	}
	if got.Backlinks == nil || got.Attachments == nil {
		t.Error("backlinks and attachments must serialize as arrays, not null")
	}
}

func TestCreateNote_Conflict(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "dup", "# Dup")

	res, _ := env.request(t, "POST", "/notes", map[string]string{
		"id": "dup", "content": "# Dup again",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", res.StatusCode)
	}
}

func TestCreateNote_BadRequest(t *testing.T) {
	env := newTestEnv(t, false, "")

	res, _ := env.request(t, "POST", "/notes", map[string]string{"id": "x"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("missing content: status = %d, want 400", res.StatusCode)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	env := newTestEnv(t, false, "")
	res, _ := env.request(t, "GET", "/notes/ghost", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	env := newTestEnv(t, false, "")
	created := env.createNote(t, "mutable", "# V1")

	// Stale checksum is rejected.
	res, _ := env.request(t, "PUT", "/notes/mutable", map[string]string{
		"content": "# V2",
	}, map[string]string{"If-Match": "deadbeef"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("stale If-Match: status = %d, want 409", res.StatusCode)
	}

	// Current checksum (quoted, ETag style) succeeds.
	res, data := env.request(t, "PUT", "/notes/mutable", map[string]string{
		"content": "# V2",
	}, map[string]string{"If-Match": `"` + created.Checksum + `"`})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d: %s", res.StatusCode, data)
	}
	var updated NoteDetail
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Title != "V2" {
		t.Errorf("title = %q, want V2", updated.Title)
	}
	if updated.Checksum == created.Checksum {
		t.Error("checksum should change with content")
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "doomed", "# Doomed")

	res, _ := env.request(t, "DELETE", "/notes/doomed", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", res.StatusCode)
	}
	res, _ = env.request(t, "GET", "/notes/doomed", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", res.StatusCode)
	}
	res, _ = env.request(t, "DELETE", "/notes/doomed", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("double delete: status = %d, want 404", res.StatusCode)
	}
}

func TestListNotes(t *testing.T) {
	env := newTestEnv(t, false, "")
	for i := 0; i < 3; i++ {
		env.createNote(t, fmt.Sprintf("note-%d", i), fmt.Sprintf("# Note %d", i))
	}

	res, data := env.request(t, "GET", "/notes?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body struct {
		Notes []NoteListItem `json:"notes"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 {
		t.Errorf("total = %d, want 3", body.Total)
	}
	if len(body.Notes) != 2 {
		t.Errorf("page size = %d, want 2", len(body.Notes))
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "golang", "# Go Concurrency\n\nchannels and goroutines")
	env.createNote(t, "cooking", "# Pasta\n\nboil water")

	res, data := env.request(t, "GET", "/search?q=goroutines", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var body struct {
		Results []search.Result `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 1 || body.Results[0].Note.ID != "golang" {
		t.Fatalf("results = %+v", body.Results)
	}
	if !strings.Contains(body.Results[0].Highlighted, "**goroutines**") {
		t.Errorf("highlight missing: %q", body.Results[0].Highlighted)
	}

	// Empty query is a client error.
	res, _ = env.request(t, "GET", "/search?q=", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query: status = %d, want 400", res.StatusCode)
	}
}

func TestTagSearchAndTags(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "a", "---\ntags: [work]\n---\n# A")
	env.createNote(t, "b", "---\ntags: [work, home]\n---\n# B")

	res, data := env.request(t, "GET", "/search?q=tag:work", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body struct {
		Results []search.Result `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 2 {
		t.Errorf("tag:work results = %d, want 2", len(body.Results))
	}

	res, data = env.request(t, "GET", "/tags", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tags: status %d", res.StatusCode)
	}
	var tagBody struct {
		Tags map[string]int `json:"tags"`
	}
	if err := json.Unmarshal(data, &tagBody); err != nil {
		t.Fatal(err)
	}
	if tagBody.Tags["work"] != 2 || tagBody.Tags["home"] != 1 {
		t.Errorf("tags = %v", tagBody.Tags)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "target", "# Target")
	env.createNote(t, "source", "# Source\n\nsee [target](target.md)")

	res, data := env.request(t, "GET", "/notes/target/backlinks", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body struct {
		Backlinks []string `json:"backlinks"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Backlinks) != 1 || body.Backlinks[0] != "source" {
		t.Errorf("backlinks = %v", body.Backlinks)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	env := newTestEnv(t, false, "")
	// A file placed on disk without going through the API is only picked
	// up by a rebuild.
	testutil.WriteNote(t, env.root, "offline.md", "# Offline")

	res, data := env.request(t, "POST", "/rebuild", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rebuild: status %d", res.StatusCode)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
	res, _ = env.request(t, "GET", "/notes/offline", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Errorf("note not indexed by rebuild: status %d", res.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, true, "secret-token")

	res, _ := env.request(t, "GET", "/notes", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", res.StatusCode)
	}
	res, _ = env.request(t, "GET", "/notes", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", res.StatusCode)
	}
	res, _ = env.request(t, "GET", "/notes", nil, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	if res.StatusCode != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", res.StatusCode)
	}
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.createNote(t, "host", "# Host")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("\x89PNG\r\n\x1a\nfake image bytes")
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req, err := http.NewRequest("POST", env.server.URL+"/notes/host/attachments", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d: %s", res.StatusCode, data)
	}
	var att models.Attachment
	if err := json.Unmarshal(data, &att); err != nil {
		t.Fatal(err)
	}
	if att.Filename != "photo.png" || att.Size != int64(len(payload)) {
		t.Errorf("attachment = %+v", att)
	}

	// The note now lists the attachment.
	res2, data2 := env.request(t, "GET", "/notes/host", nil, nil)
	if res2.StatusCode != http.StatusOK {
		t.Fatal("get note failed")
	}
	var note NoteDetail
	if err := json.Unmarshal(data2, &note); err != nil {
		t.Fatal(err)
	}
	if len(note.Attachments) != 1 || note.Attachments[0].Filename != "photo.png" {
		t.Errorf("note attachments = %+v", note.Attachments)
	}

	// Download round-trips the bytes.
	res3, data3 := env.request(t, "GET", "/attachments/host/photo.png", nil, nil)
	if res3.StatusCode != http.StatusOK {
		t.Fatalf("download: status %d", res3.StatusCode)
	}
	if !bytes.Equal(data3, payload) {
		t.Error("downloaded bytes differ from upload")
	}

	res4, _ := env.request(t, "GET", "/attachments/host/missing.png", nil, nil)
	if res4.StatusCode != http.StatusNotFound {
		t.Errorf("missing attachment: status = %d, want 404", res4.StatusCode)
	}
}

func TestAttachmentUpload_UnknownNote(t *testing.T) {
	env := newTestEnv(t, false, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "x.txt")
	fw.Write([]byte("data"))
	mw.Close()

	req, _ := http.NewRequest("POST", env.server.URL+"/notes/ghost/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}
