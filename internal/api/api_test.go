package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/lattice/internal/editor"
	"github.com/starford/lattice/internal/llm"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/parser"
	"github.com/starford/lattice/internal/sse"
	"github.com/starford/lattice/internal/suggest"
	"github.com/starford/lattice/internal/testutil"
)

// testEnv sets up a SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	svc, err := noteservice.New(noteservice.Options{
		Index:    db,
		Provider: llm.NewLocal(2),
		Editor:   editor.Options{TitleDebounce: 10 * time.Millisecond, ContentDebounce: 10 * time.Millisecond},
		Suggest:  suggest.Options{Debounce: 10 * time.Millisecond, Timeout: time.Second},
	})
	if err != nil {
		t.Fatalf("noteservice.New: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, NewRouter(svc, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body.String())
	}
	return v
}

func doc(text string) string {
	return parser.Encode(parser.FromText(text))
}

func TestListSpaces(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/spaces", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("spaces = %d", w.Code)
	}
	if got := decode[SpaceListResponse](t, w); len(got.Spaces) != 3 {
		t.Errorf("spaces = %d, want 3", len(got.Spaces))
	}
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{SpaceID: "space-2", Title: "Hello", Content: doc("World")})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[NoteDetail](t, w)
	if !created.Active {
		t.Error("created note should be active")
	}

	w = do(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[NoteDetail](t, w)
	if got.Title != "Hello" || got.SpaceID != "space-2" {
		t.Errorf("note = %+v", got.Note)
	}
	if w.Header().Get("ETag") != `"`+got.Checksum+`"` {
		t.Errorf("etag = %q", w.Header().Get("ETag"))
	}
}

func TestCreateNote_EmptyBodyUsesDefaults(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[NoteDetail](t, w); got.Title != "Untitled Note" || got.SpaceID != "space-1" {
		t.Errorf("defaults not applied: %+v", got.Note)
	}
}

func TestCreateNote_Invalid(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{SpaceID: "nope"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown space = %d, want 422", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: "{oops"}); w.Code != http.StatusBadRequest {
		t.Errorf("malformed content = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	created := decode[NoteDetail](t, do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: doc("v1")}))

	v2 := doc("v2")
	w := do(t, router, http.MethodPut, "/notes/"+created.ID, UpdateNoteRequest{Content: &v2}, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// Stale checksum.
	w = do(t, router, http.MethodPut, "/notes/"+created.ID, UpdateNoteRequest{Content: &v2}, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	title := "Renamed"
	w := do(t, router, http.MethodPut, "/notes/1", UpdateNoteRequest{Title: &title})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
	if got := decode[NoteDetail](t, w); got.Title != title {
		t.Errorf("title = %q", got.Title)
	}
}

func TestUpdateNote_EmptyBody(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPut, "/notes/1", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", w.Code)
	}
}

func TestEditNote_Debounced(t *testing.T) {
	_, router := testEnv(t, "")
	title := "Edited"
	w := do(t, router, http.MethodPatch, "/notes/2", UpdateNoteRequest{Title: &title})
	if w.Code != http.StatusAccepted {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got := decode[NoteDetail](t, do(t, router, http.MethodGet, "/notes/2", nil))
		if got.Title == title {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("debounced edit never committed")
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodDelete, "/notes/2", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/2", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/2", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
	links := decode[LinkListResponse](t, do(t, router, http.MethodGet, "/links", nil))
	if len(links.Links) != 0 {
		t.Errorf("links after delete = %+v", links.Links)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")

	all := decode[NoteListResponse](t, do(t, router, http.MethodGet, "/notes", nil))
	if all.Total != 3 {
		t.Errorf("total = %d, want 3", all.Total)
	}
	ai := decode[NoteListResponse](t, do(t, router, http.MethodGet, "/notes?space=space-2", nil))
	if ai.Total != 1 || ai.Notes[0].ID != "3" {
		t.Errorf("space filter = %+v", ai.Notes)
	}
}

func TestSelectAndOutline(t *testing.T) {
	_, router := testEnv(t, "")

	body := `{"type":"doc","content":[{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Intro"}]}]}`
	created := decode[NoteDetail](t, do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: body}))

	if w := do(t, router, http.MethodPost, "/notes/1/select", nil); w.Code != http.StatusNoContent {
		t.Fatalf("select = %d", w.Code)
	}
	if got := decode[NoteDetail](t, do(t, router, http.MethodGet, "/notes/1", nil)); !got.Active {
		t.Error("selected note should be active")
	}
	if w := do(t, router, http.MethodPost, "/notes/ghost/select", nil); w.Code != http.StatusNotFound {
		t.Errorf("select missing = %d, want 404", w.Code)
	}

	outline := decode[OutlineResponse](t, do(t, router, http.MethodGet, "/notes/"+created.ID+"/outline", nil))
	if len(outline.Headings) != 1 || outline.Headings[0].Text != "Intro" || outline.Headings[0].ID == "" {
		t.Errorf("outline = %+v", outline.Headings)
	}
}

func TestLinks(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/links", LinkRequest{Source: "3", Target: "2"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create link = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/links", LinkRequest{Source: "2", Target: "3"})
	if w.Code != http.StatusOK || decode[LinkCreatedResponse](t, w).Created {
		t.Errorf("duplicate link = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/links", LinkRequest{Source: "2", Target: "2"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("self link = %d, want 422", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/links", LinkRequest{Source: "2"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing target = %d, want 400", w.Code)
	}

	of2 := decode[LinkListResponse](t, do(t, router, http.MethodGet, "/links?note=2", nil))
	if len(of2.Links) != 2 {
		t.Errorf("links of 2 = %d, want 2", len(of2.Links))
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=Kanban", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "1" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	g := decode[GraphResponse](t, w)
	if len(g.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Errorf("edges = %d, want 1", len(g.Edges))
	}
}

func TestSuggestionsFlow(t *testing.T) {
	svc, router := testEnv(t, "")

	a := decode[NoteDetail](t, do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Kubernetes autoscaling", Content: doc("kubernetes cluster autoscaler")}))
	b := decode[NoteDetail](t, do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Cluster capacity", Content: doc("kubernetes cluster capacity")}))
	do(t, router, http.MethodPost, "/notes/"+a.ID+"/select", nil)

	var st SuggestionsResponse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st = decode[SuggestionsResponse](t, do(t, router, http.MethodGet, "/suggestions", nil))
		if st.NoteID == a.ID && st.Status == suggest.StatusSettled {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.Status != suggest.StatusSettled {
		t.Fatalf("suggestions never settled: %+v", st)
	}

	w := do(t, router, http.MethodPost, "/suggestions/links/"+b.ID+"/accept", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept link = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/suggestions/links/"+b.ID+"/accept", nil); w.Code != http.StatusNotFound {
		t.Errorf("second accept = %d, want 404", w.Code)
	}
	svc.WaitSuggestions()

	if w := do(t, router, http.MethodPost, "/suggestions/notes/accept", AcceptNoteRequest{Title: "No such topic"}); w.Code != http.StatusNotFound {
		t.Errorf("accept unknown topic = %d, want 404", w.Code)
	}
}

func TestImportEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/import", ImportRequest{Title: "Pasted", Text: "one\n\ntwo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[NoteDetail](t, w); got.SpaceID != "space-3" {
		t.Errorf("import space = %q, want the General space", got.SpaceID)
	}
	if w := do(t, router, http.MethodPost, "/import", ImportRequest{Title: "Empty"}); w.Code != http.StatusBadRequest {
		t.Errorf("empty import = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/import/drive/abc", nil); w.Code != http.StatusBadGateway {
		t.Errorf("drive import without drive = %d, want 502", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	title := "x"
	if w := do(t, router, http.MethodPut, "/notes/ghost", UpdateNoteRequest{Title: &title}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// SSE endpoint tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	broker := sse.NewBroker(10 * time.Millisecond)
	t.Cleanup(broker.Close)
	_, router := testEnvFull(t, true, "secret", broker)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidTokenStreams(t *testing.T) {
	broker := sse.NewBroker(10 * time.Millisecond)
	t.Cleanup(broker.Close)
	_, router := testEnvFull(t, true, "tok", broker)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	broker.Publish(sse.Event{Type: "note.updated", Data: sse.ChangeData{ID: "1"}})
	<-done

	if w.Code == http.StatusUnauthorized {
		t.Fatal("SSE with valid token should not 401")
	}
	if !strings.Contains(w.Body.String(), "event: note.updated") {
		t.Errorf("stream missing event: %q", w.Body.String())
	}
}
