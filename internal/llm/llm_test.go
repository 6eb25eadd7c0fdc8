package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

func note(id, title, text string) models.Note {
	return models.Note{ID: id, Title: title, Content: parser.Encode(parser.FromText(text))}
}

// chatServer answers every chat completion with the next canned reply and
// records the request bodies.
type chatServer struct {
	mu       sync.Mutex
	replies  []string
	requests []map[string]any
	status   int
}

func (c *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.requests = append(c.requests, body)
	if c.status != 0 {
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
		return
	}
	reply := ""
	if len(c.replies) > 0 {
		reply, c.replies = c.replies[0], c.replies[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": reply},
		}},
	})
}

func newTestOpenAI(t *testing.T, srv *chatServer) *OpenAI {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	p, err := NewOpenAI(OpenAIConfig{APIKey: "test", Model: "test", BaseURL: ts.URL + "/v1"}, nil)
	require.NoError(t, err)
	return p
}

func TestOpenAI_RelatedNotes(t *testing.T) {
	srv := &chatServer{replies: []string{`{"ids": ["2", 7, "3"]}`}}
	p := newTestOpenAI(t, srv)

	ids, err := p.RelatedNotes(context.Background(), note("1", "A", "a"), []models.Note{note("2", "B", "b"), note("3", "C", "c")})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)

	require.Len(t, srv.requests, 1)
	format, _ := srv.requests[0]["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	msgs := srv.requests[0]["messages"].([]any)
	user := msgs[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, "ID: 2")
	assert.Contains(t, user, "Title: A")
}

func TestOpenAI_RelatedNotesEmptyCorpusSkipsCall(t *testing.T) {
	srv := &chatServer{}
	p := newTestOpenAI(t, srv)
	ids, err := p.RelatedNotes(context.Background(), note("1", "A", "a"), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, srv.requests)
}

func TestOpenAI_NewTopicsAndReason(t *testing.T) {
	srv := &chatServer{replies: []string{
		"```json\n[{\"title\":\"T1\",\"content\":\"C1\"}]\n```",
		"  They share a theme.  ",
	}}
	p := newTestOpenAI(t, srv)

	topics, err := p.NewTopics(context.Background(), note("1", "A", "a"))
	require.NoError(t, err)
	assert.Equal(t, []models.Topic{{Title: "T1", Content: "C1"}}, topics)

	reason, err := p.ExplainRelation(context.Background(), note("1", "A", "a"), note("2", "B", "b"))
	require.NoError(t, err)
	assert.Equal(t, "They share a theme.", reason)
	_, hasFormat := srv.requests[1]["response_format"]
	assert.False(t, hasFormat)
}

func TestOpenAI_ServerErrorIsExternal(t *testing.T) {
	p := newTestOpenAI(t, &chatServer{status: http.StatusInternalServerError})
	_, err := p.NewTopics(context.Background(), note("1", "A", "a"))
	require.ErrorIs(t, err, apperr.ErrExternalService)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}, nil)
	assert.Error(t, err)
}

func TestDecodeIDs_Malformed(t *testing.T) {
	_, err := decodeIDs("not json")
	assert.Error(t, err)
	ids, err := decodeIDs(`["a"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestLocal_RelatedNotes(t *testing.T) {
	l := NewLocal(2)
	base := note("1", "Agile product management", "Scrum and Kanban frameworks for product teams.")
	corpus := []models.Note{
		base,
		note("2", "Kanban boards", "Kanban frameworks visualise product work."),
		note("3", "Sourdough", "Flour, water and patience."),
	}
	ids, err := l.RelatedNotes(context.Background(), base, corpus)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
}

func TestLocal_TopicsAndReason(t *testing.T) {
	l := NewLocal(1)
	a := note("1", "Kanban", "Kanban kanban boards limit work.")
	b := note("2", "Boards", "Physical boards for kanban.")

	topics, err := l.NewTopics(context.Background(), a)
	require.NoError(t, err)
	require.NotEmpty(t, topics)
	assert.Equal(t, "Kanban", topics[0].Title)

	reason, err := l.ExplainRelation(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reason, "Both notes discuss "))
	assert.Contains(t, reason, "kanban")

	_, err = l.ExplainRelation(context.Background(), a, note("3", "Zzz", "qqq"))
	assert.Error(t, err)
}
