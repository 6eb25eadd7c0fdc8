package suggest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/metrics"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

type fakeProvider struct {
	mu       sync.Mutex
	related  map[string][]string
	topics   map[string][]models.Topic
	reason   string
	failAll  bool
	gate     chan struct{}
	calls    atomic.Int32
	explains atomic.Int32
}

func (f *fakeProvider) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeProvider) RelatedNotes(ctx context.Context, note models.Note, _ []models.Note) ([]string, error) {
	f.calls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("boom")
	}
	return f.related[note.ID], nil
}

func (f *fakeProvider) NewTopics(ctx context.Context, note models.Note) ([]models.Topic, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("boom")
	}
	return f.topics[note.ID], nil
}

func (f *fakeProvider) ExplainRelation(_ context.Context, _, _ models.Note) (string, error) {
	f.explains.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.reason == "" {
		return "", errors.New("no reason")
	}
	return f.reason, nil
}

func newFixture(t *testing.T, p *fakeProvider) (*graphstore.Store, *Orchestrator) {
	t.Helper()
	store := graphstore.New()
	store.Load(graphstore.Seed())
	o := New(store, p, Options{Debounce: 10 * time.Millisecond, Timeout: time.Second})
	t.Cleanup(o.Close)
	return store, o
}

func settled(t *testing.T, o *Orchestrator) State {
	t.Helper()
	require.Eventually(t, func() bool { return o.State().Status == StatusSettled }, 2*time.Second, 5*time.Millisecond)
	return o.State()
}

func TestActivate_FiltersLinks(t *testing.T) {
	p := &fakeProvider{
		// "2" is already linked to "1"; "ghost" does not exist; "1" is self.
		related: map[string][]string{"1": {"2", "3", "ghost", "1", "3"}},
		topics:  map[string][]models.Topic{"1": {{Title: "Scrum at scale", Content: "x"}, {Title: "  "}}},
	}
	_, o := newFixture(t, p)

	o.Activate("1")
	assert.Equal(t, StatusPending, o.State().Status)

	st := settled(t, o)
	assert.Equal(t, "1", st.NoteID)
	assert.Equal(t, []string{"3"}, st.Links)
	assert.Equal(t, []models.Topic{{Title: "Scrum at scale", Content: "x"}}, st.Topics)
}

func TestActivate_ReverseOrientationIsLinked(t *testing.T) {
	p := &fakeProvider{related: map[string][]string{"2": {"1", "3"}}}
	_, o := newFixture(t, p)

	o.Activate("2")
	assert.Equal(t, []string{"3"}, settled(t, o).Links)
}

func TestActivate_DebounceCoalesces(t *testing.T) {
	p := &fakeProvider{}
	_, o := newFixture(t, p)

	o.Activate("1")
	o.Activate("2")
	o.Activate("3")
	st := settled(t, o)
	assert.Equal(t, "3", st.NoteID)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestActivate_SupersededResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: gate, related: map[string][]string{"1": {"3"}, "3": {"2"}}}
	_, o := newFixture(t, p)

	var (
		mu     sync.Mutex
		events []State
	)
	o.onChange = func(st State) {
		mu.Lock()
		events = append(events, st)
		mu.Unlock()
	}

	supersededBefore := promtest.ToFloat64(metrics.SuggestionRequests.WithLabelValues("fetch", "superseded"))

	o.Activate("1")
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	o.Activate("3")
	close(gate)

	st := settled(t, o)
	assert.Equal(t, "3", st.NoteID)
	assert.Equal(t, []string{"2"}, st.Links)

	o.Wait()
	mu.Lock()
	defer mu.Unlock()
	var superseded int
	for _, e := range events {
		if e.Status == StatusSuperseded {
			superseded++
			assert.Equal(t, "1", e.NoteID)
		}
	}
	assert.Equal(t, 1, superseded)
	assert.Equal(t, supersededBefore+1, promtest.ToFloat64(metrics.SuggestionRequests.WithLabelValues("fetch", "superseded")))
}

func TestActivate_NoteDeletedDuringFetchSettles(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: gate, related: map[string][]string{"3": {"1"}}}
	store, o := newFixture(t, p)

	o.Activate("3")
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	store.DeleteNote("3")
	close(gate)
	o.Wait()

	st := o.State()
	assert.Equal(t, StatusSettled, st.Status)
	assert.Empty(t, st.Links)
	assert.Empty(t, st.Topics)
}

func TestActivate_NoteDeletedBeforeFetchSettles(t *testing.T) {
	p := &fakeProvider{related: map[string][]string{"3": {"1"}}}
	store, o := newFixture(t, p)

	o.Activate("3")
	store.DeleteNote("3")
	o.Wait()

	st := o.State()
	assert.Equal(t, "3", st.NoteID)
	assert.Equal(t, StatusSettled, st.Status)
	assert.Empty(t, st.Links)
}

func TestActivate_LinkAddedInFlightIsFiltered(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: gate, related: map[string][]string{"1": {"3"}}}
	store, o := newFixture(t, p)
	o.Follow("")

	o.Activate("1")
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, store.AddLink(models.Link{Source: "3", Target: "1"}))
	close(gate)
	o.Wait()

	st := o.State()
	assert.Equal(t, StatusSettled, st.Status)
	assert.Empty(t, st.Links)
	ok, err := o.AcceptLink("3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivate_ProviderFailureYieldsEmpty(t *testing.T) {
	p := &fakeProvider{failAll: true}
	_, o := newFixture(t, p)

	o.Activate("1")
	st := settled(t, o)
	assert.Empty(t, st.Links)
	assert.Empty(t, st.Topics)
}

func TestActivate_EmptyIsIdle(t *testing.T) {
	_, o := newFixture(t, &fakeProvider{})
	o.Activate("1")
	o.Activate("")
	o.Wait()
	assert.Equal(t, StatusIdle, o.State().Status)
}

func TestAcceptLink(t *testing.T) {
	p := &fakeProvider{related: map[string][]string{"1": {"3"}}, reason: "Both concern product strategy."}
	store, o := newFixture(t, p)

	o.Activate("1")
	settled(t, o)

	ok, err := o.AcceptLink("3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, store.Linked("3", "1"), "link is recorded before the reason arrives")
	assert.Empty(t, o.State().Links)

	ok, err = o.AcceptLink("3")
	require.NoError(t, err)
	assert.False(t, ok, "second accept is a no-op")

	o.Wait()
	assert.Equal(t, int32(1), p.explains.Load())
	assert.Equal(t, "Both concern product strategy.", linkReason(store, "1", "3"))
}

func TestAcceptLink_ReasonFallsBackToPlaceholder(t *testing.T) {
	p := &fakeProvider{related: map[string][]string{"1": {"3"}}}
	store, o := newFixture(t, p)

	o.Activate("1")
	settled(t, o)
	ok, err := o.AcceptLink("3")
	require.NoError(t, err)
	require.True(t, ok)
	o.Wait()

	assert.Equal(t, ReasonPlaceholder, linkReason(store, "1", "3"))
}

func TestFollow_LinkAddedElsewhereDropsSuggestion(t *testing.T) {
	p := &fakeProvider{related: map[string][]string{"1": {"3"}}}
	store, o := newFixture(t, p)
	o.Follow(store.ActiveID())
	settled(t, o)

	store.AddLink(models.Link{Source: "3", Target: "1"})
	assert.Empty(t, o.State().Links)
}

func TestFollow_SelectionActivates(t *testing.T) {
	p := &fakeProvider{}
	store, o := newFixture(t, p)
	o.Follow(store.ActiveID())

	store.Select("2")
	assert.Equal(t, "2", o.State().NoteID)
	store.DeleteNote("2")
	assert.Equal(t, "1", o.State().NoteID)
}

func TestAcceptNote(t *testing.T) {
	p := &fakeProvider{topics: map[string][]models.Topic{"3": {
		{Title: "Open-weight hosting", Content: "Costs of self-hosting."},
		{Title: "Usage pricing", Content: "Metered APIs."},
	}}}
	store, o := newFixture(t, p)
	o.Follow("3")
	store.Select("3")
	settled(t, o)

	n, ok, err := o.AcceptNote("Usage pricing")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "space-2", n.SpaceID)
	assert.Equal(t, "Usage pricing", n.Title)
	assert.Equal(t, "Metered APIs.", parser.PlainText(n.Content))
	assert.Equal(t, n.ID, store.ActiveID())

	_, ok, err = o.AcceptNote("Usage pricing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcceptNoteAt_OutOfRange(t *testing.T) {
	_, o := newFixture(t, &fakeProvider{})
	_, ok, err := o.AcceptNoteAt(4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClose_CancelsInFlight(t *testing.T) {
	gate := make(chan struct{})
	p := &fakeProvider{gate: gate}
	_, o := newFixture(t, p)

	o.Activate("1")
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight request")
	}

	_, err := o.AcceptLink("3")
	assert.ErrorIs(t, err, ErrClosed)
}

func linkReason(store *graphstore.Store, a, b string) string {
	for _, l := range store.Links() {
		if l.Pair() == models.MakePair(a, b) {
			return l.Reason
		}
	}
	return ""
}
