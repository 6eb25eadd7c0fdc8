package suggest

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/metrics"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// Status is the lifecycle position of the current suggestion request.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
	// StatusSuperseded marks a request whose note stopped being active
	// before it resolved. It is reported to listeners, never held by State.
	StatusSuperseded Status = "superseded"
)

// ErrClosed is returned by accept calls after Close.
var ErrClosed = errors.New("suggest: orchestrator closed")

// State is a snapshot of the suggestions for the active note.
type State struct {
	NoteID string         `json:"noteId,omitempty"`
	Status Status         `json:"status"`
	Epoch  uint64         `json:"epoch"`
	Links  []string       `json:"links"`
	Topics []models.Topic `json:"topics"`
}

// Options tunes an Orchestrator.
type Options struct {
	// Debounce delays the fetch after activation. Default 1s.
	Debounce time.Duration
	// Timeout bounds each provider call. Default 30s.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnChange is called with a fresh State whenever suggestions change,
	// and with a superseded State when a stale result is discarded.
	OnChange func(State)
}

// Orchestrator owns the suggestion lists for the active note. Results are
// matched to the activation that requested them by epoch: a result whose
// epoch is no longer current is dropped. Activation does not abort the
// network work of the previous request; Close does.
type Orchestrator struct {
	store    Store
	provider Provider
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	noteID string
	status Status
	epoch  uint64
	links  []string
	topics []models.Topic
	timer  *time.Timer

	unsubscribe func()
}

// New creates an idle orchestrator.
func New(store Store, provider Provider, opts Options) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    store,
		provider: provider,
		debounce: opts.Debounce,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		ctx:      ctx,
		cancel:   cancel,
		status:   StatusIdle,
	}
}

// Follow activates whichever note the store selects and keeps the pending
// link list free of pairs linked elsewhere.
func (o *Orchestrator) Follow(activeID string) {
	o.unsubscribe = o.store.Subscribe(func(c graphstore.Change) {
		switch c.Kind {
		case graphstore.SelectionChanged:
			o.Activate(c.NoteID)
		case graphstore.LinkAdded:
			o.dropLinked(c.Source, c.Target)
		}
	})
	o.Activate(activeID)
}

// Activate makes noteID the active note. The previous request, if any, is
// superseded and both lists are cleared. An empty id returns to idle.
func (o *Orchestrator) Activate(noteID string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.epoch++
	o.stopTimerLocked()
	o.noteID = noteID
	o.links = nil
	o.topics = nil
	if noteID == "" {
		o.status = StatusIdle
	} else {
		o.status = StatusPending
		epoch := o.epoch
		o.wg.Add(1)
		o.timer = time.AfterFunc(o.debounce, func() {
			defer o.wg.Done()
			o.fetch(epoch, noteID)
		})
	}
	st := o.stateLocked()
	o.mu.Unlock()
	o.notify(st)
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil && o.timer.Stop() {
		o.wg.Done()
	}
	o.timer = nil
}

// fetch runs the two provider calls for noteID concurrently. Each failure
// degrades to an empty list.
func (o *Orchestrator) fetch(epoch uint64, noteID string) {
	note, ok := o.store.Note(noteID)
	if !ok {
		o.logger.Debug("suggest: active note vanished before fetch", slog.String("note_id", noteID))
		o.resolve(epoch, noteID, nil, nil)
		return
	}
	corpus := o.store.Notes()

	var (
		related []string
		topics  []models.Topic
	)
	g, ctx := errgroup.WithContext(o.ctx)
	g.Go(func() error {
		ids, err := call(ctx, o, "related_notes", func(ctx context.Context) ([]string, error) {
			return o.provider.RelatedNotes(ctx, note, others(corpus, noteID))
		})
		if err == nil {
			related = ids
		}
		return nil
	})
	g.Go(func() error {
		ts, err := call(ctx, o, "new_topics", func(ctx context.Context) ([]models.Topic, error) {
			return o.provider.NewTopics(ctx, note)
		})
		if err == nil {
			topics = ts
		}
		return nil
	})
	_ = g.Wait()

	o.resolve(epoch, noteID, related, cleanTopics(topics))
}

// call times one provider call, logs failures and counts the outcome.
func call[T any](ctx context.Context, o *Orchestrator, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(ctx)
	metrics.SuggestionLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SuggestionRequests.WithLabelValues(name, "error").Inc()
		o.logger.Warn("suggest: provider call failed",
			slog.String("call", name), slog.String("error", err.Error()))
		return out, err
	}
	metrics.SuggestionRequests.WithLabelValues(name, "ok").Inc()
	return out, nil
}

// resolve settles the request for epoch. Links are filtered under o.mu so
// a LinkAdded delivered after the filter always reaches the settled list.
// A note deleted in the meantime settles with empty lists.
func (o *Orchestrator) resolve(epoch uint64, noteID string, related []string, topics []models.Topic) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if epoch != o.epoch {
		o.mu.Unlock()
		metrics.SuggestionRequests.WithLabelValues("fetch", "superseded").Inc()
		o.logger.Debug("suggest: discarded superseded result",
			slog.String("note_id", noteID), slog.Uint64("epoch", epoch))
		o.notify(State{NoteID: noteID, Status: StatusSuperseded, Epoch: epoch, Links: []string{}, Topics: []models.Topic{}})
		return
	}
	if _, ok := o.store.Note(noteID); ok {
		o.links = o.filterLinks(noteID, related)
		o.topics = topics
	} else {
		o.links = nil
		o.topics = nil
	}
	o.status = StatusSettled
	o.timer = nil
	st := o.stateLocked()
	o.mu.Unlock()
	o.notify(st)
}

// filterLinks drops the note itself, ids not in the store, ids already
// linked to the note in either orientation and duplicates. Store reads only
// take the store's state lock, which observers never hold, so calling this
// under o.mu is safe.
func (o *Orchestrator) filterLinks(noteID string, ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == noteID || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := o.store.Note(id); !ok {
			continue
		}
		if o.store.Linked(noteID, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func cleanTopics(in []models.Topic) []models.Topic {
	out := make([]models.Topic, 0, len(in))
	for _, t := range in {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func others(notes []models.Note, id string) []models.Note {
	return slices.DeleteFunc(slices.Clone(notes), func(n models.Note) bool { return n.ID == id })
}

func (o *Orchestrator) dropLinked(a, b string) {
	o.mu.Lock()
	var other string
	switch o.noteID {
	case a:
		other = b
	case b:
		other = a
	default:
		o.mu.Unlock()
		return
	}
	before := len(o.links)
	o.links = slices.DeleteFunc(o.links, func(id string) bool { return id == other })
	if len(o.links) == before {
		o.mu.Unlock()
		return
	}
	st := o.stateLocked()
	o.mu.Unlock()
	o.notify(st)
}

// AcceptLink links the active note to targetID right away and removes the
// suggestion. The reason is requested in the background and falls back to
// ReasonPlaceholder. It reports false when targetID is not a pending
// suggestion, so repeated accepts are no-ops.
func (o *Orchestrator) AcceptLink(targetID string) (bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, ErrClosed
	}
	i := slices.Index(o.links, targetID)
	if i < 0 {
		o.mu.Unlock()
		return false, nil
	}
	o.links = slices.Delete(slices.Clone(o.links), i, i+1)
	sourceID := o.noteID
	st := o.stateLocked()
	o.wg.Add(1)
	o.mu.Unlock()
	o.notify(st)

	if !o.store.AddLink(models.Link{Source: sourceID, Target: targetID}) {
		o.wg.Done()
		o.logger.Debug("suggest: accepted link not added",
			slog.String("source", sourceID), slog.String("target", targetID))
		return false, nil
	}
	go func() {
		defer o.wg.Done()
		o.explain(sourceID, targetID)
	}()
	return true, nil
}

func (o *Orchestrator) explain(sourceID, targetID string) {
	reason := ReasonPlaceholder
	a, okA := o.store.Note(sourceID)
	b, okB := o.store.Note(targetID)
	if okA && okB {
		r, err := call(o.ctx, o, "explain_relation", func(ctx context.Context) (string, error) {
			return o.provider.ExplainRelation(ctx, a, b)
		})
		if r = strings.TrimSpace(r); err == nil && r != "" {
			reason = r
		}
	}
	if !o.store.SetLinkReason(sourceID, targetID, reason) {
		o.logger.Debug("suggest: link gone before reason arrived",
			slog.String("source", sourceID), slog.String("target", targetID))
	}
}

// AcceptNote creates the suggested topic with the given title in the active
// note's space and removes it from the list.
func (o *Orchestrator) AcceptNote(title string) (models.Note, bool, error) {
	return o.acceptTopic(func(ts []models.Topic) int {
		return slices.IndexFunc(ts, func(t models.Topic) bool { return t.Title == title })
	})
}

// AcceptNoteAt is AcceptNote by list position.
func (o *Orchestrator) AcceptNoteAt(i int) (models.Note, bool, error) {
	return o.acceptTopic(func(ts []models.Topic) int {
		if i < 0 || i >= len(ts) {
			return -1
		}
		return i
	})
}

func (o *Orchestrator) acceptTopic(find func([]models.Topic) int) (models.Note, bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.Note{}, false, ErrClosed
	}
	i := find(o.topics)
	if i < 0 {
		o.mu.Unlock()
		return models.Note{}, false, nil
	}
	topic := o.topics[i]
	o.topics = slices.Delete(slices.Clone(o.topics), i, i+1)
	activeID := o.noteID
	st := o.stateLocked()
	o.mu.Unlock()
	o.notify(st)

	active, ok := o.store.Note(activeID)
	if !ok {
		return models.Note{}, false, nil
	}
	content := parser.Encode(parser.FromText(topic.Content))
	n, err := o.store.CreateNoteWithContent(active.SpaceID, topic.Title, content)
	if err != nil {
		return models.Note{}, false, err
	}
	return n, true, nil
}

// State returns a copy of the current suggestions.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	st := State{NoteID: o.noteID, Status: o.status, Epoch: o.epoch, Links: []string{}, Topics: []models.Topic{}}
	st.Links = append(st.Links, o.links...)
	st.Topics = append(st.Topics, o.topics...)
	return st
}

func (o *Orchestrator) notify(st State) {
	if o.onChange != nil {
		o.onChange(st)
	}
}

// Wait blocks until scheduled fetches and background explanations finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close stops the pending timer, cancels in-flight provider calls and waits
// for background work to drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopTimerLocked()
	o.mu.Unlock()

	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.cancel()
	o.wg.Wait()
}
