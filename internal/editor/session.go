// Package editor coalesces rapid title and content edits into store
// updates. Title and content have independent debounce windows; each commit
// rewrites only its own field of the latest stored note.
package editor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// Defaults for the two debounce windows.
const (
	DefaultTitleDebounce   = 500 * time.Millisecond
	DefaultContentDebounce = time.Second
)

// Store is what sessions read from and commit to.
type Store interface {
	Note(id string) (models.Note, bool)
	UpdateNote(n models.Note)
}

// Options tunes a Manager.
type Options struct {
	TitleDebounce   time.Duration
	ContentDebounce time.Duration
	Logger          *slog.Logger
}

// Manager owns one Session per note being edited.
type Manager struct {
	store  Store
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Zero durations take the defaults.
func NewManager(store Store, opts Options) *Manager {
	if opts.TitleDebounce <= 0 {
		opts.TitleDebounce = DefaultTitleDebounce
	}
	if opts.ContentDebounce <= 0 {
		opts.ContentDebounce = DefaultContentDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{store: store, opts: opts, logger: opts.Logger, sessions: map[string]*Session{}}
}

// Session returns the session for noteID, creating it on first use.
func (m *Manager) Session(noteID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[noteID]
	if !ok {
		s = &Session{noteID: noteID, store: m.store, logger: m.logger}
		s.title.window = m.opts.TitleDebounce
		s.content.window = m.opts.ContentDebounce
		m.sessions[noteID] = s
	}
	return s
}

// Edit queues whichever fields are non-nil for noteID.
func (m *Manager) Edit(noteID string, title, content *string) {
	s := m.Session(noteID)
	if title != nil {
		s.SetTitle(*title)
	}
	if content != nil {
		s.SetContent(*content)
	}
}

// Forget flushes and drops the session for noteID.
func (m *Manager) Forget(noteID string) {
	m.mu.Lock()
	s, ok := m.sessions[noteID]
	delete(m.sessions, noteID)
	m.mu.Unlock()
	if ok {
		s.Flush()
	}
}

// Discard drops the session for noteID and its pending edits uncommitted.
func (m *Manager) Discard(noteID string) {
	m.mu.Lock()
	s, ok := m.sessions[noteID]
	delete(m.sessions, noteID)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []*pending{&s.title, &s.content} {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.gen++
		p.dirty = false
	}
}

// FlushAll commits every pending edit now.
func (m *Manager) FlushAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Flush()
	}
}

// pending is one debounced field.
type pending struct {
	window time.Duration
	timer  *time.Timer
	value  string
	dirty  bool
	// gen invalidates a timer that fired while Flush already committed.
	gen uint64
}

func applyTitle(n *models.Note, v string) { n.Title = v }

func applyContent(n *models.Note, v string) { n.Content = parser.NormalizeContent(v) }

// Session debounces edits to a single note.
type Session struct {
	noteID string
	store  Store
	logger *slog.Logger

	// mu guards both fields and serialises commits so the read-modify-write
	// of one field never overwrites the other.
	mu      sync.Mutex
	title   pending
	content pending
}

// SetTitle queues a title change.
func (s *Session) SetTitle(title string) {
	s.schedule(&s.title, title, applyTitle)
}

// SetContent queues a content change. Missing heading ids are assigned at
// commit time.
func (s *Session) SetContent(content string) {
	s.schedule(&s.content, content, applyContent)
}

func (s *Session) schedule(p *pending, value string, apply func(*models.Note, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.value = value
	p.dirty = true
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.gen != gen {
			return
		}
		s.commitLocked(p, apply)
	})
}

// commitLocked writes p onto the latest stored note. A deleted note makes
// the commit a no-op.
func (s *Session) commitLocked(p *pending, apply func(*models.Note, string)) {
	if !p.dirty {
		return
	}
	p.dirty = false
	p.timer = nil
	n, ok := s.store.Note(s.noteID)
	if !ok {
		s.logger.Debug("editor: note gone, edit dropped", slog.String("note_id", s.noteID))
		return
	}
	apply(&n, p.value)
	s.store.UpdateNote(n)
}

// Pending reports whether any edit is waiting for its window to close.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title.dirty || s.content.dirty
}

// Flush commits pending edits immediately.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range []struct {
		p     *pending
		apply func(*models.Note, string)
	}{
		{&s.title, applyTitle},
		{&s.content, applyContent},
	} {
		if f.p.timer != nil {
			f.p.timer.Stop()
		}
		f.p.gen++
		s.commitLocked(f.p, f.apply)
	}
}
