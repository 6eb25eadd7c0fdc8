// Package graphstore holds the authoritative in-memory model of spaces,
// notes and links.
//
// Every mutation runs under a single lock and leaves the graph consistent:
// link endpoints exist, note spaces exist, each unordered note pair has at
// most one link and at most one note is active. Mutations naming ids that no
// longer exist are silent no-ops because debounced edits and asynchronous
// suggestion results routinely arrive after a deletion.
package graphstore

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/metrics"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// DefaultTitle is given to notes created without a title.
const DefaultTitle = "Untitled Note"

// DefaultSpaceName is the space imports land in unless configured otherwise.
const DefaultSpaceName = "General"

// ChangeKind names a committed mutation.
type ChangeKind string

const (
	NoteCreated      ChangeKind = "note.created"
	NoteUpdated      ChangeKind = "note.updated"
	NoteDeleted      ChangeKind = "note.deleted"
	LinkAdded        ChangeKind = "link.added"
	LinkUpdated      ChangeKind = "link.updated"
	SelectionChanged ChangeKind = "selection.changed"
	SpaceAdded       ChangeKind = "space.added"
	Reloaded         ChangeKind = "store.reloaded"
)

// Change describes one committed mutation. NoteID is the affected note (the
// newly active note for SelectionChanged, empty when selection cleared).
// Source and Target are set for link changes.
type Change struct {
	Kind   ChangeKind
	NoteID string
	Source string
	Target string
}

// Persister mirrors mutations into durable storage. It is called inside the
// store's critical section; errors are logged and never roll back memory.
type Persister interface {
	SaveSpace(s models.Space) error
	SaveNote(n models.Note) error
	// DeleteNote removes the note and every link touching it.
	DeleteNote(id string) error
	SaveLink(l models.Link) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPersister mirrors every mutation to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithDefaultSpace sets the name of the space imports fall back to.
func WithDefaultSpace(name string) Option {
	return func(s *Store) { s.defaultSpace = name }
}

// WithIDGenerator replaces uuid generation, for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// Store is the knowledge graph. The zero value is not usable; call New.
type Store struct {
	// writeMu serialises mutations together with their notifications, so
	// observers see changes in commit order and may read the store. It is
	// always taken before mu.
	writeMu sync.Mutex
	mu      sync.RWMutex

	spaces   []models.Space
	spaceIdx map[string]int
	notes    []models.Note
	noteIdx  map[string]int
	links    []models.Link
	pairs    map[models.PairKey]int
	active   string

	defaultSpace string
	persister    Persister
	logger       *slog.Logger
	newID        func() string

	obsMu     sync.RWMutex
	observers map[int]func(Change)
	nextObs   int
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		spaceIdx:     make(map[string]int),
		noteIdx:      make(map[string]int),
		pairs:        make(map[models.PairKey]int),
		defaultSpace: DefaultSpaceName,
		logger:       slog.Default(),
		newID:        uuid.NewString,
		observers:    make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive every committed change and returns a
// function that removes it. fn runs synchronously after the mutation and
// must not call store mutations.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) begin() {
	s.writeMu.Lock()
	s.mu.Lock()
}

// commit releases the state lock, delivers changes to observers and then
// admits the next mutation. Observers run while readers are admitted but
// must not call mutations.
func (s *Store) commit(changes ...Change) {
	s.mu.Unlock()
	defer s.writeMu.Unlock()

	if len(changes) == 0 {
		return
	}
	s.obsMu.RLock()
	observers := make([]func(Change), 0, len(s.observers))
	for id := 0; id < s.nextObs; id++ {
		if fn, ok := s.observers[id]; ok {
			observers = append(observers, fn)
		}
	}
	s.obsMu.RUnlock()

	for _, c := range changes {
		metrics.StoreMutations.WithLabelValues(string(c.Kind)).Inc()
		for _, fn := range observers {
			fn(c)
		}
	}
}

func (s *Store) persist(op string, fn func(Persister) error) {
	if s.persister == nil {
		return
	}
	if err := fn(s.persister); err != nil {
		s.logger.Warn("store: persist failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

// AddSpace registers a space. An empty id is generated.
func (s *Store) AddSpace(sp models.Space) (models.Space, error) {
	if strings.TrimSpace(sp.Name) == "" {
		return models.Space{}, fmt.Errorf("graphstore: space name is required")
	}
	s.begin()
	if sp.ID == "" {
		sp.ID = s.newID()
	}
	if _, ok := s.spaceIdx[sp.ID]; ok {
		s.commit()
		return models.Space{}, fmt.Errorf("graphstore: space %s: %w", sp.ID, apperr.ErrAlreadyExists)
	}
	s.spaceIdx[sp.ID] = len(s.spaces)
	s.spaces = append(s.spaces, sp)
	s.persist("save_space", func(p Persister) error { return p.SaveSpace(sp) })
	s.commit(Change{Kind: SpaceAdded})
	return sp, nil
}

// CreateNote adds an empty note to spaceID and makes it active.
func (s *Store) CreateNote(spaceID string) (models.Note, error) {
	return s.CreateNoteWithContent(spaceID, DefaultTitle, parser.DefaultContent())
}

// CreateNoteWithContent adds a note with the given title and serialized
// content to spaceID and makes it active.
func (s *Store) CreateNoteWithContent(spaceID, title, content string) (models.Note, error) {
	s.begin()
	if _, ok := s.spaceIdx[spaceID]; !ok {
		s.commit()
		return models.Note{}, fmt.Errorf("graphstore: space %q: %w", spaceID, apperr.ErrInvalidReference)
	}
	n := s.insertLocked(spaceID, title, content)
	prev := s.active
	s.active = n.ID
	changes := []Change{{Kind: NoteCreated, NoteID: n.ID}}
	if prev != n.ID {
		changes = append(changes, Change{Kind: SelectionChanged, NoteID: n.ID})
	}
	s.commit(changes...)
	return n, nil
}

func (s *Store) insertLocked(spaceID, title, content string) models.Note {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	if strings.TrimSpace(content) == "" {
		content = parser.DefaultContent()
	}
	n := models.Note{ID: s.newID(), Title: title, Content: content, SpaceID: spaceID}
	for {
		if _, dup := s.noteIdx[n.ID]; !dup {
			break
		}
		n.ID = s.newID()
	}
	s.noteIdx[n.ID] = len(s.notes)
	s.notes = append(s.notes, n)
	s.persist("save_note", func(p Persister) error { return p.SaveNote(n) })
	return n
}

// UpdateNote replaces the stored note with the same id. Unknown ids are
// ignored. A SpaceID that does not resolve keeps the stored space.
func (s *Store) UpdateNote(n models.Note) {
	s.begin()
	i, ok := s.noteIdx[n.ID]
	if !ok {
		s.commit()
		s.logger.Debug("store: update for missing note ignored", slog.String("note_id", n.ID))
		return
	}
	if _, ok := s.spaceIdx[n.SpaceID]; !ok {
		n.SpaceID = s.notes[i].SpaceID
	}
	if s.notes[i] == n {
		s.commit()
		return
	}
	s.notes[i] = n
	s.persist("save_note", func(p Persister) error { return p.SaveNote(n) })
	s.commit(Change{Kind: NoteUpdated, NoteID: n.ID})
}

// DeleteNote removes a note and every link touching it in one step. If the
// note was active, the first remaining note becomes active.
func (s *Store) DeleteNote(id string) {
	s.begin()
	i, ok := s.noteIdx[id]
	if !ok {
		s.commit()
		return
	}
	s.notes = slices.Delete(s.notes, i, i+1)
	s.reindexNotesLocked()

	kept := s.links[:0]
	for _, l := range s.links {
		if !l.Touches(id) {
			kept = append(kept, l)
		}
	}
	clear(s.links[len(kept):])
	s.links = kept
	s.reindexLinksLocked()

	s.persist("delete_note", func(p Persister) error { return p.DeleteNote(id) })

	changes := []Change{{Kind: NoteDeleted, NoteID: id}}
	if s.active == id {
		s.active = ""
		if len(s.notes) > 0 {
			s.active = s.notes[0].ID
		}
		changes = append(changes, Change{Kind: SelectionChanged, NoteID: s.active})
	}
	s.commit(changes...)
}

func (s *Store) reindexNotesLocked() {
	clear(s.noteIdx)
	for i, n := range s.notes {
		s.noteIdx[n.ID] = i
	}
}

func (s *Store) reindexLinksLocked() {
	clear(s.pairs)
	for i, l := range s.links {
		s.pairs[l.Pair()] = i
	}
}

// AddLink records l unless its unordered pair is already linked, it is a
// self link, or an endpoint does not exist. It reports whether l was added.
func (s *Store) AddLink(l models.Link) bool {
	s.begin()
	if l.Source == l.Target {
		s.commit()
		return false
	}
	_, okS := s.noteIdx[l.Source]
	_, okT := s.noteIdx[l.Target]
	if !okS || !okT {
		s.commit()
		s.logger.Debug("store: link to missing note ignored",
			slog.String("source", l.Source), slog.String("target", l.Target))
		return false
	}
	if _, dup := s.pairs[l.Pair()]; dup {
		s.commit()
		return false
	}
	s.pairs[l.Pair()] = len(s.links)
	s.links = append(s.links, l)
	s.persist("save_link", func(p Persister) error { return p.SaveLink(l) })
	s.commit(Change{Kind: LinkAdded, Source: l.Source, Target: l.Target})
	return true
}

// SetLinkReason fills the reason of the link between a and b in either
// orientation. It reports false when the pair is no longer linked.
func (s *Store) SetLinkReason(a, b, reason string) bool {
	s.begin()
	i, ok := s.pairs[models.MakePair(a, b)]
	if !ok {
		s.commit()
		return false
	}
	s.links[i].Reason = reason
	l := s.links[i]
	s.persist("save_link", func(p Persister) error { return p.SaveLink(l) })
	s.commit(Change{Kind: LinkUpdated, Source: l.Source, Target: l.Target})
	return true
}

// ImportNote builds a note from plain text, one paragraph per blank-line
// separated segment, in the default space, and makes it active.
func (s *Store) ImportNote(title, plainText string) (models.Note, error) {
	content := parser.Encode(parser.FromParagraphs(plainText))
	sp, ok := s.DefaultSpace()
	if !ok {
		return models.Note{}, fmt.Errorf("graphstore: no space to import into: %w", apperr.ErrInvalidReference)
	}
	return s.CreateNoteWithContent(sp.ID, title, content)
}

// Select makes id the active note. An empty id clears the selection;
// unknown ids are ignored. It reports whether the selection changed.
func (s *Store) Select(id string) bool {
	s.begin()
	if id != "" {
		if _, ok := s.noteIdx[id]; !ok {
			s.commit()
			return false
		}
	}
	if s.active == id {
		s.commit()
		return false
	}
	s.active = id
	s.commit(Change{Kind: SelectionChanged, NoteID: id})
	return true
}

// ActiveID returns the active note id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Active returns the active note.
func (s *Store) Active() (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return models.Note{}, false
	}
	return s.notes[s.noteIdx[s.active]], true
}

// Note returns the note with id.
func (s *Store) Note(id string) (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.noteIdx[id]
	if !ok {
		return models.Note{}, false
	}
	return s.notes[i], true
}

// Notes returns all notes in creation order.
func (s *Store) Notes() []models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notes)
}

// Links returns all links in insertion order.
func (s *Store) Links() []models.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.links)
}

// LinksOf returns every link touching id.
func (s *Store) LinksOf(id string) []models.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Link
	for _, l := range s.links {
		if l.Touches(id) {
			out = append(out, l)
		}
	}
	return out
}

// Linked reports whether a and b are linked in either orientation.
func (s *Store) Linked(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[models.MakePair(a, b)]
	return ok
}

// Spaces returns all spaces in creation order.
func (s *Store) Spaces() []models.Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.spaces)
}

// Space returns the space with id.
func (s *Store) Space(id string) (models.Space, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.spaceIdx[id]
	if !ok {
		return models.Space{}, false
	}
	return s.spaces[i], true
}

// DefaultSpace returns the space named by the configured default, or the
// first space.
func (s *Store) DefaultSpace() (models.Space, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultSpaceLocked()
}

func (s *Store) defaultSpaceLocked() (models.Space, bool) {
	for _, sp := range s.spaces {
		if sp.Name == s.defaultSpace {
			return sp, true
		}
	}
	if len(s.spaces) == 0 {
		return models.Space{}, false
	}
	return s.spaces[0], true
}
