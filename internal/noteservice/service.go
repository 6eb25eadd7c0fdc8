// Package noteservice wires the graph store to its durable mirror, the view
// projector, the suggestion orchestrator, the edit sessions and the
// importers. The HTTP API and the MCP server both go through it.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/editor"
	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/importer"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
	"github.com/starford/lattice/internal/suggest"
	"github.com/starford/lattice/internal/view"
)

// EventSuggestions is emitted with a suggest.State whenever suggestions change.
const EventSuggestions = "suggestions.updated"

// Publisher receives store changes and derived projections.
type Publisher interface {
	view.Sink
	PublishChange(c graphstore.Change)
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	models.Note
	Checksum string           `json:"checksum"`
	Space    models.Space     `json:"space"`
	Links    []models.Link    `json:"links"`
	Headings []models.Heading `json:"headings"`
	Active   bool             `json:"active"`
}

// Options configures a Service.
type Options struct {
	// Index mirrors the store. Nil keeps everything in memory, seeded.
	Index index.NoteIndex
	// Provider answers suggestion requests. Nil disables suggestions.
	Provider suggest.Provider
	// Events receives changes and projections. Nil drops them.
	Events Publisher
	// Drive is the optional Drive import source; it must be initialised.
	Drive        importer.Fetcher
	DefaultSpace string
	// Spaces are created at startup when no space has the same name.
	Spaces  []models.Space
	Editor  editor.Options
	Suggest suggest.Options
	Logger  *slog.Logger
}

// Service coordinates the store with everything built around it.
type Service struct {
	store     *graphstore.Store
	idx       index.NoteIndex
	events    Publisher
	projector *view.Projector
	suggester *suggest.Orchestrator
	editor    *editor.Manager
	importer  *importer.Importer
	drive     importer.Fetcher
	logger    *slog.Logger

	unsubscribe func()
}

// New loads the workspace and starts the derived components. A missing or
// empty mirror is seeded; a mirror that needed repair is rewritten.
func New(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storeOpts := []graphstore.Option{graphstore.WithLogger(logger)}
	if opts.DefaultSpace != "" {
		storeOpts = append(storeOpts, graphstore.WithDefaultSpace(opts.DefaultSpace))
	}
	if opts.Index != nil {
		storeOpts = append(storeOpts, graphstore.WithPersister(opts.Index))
	}
	store := graphstore.New(storeOpts...)

	if err := load(store, opts.Index, logger); err != nil {
		return nil, err
	}
	if err := ensureSpaces(store, opts.Spaces, logger); err != nil {
		return nil, err
	}

	s := &Service{
		store:    store,
		idx:      opts.Index,
		events:   opts.Events,
		drive:    opts.Drive,
		logger:   logger,
		importer: importer.New(store, logger),
	}

	s.unsubscribe = store.Subscribe(s.observe)

	var sink view.Sink
	if opts.Events != nil {
		sink = opts.Events
	}
	s.projector = view.NewProjector(store, sink, logger)

	edOpts := opts.Editor
	if edOpts.Logger == nil {
		edOpts.Logger = logger
	}
	s.editor = editor.NewManager(store, edOpts)

	if opts.Provider != nil {
		sgOpts := opts.Suggest
		if sgOpts.Logger == nil {
			sgOpts.Logger = logger
		}
		if opts.Events != nil {
			events := opts.Events
			sgOpts.OnChange = func(st suggest.State) { events.Emit(EventSuggestions, st) }
		}
		s.suggester = suggest.New(store, opts.Provider, sgOpts)
		s.suggester.Follow(store.ActiveID())
	}
	return s, nil
}

func load(store *graphstore.Store, idx index.NoteIndex, logger *slog.Logger) error {
	if idx == nil {
		store.Load(graphstore.Seed())
		return nil
	}
	snap, err := idx.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("noteservice: load snapshot: %w", err)
	}
	seeded := len(snap.Spaces) == 0 && len(snap.Notes) == 0
	if seeded {
		snap = graphstore.Seed()
		logger.Info("noteservice: empty workspace, seeding")
	}
	report := store.Load(snap)
	logger.Info("noteservice: workspace loaded",
		slog.Int("notes", report.Notes),
		slog.Int("links", report.Links),
	)
	drifted := 0
	if !seeded && !report.Repaired() {
		if drifted, err = countDrift(store, idx); err != nil {
			return err
		}
		if drifted > 0 {
			logger.Warn("noteservice: mirror rows changed outside the app, rewriting",
				slog.Int("notes", drifted))
		}
	}
	if seeded || report.Repaired() || drifted > 0 {
		if err := idx.ReplaceAll(store.Snapshot()); err != nil {
			return fmt.Errorf("noteservice: rewrite snapshot: %w", err)
		}
	}
	return nil
}

// ensureSpaces adds every configured space missing by name. Spaces are
// never removed, so dropping one from the config leaves it in place.
func ensureSpaces(store *graphstore.Store, spaces []models.Space, logger *slog.Logger) error {
	have := map[string]bool{}
	for _, sp := range store.Spaces() {
		have[sp.Name] = true
	}
	for _, sp := range spaces {
		if have[sp.Name] {
			continue
		}
		added, err := store.AddSpace(models.Space{Name: sp.Name, Color: sp.Color})
		if err != nil {
			return fmt.Errorf("noteservice: add space %q: %w", sp.Name, err)
		}
		have[sp.Name] = true
		logger.Info("noteservice: space created", slog.String("space_id", added.ID), slog.String("name", added.Name))
	}
	return nil
}

// countDrift compares each loaded note with the checksum recorded when it
// was mirrored. A mismatch means derived columns such as the search text
// may be stale.
func countDrift(store *graphstore.Store, idx index.NoteIndex) (int, error) {
	sums, err := idx.Checksums()
	if err != nil {
		return 0, fmt.Errorf("noteservice: load checksums: %w", err)
	}
	n := 0
	for _, note := range store.Notes() {
		if sums[note.ID] != checksum.Note(note) {
			n++
		}
	}
	return n, nil
}

// observe runs inside the store's commit; it only reads and forwards.
func (s *Service) observe(c graphstore.Change) {
	if c.Kind == graphstore.SelectionChanged && s.idx != nil {
		if err := s.idx.SaveActive(c.NoteID); err != nil {
			s.logger.Error("noteservice: save active failed", slog.String("note_id", c.NoteID), slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		s.events.PublishChange(c)
	}
}

// Close flushes pending edits and stops background work. The index is
// owned by the caller.
func (s *Service) Close() {
	if s.suggester != nil {
		s.suggester.Close()
	}
	s.editor.FlushAll()
	s.projector.Close()
	s.unsubscribe()
}

// Store exposes the underlying graph store.
func (s *Service) Store() *graphstore.Store { return s.store }

// Importer exposes the importer for sources started outside the service.
func (s *Service) Importer() *importer.Importer { return s.importer }

// Spaces returns every space in creation order.
func (s *Service) Spaces(_ context.Context) []models.Space {
	return s.store.Spaces()
}

// ListNotes returns notes in creation order, restricted to spaceID when set.
func (s *Service) ListNotes(_ context.Context, spaceID string) []models.Note {
	notes := s.store.Notes()
	if spaceID == "" {
		return notes
	}
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if n.SpaceID == spaceID {
			out = append(out, n)
		}
	}
	return out
}

// GetNote returns a note with its space, links and outline.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	n, ok := s.store.Note(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.buildNoteDetail(n), nil
}

func (s *Service) buildNoteDetail(n models.Note) *NoteDetail {
	sp, _ := s.store.Space(n.SpaceID)
	return &NoteDetail{
		Note:     n,
		Checksum: checksum.Note(n),
		Space:    sp,
		Links:    nonNilSlice(s.store.LinksOf(n.ID)),
		Headings: view.Outline(&n),
		Active:   s.store.ActiveID() == n.ID,
	}
}

// CreateNote adds a note and makes it active. An empty spaceID means the
// active note's space, falling back to the default space. Empty title and
// content take the defaults.
func (s *Service) CreateNote(_ context.Context, spaceID, title, content string) (*NoteDetail, error) {
	if spaceID == "" {
		spaceID = s.currentSpace()
	}
	if content != "" {
		if _, err := parser.Parse(content); err != nil {
			return nil, err
		}
		content = parser.NormalizeContent(content)
	}
	n, err := s.store.CreateNoteWithContent(spaceID, title, content)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(n), nil
}

func (s *Service) currentSpace() string {
	if active, ok := s.store.Active(); ok {
		return active.SpaceID
	}
	if sp, ok := s.store.DefaultSpace(); ok {
		return sp.ID
	}
	return ""
}

// NoteUpdate carries the fields of an immediate update; nil leaves a field
// unchanged.
type NoteUpdate struct {
	Title   *string
	Content *string
	SpaceID *string
	// IfMatch, when set, must equal the note's current checksum.
	IfMatch string
}

// UpdateNote applies u right away, committing any pending edits first.
func (s *Service) UpdateNote(_ context.Context, id string, u NoteUpdate) (*NoteDetail, error) {
	s.editor.Forget(id)
	n, ok := s.store.Note(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if u.IfMatch != "" && u.IfMatch != checksum.Note(n) {
		return nil, apperr.ErrConflict
	}
	if u.Title != nil {
		n.Title = *u.Title
	}
	if u.Content != nil {
		if _, err := parser.Parse(*u.Content); err != nil {
			return nil, err
		}
		n.Content = parser.NormalizeContent(*u.Content)
	}
	if u.SpaceID != nil {
		if _, ok := s.store.Space(*u.SpaceID); !ok {
			return nil, fmt.Errorf("noteservice: space %q: %w", *u.SpaceID, apperr.ErrInvalidReference)
		}
		n.SpaceID = *u.SpaceID
	}
	s.store.UpdateNote(n)
	return s.GetNote(context.Background(), id)
}

// EditNote queues title and content edits through the debounce windows.
func (s *Service) EditNote(_ context.Context, id string, title, content *string) error {
	if _, ok := s.store.Note(id); !ok {
		return apperr.ErrNotFound
	}
	if content != nil {
		if _, err := parser.Parse(*content); err != nil {
			return err
		}
	}
	s.editor.Edit(id, title, content)
	return nil
}

// DeleteNote removes a note, its links and any pending edits.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	if _, ok := s.store.Note(id); !ok {
		return apperr.ErrNotFound
	}
	s.store.DeleteNote(id)
	s.editor.Discard(id)
	return nil
}

// SelectNote makes id the active note.
func (s *Service) SelectNote(_ context.Context, id string) error {
	if !s.store.Select(id) {
		if _, ok := s.store.Note(id); !ok {
			return apperr.ErrNotFound
		}
	}
	return nil
}

// Active returns the active note, if any.
func (s *Service) Active(_ context.Context) (*NoteDetail, bool) {
	n, ok := s.store.Active()
	if !ok {
		return nil, false
	}
	return s.buildNoteDetail(n), true
}

// Outline returns the headings of a note.
func (s *Service) Outline(_ context.Context, id string) ([]models.Heading, error) {
	n, ok := s.store.Note(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return view.Outline(&n), nil
}

// Links returns links touching id, or every link when id is empty.
func (s *Service) Links(_ context.Context, id string) ([]models.Link, error) {
	if id == "" {
		return nonNilSlice(s.store.Links()), nil
	}
	if _, ok := s.store.Note(id); !ok {
		return nil, apperr.ErrNotFound
	}
	return nonNilSlice(s.store.LinksOf(id)), nil
}

// AddLink links two existing, distinct notes. It reports false when the
// pair was already linked.
func (s *Service) AddLink(_ context.Context, l models.Link) (bool, error) {
	if l.Source == l.Target {
		return false, fmt.Errorf("noteservice: self link: %w", apperr.ErrInvalidReference)
	}
	for _, id := range []string{l.Source, l.Target} {
		if _, ok := s.store.Note(id); !ok {
			return false, fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrInvalidReference)
		}
	}
	return s.store.AddLink(l), nil
}

// Graph returns the latest graph projection.
func (s *Service) Graph(_ context.Context) view.GraphData {
	return s.projector.Graph()
}

// Search delegates to the index, or scans the store when running without one.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.idx != nil {
		return s.idx.Search(query, limit)
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := []index.SearchResult{}
	if q == "" {
		return out, nil
	}
	for _, n := range s.store.Notes() {
		text := parser.PlainText(n.Content)
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(text), q) {
			out = append(out, index.SearchResult{NoteID: n.ID, Title: n.Title, Snippet: snippet(text, 200)})
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ErrSuggestionsDisabled is returned when no provider is configured.
var ErrSuggestionsDisabled = errors.New("noteservice: suggestions disabled")

// Suggestions returns the suggestions for the active note.
func (s *Service) Suggestions(_ context.Context) suggest.State {
	if s.suggester == nil {
		return suggest.State{Status: suggest.StatusIdle, Links: []string{}, Topics: []models.Topic{}}
	}
	return s.suggester.State()
}

// AcceptLink accepts a suggested link from the active note to targetID.
func (s *Service) AcceptLink(_ context.Context, targetID string) (bool, error) {
	if s.suggester == nil {
		return false, ErrSuggestionsDisabled
	}
	return s.suggester.AcceptLink(targetID)
}

// AcceptNote accepts a suggested topic, by title or, when title is empty,
// by position.
func (s *Service) AcceptNote(_ context.Context, title string, at int) (*NoteDetail, bool, error) {
	if s.suggester == nil {
		return nil, false, ErrSuggestionsDisabled
	}
	var (
		n   models.Note
		ok  bool
		err error
	)
	if title != "" {
		n, ok, err = s.suggester.AcceptNote(title)
	} else {
		n, ok, err = s.suggester.AcceptNoteAt(at)
	}
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.buildNoteDetail(n), true, nil
}

// Import creates a note from plain text in the default space.
func (s *Service) Import(_ context.Context, title, text string) (*NoteDetail, error) {
	n, err := s.importer.Import(title, text)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(n), nil
}

// ImportDrive imports a Google Drive file by id.
func (s *Service) ImportDrive(ctx context.Context, fileID string) (*NoteDetail, error) {
	if s.drive == nil {
		return nil, fmt.Errorf("noteservice: drive import: %w: %w", importer.ErrNotReady, apperr.ErrExternalService)
	}
	n, err := s.importer.ImportFrom(ctx, s.drive, fileID)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(n), nil
}

// FlushEdits commits every pending edit now.
func (s *Service) FlushEdits() {
	s.editor.FlushAll()
}

// WaitSuggestions blocks until scheduled suggestion work has finished.
func (s *Service) WaitSuggestions() {
	if s.suggester != nil {
		s.suggester.Wait()
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
