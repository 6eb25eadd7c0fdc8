package view

import (
	"log/slog"
	"sync"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/models"
)

// Event names published by the Projector.
const (
	EventGraph   = "graph.updated"
	EventOutline = "outline.updated"
	EventFocus   = "graph.focus"
)

// Sink receives recomputed projections.
type Sink interface {
	Emit(event string, data any)
}

// Source is the read side of the store the Projector needs.
type Source interface {
	Subscribe(fn func(graphstore.Change)) (unsubscribe func())
	Notes() []models.Note
	Links() []models.Link
	Active() (models.Note, bool)
}

// OutlineEvent is the payload of EventOutline.
type OutlineEvent struct {
	NoteID   string           `json:"noteId"`
	Headings []models.Heading `json:"headings"`
}

// Projector keeps the graph, outline and focus projections in step with the
// store and forwards every recomputation to a Sink.
type Projector struct {
	src    Source
	sink   Sink
	logger *slog.Logger

	mu          sync.Mutex
	graph       GraphData
	outline     OutlineEvent
	lastContent string
	unsubscribe func()
}

// NewProjector computes the initial projections and starts following src.
func NewProjector(src Source, sink Sink, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{src: src, sink: sink, logger: logger}
	p.mu.Lock()
	p.refreshGraphLocked(false)
	p.refreshOutlineLocked(false)
	p.mu.Unlock()
	p.unsubscribe = src.Subscribe(p.handle)
	return p
}

// Close stops following the store.
func (p *Projector) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// Graph returns the latest graph projection.
func (p *Projector) Graph() GraphData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// Outline returns the latest outline of the active note.
func (p *Projector) Outline() OutlineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outline
}

func (p *Projector) handle(c graphstore.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch c.Kind {
	case graphstore.NoteCreated, graphstore.NoteDeleted, graphstore.LinkAdded:
		p.refreshGraphLocked(true)
	case graphstore.NoteUpdated:
		p.refreshGraphLocked(true)
		if c.NoteID == p.outline.NoteID {
			p.refreshOutlineLocked(true)
		}
	case graphstore.SelectionChanged:
		p.refreshOutlineLocked(true)
		p.emit(EventFocus, Focus(c.NoteID, p.graph))
	case graphstore.Reloaded:
		p.refreshGraphLocked(true)
		p.refreshOutlineLocked(true)
	}
}

func (p *Projector) refreshGraphLocked(publish bool) {
	p.graph = Graph(p.src.Notes(), p.src.Links())
	if publish {
		p.emit(EventGraph, p.graph)
	}
}

// refreshOutlineLocked recomputes the outline of the active note. Edits
// that leave the content unchanged (title only) are not republished.
func (p *Projector) refreshOutlineLocked(publish bool) {
	active, ok := p.src.Active()
	var next OutlineEvent
	if ok {
		next = OutlineEvent{NoteID: active.ID, Headings: Outline(&active)}
	} else {
		next = OutlineEvent{Headings: Outline(nil)}
	}
	if next.NoteID == p.outline.NoteID && active.Content == p.lastContent && p.outline.Headings != nil {
		return
	}
	p.outline = next
	p.lastContent = active.Content
	if publish {
		p.emit(EventOutline, next)
	}
}

func (p *Projector) emit(event string, data any) {
	if p.sink == nil {
		return
	}
	p.sink.Emit(event, data)
	p.logger.Debug("view: projection published", slog.String("event", event))
}
