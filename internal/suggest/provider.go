// Package suggest orchestrates AI link and note suggestions for the active
// note: debounced fetches, epoch-based discarding of stale results and the
// accept flows that turn suggestions into store mutations.
package suggest

import (
	"context"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/models"
)

// ReasonPlaceholder is recorded when a link explanation cannot be produced.
const ReasonPlaceholder = "Could not determine reason."

// Provider is the remote recommendation service.
type Provider interface {
	// RelatedNotes returns ids from corpus strongly related to note.
	RelatedNotes(ctx context.Context, note models.Note, corpus []models.Note) ([]string, error)
	// NewTopics proposes notes that could be written next.
	NewTopics(ctx context.Context, note models.Note) ([]models.Topic, error)
	// ExplainRelation describes in one sentence how a and b relate.
	ExplainRelation(ctx context.Context, a, b models.Note) (string, error)
}

// Store is the subset of the knowledge graph the orchestrator reads and
// mutates.
type Store interface {
	Note(id string) (models.Note, bool)
	Notes() []models.Note
	Linked(a, b string) bool
	AddLink(l models.Link) bool
	SetLinkReason(a, b, reason string) bool
	CreateNoteWithContent(spaceID, title, content string) (models.Note, error)
	Subscribe(fn func(graphstore.Change)) (unsubscribe func())
}
