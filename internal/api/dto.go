package api

import (
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/suggest"
	"github.com/starford/lattice/internal/view"
)

// CreateNoteRequest is the request body for creating a note. All fields
// are optional.
type CreateNoteRequest struct {
	SpaceID string `json:"spaceId" example:"space-1"`
	Title   string `json:"title" example:"Untitled Note"`
	Content string `json:"content" example:"{\"type\":\"doc\",\"content\":[{\"type\":\"paragraph\"}]}"`
}

// UpdateNoteRequest is the request body for PUT and PATCH on a note. Absent
// fields are left unchanged.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty" example:"Renamed"`
	Content *string `json:"content,omitempty"`
	SpaceID *string `json:"spaceId,omitempty" example:"space-2"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SpaceListResponse wraps the spaces.
type SpaceListResponse struct {
	Spaces []models.Space `json:"spaces" validate:"required"`
}

// OutlineResponse lists the headings of a note.
type OutlineResponse struct {
	NoteID   string           `json:"noteId" validate:"required"`
	Headings []models.Heading `json:"headings" validate:"required"`
}

// LinkRequest is the request body for creating a link.
type LinkRequest struct {
	Source string `json:"source" example:"1" validate:"required"`
	Target string `json:"target" example:"2" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// LinkListResponse wraps links.
type LinkListResponse struct {
	Links []models.Link `json:"links" validate:"required"`
}

// LinkCreatedResponse reports whether a new link was stored.
type LinkCreatedResponse struct {
	Link    models.Link `json:"link" validate:"required"`
	Created bool        `json:"created"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphResponse is the knowledge graph projection.
type GraphResponse = view.GraphData

// SuggestionsResponse is the suggestion state of the active note.
type SuggestionsResponse = suggest.State

// AcceptNoteRequest picks a suggested topic by title, or by index when the
// title is empty.
type AcceptNoteRequest struct {
	Title string `json:"title,omitempty" example:"Model evaluation"`
	Index int    `json:"index,omitempty" example:"0"`
}

// AcceptLinkResponse reports whether the suggested link was created.
type AcceptLinkResponse struct {
	Accepted bool `json:"accepted"`
}

// ImportRequest is the request body for a plain-text import.
type ImportRequest struct {
	Title string `json:"title" example:"Meeting notes"`
	Text  string `json:"text" example:"First paragraph\n\nSecond paragraph" validate:"required"`
}

func (req LinkRequest) link() models.Link {
	return models.Link{Source: req.Source, Target: req.Target, Reason: req.Reason}
}
