package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/noteservice"
)

// Suggestions handles GET /api/suggestions.
//
//	@Summary		Get link and topic suggestions for the active note
//	@Tags			suggestions
//	@Produce		json
//	@Success		200	{object}	SuggestionsResponse
//	@Security		BearerAuth
//	@Router			/suggestions [get]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Suggestions(r.Context()))
}

// AcceptLink handles POST /api/suggestions/links/{id}/accept.
//
//	@Summary		Accept a suggested link from the active note
//	@Tags			suggestions
//	@Produce		json
//	@Param			id	path		string	true	"Suggested note id"
//	@Success		200	{object}	AcceptLinkResponse
//	@Failure		404	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggestions/links/{id}/accept [post]
func (h *Handler) AcceptLink(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.AcceptLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSuggestionError(w, "accept link", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no such suggestion"))
		return
	}
	writeJSON(w, http.StatusOK, AcceptLinkResponse{Accepted: true})
}

// AcceptNote handles POST /api/suggestions/notes/accept.
//
//	@Summary		Create a note from a suggested topic
//	@Tags			suggestions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AcceptNoteRequest	true	"Topic title or index"
//	@Success		201		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggestions/notes/accept [post]
func (h *Handler) AcceptNote(w http.ResponseWriter, r *http.Request) {
	var req AcceptNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, ok, err := h.svc.AcceptNote(r.Context(), req.Title, req.Index)
	if err != nil {
		writeSuggestionError(w, "accept note", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no such suggestion"))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func writeSuggestionError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, noteservice.ErrSuggestionsDisabled) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("suggestions are disabled"))
		return
	}
	writeServiceError(w, op, err)
}
