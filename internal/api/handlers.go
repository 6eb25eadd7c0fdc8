package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListSpaces handles GET /api/spaces.
//
//	@Summary		List spaces
//	@Tags			spaces
//	@Produce		json
//	@Success		200	{object}	SpaceListResponse
//	@Security		BearerAuth
//	@Router			/spaces [get]
func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SpaceListResponse{Spaces: h.svc.Spaces(r.Context())})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes in creation order
//	@Tags			notes
//	@Produce		json
//	@Param			space	query		string	false	"Filter by space id"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes := h.svc.ListNotes(r.Context(), r.URL.Query().Get("space"))
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note and make it active
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	false	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	note, err := h.svc.CreateNote(r.Context(), req.SpaceID, req.Title, req.Content)
	if err != nil {
		writeServiceError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Update a note immediately with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to replace"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil && req.SpaceID == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("title, content or spaceId is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), noteservice.NoteUpdate{
		Title:   req.Title,
		Content: req.Content,
		SpaceID: req.SpaceID,
		IfMatch: ifMatch,
	})
	if err != nil {
		writeServiceError(w, "update note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// EditNote handles PATCH /api/notes/{id}.
//
//	@Summary		Queue a debounced title or content edit
//	@Tags			notes
//	@Accept			json
//	@Param			id		path	string				true	"Note id"
//	@Param			body	body	UpdateNoteRequest	true	"Fields being edited"
//	@Success		202		"Edit queued"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) EditNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("title or content is required"))
		return
	}
	if err := h.svc.EditNote(r.Context(), chi.URLParam(r, "id"), req.Title, req.Content); err != nil {
		writeServiceError(w, "edit note", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and its links
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectNote handles POST /api/notes/{id}/select.
//
//	@Summary		Make a note the active note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Selected"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/select [post]
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SelectNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "select note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Outline handles GET /api/notes/{id}/outline.
//
//	@Summary		Get the heading outline of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	OutlineResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/outline [get]
func (h *Handler) Outline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	headings, err := h.svc.Outline(r.Context(), id)
	if err != nil {
		writeServiceError(w, "outline", err)
		return
	}
	writeJSON(w, http.StatusOK, OutlineResponse{NoteID: id, Headings: headings})
}

// ListLinks handles GET /api/links.
//
//	@Summary		List links, optionally those touching one note
//	@Tags			links
//	@Produce		json
//	@Param			note	query		string	false	"Note id"
//	@Success		200		{object}	LinkListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Links(r.Context(), r.URL.Query().Get("note"))
	if err != nil {
		writeServiceError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// CreateLink handles POST /api/links.
//
//	@Summary		Link two notes
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link endpoints"
//	@Success		201		{object}	LinkCreatedResponse
//	@Success		200		{object}	LinkCreatedResponse	"Pair already linked"
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	link := req.link()
	created, err := h.svc.AddLink(r.Context(), link)
	if err != nil {
		writeServiceError(w, "create link", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, LinkCreatedResponse{Link: link, Created: created})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the knowledge graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Graph(r.Context()))
}
