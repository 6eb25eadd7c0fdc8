package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Import handles POST /api/import.
//
//	@Summary		Import plain text as a new note
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Title and text"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	note, err := h.svc.Import(r.Context(), req.Title, req.Text)
	if err != nil {
		writeServiceError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ImportDrive handles POST /api/import/drive/{fileId}.
//
//	@Summary		Import a Google Drive document as a new note
//	@Tags			import
//	@Produce		json
//	@Param			fileId	path		string	true	"Drive file id"
//	@Success		201		{object}	NoteDetail
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import/drive/{fileId} [post]
func (h *Handler) ImportDrive(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.ImportDrive(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		writeServiceError(w, "drive import", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}
