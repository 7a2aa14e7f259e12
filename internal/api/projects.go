package api

import (
	"net/http"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
)

// GetProjects lists the known project codes
func (h *Handler) GetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.deps.Store.ListProjects(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []sqlite.Project{}
	}
	h.writeJSON(w, http.StatusOK, projects)
}

// PostProject adds or renames a project code
func (h *Handler) PostProject(w http.ResponseWriter, r *http.Request) {
	var p sqlite.Project
	if err := decodeJSON(r, &p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.deps.Store.UpsertProject(r.Context(), p); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}
