package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/document"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// GetCases lists all cases
func (h *Handler) GetCases(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.ListCases(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to list cases")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetCase returns one case
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Store.GetCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to get case")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

type selectCaseRequest struct {
	CaseID string `json:"case_id"`
}

type selectedCaseResponse struct {
	Selected bool        `json:"selected"`
	Case     *cases.Case `json:"case,omitempty"`
}

// GetSelectedCase returns the active case
func (h *Handler) GetSelectedCase(w http.ResponseWriter, _ *http.Request) {
	c, ok := h.deps.Selection.Current()
	if !ok {
		h.writeJSON(w, http.StatusOK, selectedCaseResponse{})
		return
	}
	h.writeJSON(w, http.StatusOK, selectedCaseResponse{Selected: true, Case: &c})
}

// SelectCase makes a case the active case for conversations
func (h *Handler) SelectCase(w http.ResponseWriter, r *http.Request) {
	var req selectCaseRequest
	if err := decodeJSON(r, &req); err != nil || req.CaseID == "" {
		h.writeError(w, http.StatusBadRequest, "case_id is required")
		return
	}

	c, err := h.deps.Store.GetCase(r.Context(), req.CaseID)
	if err != nil {
		h.fail(w, r, err, "Failed to select case")
		return
	}

	h.deps.Selection.Select(c)
	h.logger.Info("Case selected", logger.String("case_id", c.ID))
	h.writeJSON(w, http.StatusOK, selectedCaseResponse{Selected: true, Case: &c})
}

// ClearSelectedCase removes the active case
func (h *Handler) ClearSelectedCase(w http.ResponseWriter, _ *http.Request) {
	h.deps.Selection.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument renders the inspection notice of a case as HTML, or text with ?format=text
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "caseID")

	c, err := h.deps.Store.GetCase(ctx, caseID)
	if err != nil {
		h.fail(w, r, err, "Failed to get case")
		return
	}
	responses, err := h.deps.Store.ListChecklistResponses(ctx, caseID)
	if err != nil {
		h.fail(w, r, err, "Failed to load checklist")
		return
	}
	defects, err := h.deps.Store.ListDefects(ctx, caseID)
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}

	doc := document.Build(c, responses, defects, h.deps.Now())

	var buf bytes.Buffer
	contentType := "text/html; charset=utf-8"
	if r.URL.Query().Get("format") == "text" {
		contentType = "text/plain; charset=utf-8"
		err = document.RenderText(&buf, doc)
	} else {
		err = document.RenderHTML(&buf, doc)
	}
	if err != nil {
		h.fail(w, r, err, "Failed to render document")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
