package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/editor"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// GetDefects lists the stored defects of a case
func (h *Handler) GetDefects(w http.ResponseWriter, r *http.Request) {
	defects, err := h.deps.Store.ListDefects(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to list defects")
		return
	}
	if defects == nil {
		defects = []sqlite.Defect{}
	}
	h.writeJSON(w, http.StatusOK, defects)
}

type addDefectResponse struct {
	Added        bool `json:"added"`
	DefectNumber int  `json:"defect_number,omitempty"`
	Limit        int  `json:"limit"`
}

// AddDefect adds the next numbered defect. At the cap nothing changes.
func (h *Handler) AddDefect(w http.ResponseWriter, r *http.Request) {
	ed, err := h.deps.Editors.Defects(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}

	number, added, err := ed.Add(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to add defect")
		return
	}

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	h.writeJSON(w, status, addDefectResponse{Added: added, DefectNumber: number, Limit: sqlite.MaxDefectsPerCase})
}

type defectDraftRequest struct {
	Description string `json:"description"`
}

type defectDraftResponse struct {
	DefectNumber int          `json:"defect_number"`
	Description  string       `json:"description"`
	State        editor.State `json:"state"`
}

// PutDefect edits a defect description; it is saved after the debounce window
func (h *Handler) PutDefect(w http.ResponseWriter, r *http.Request) {
	number, err := intParam(r, "number")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid defect number")
		return
	}
	var req defectDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ed, err := h.deps.Editors.Defects(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}
	if err := ed.EditDescription(number, req.Description); err != nil {
		if errors.Is(err, editor.ErrUnknownDefect) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.fail(w, r, err, "Failed to edit defect")
		return
	}

	description, state, _ := ed.Description(number)
	h.writeJSON(w, http.StatusAccepted, defectDraftResponse{DefectNumber: number, Description: description, State: state})
}

// DeleteDefect removes a defect; the remaining defects keep their numbers
func (h *Handler) DeleteDefect(w http.ResponseWriter, r *http.Request) {
	number, err := intParam(r, "number")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid defect number")
		return
	}

	ed, err := h.deps.Editors.Defects(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}
	if err := ed.Delete(r.Context(), number); err != nil {
		if errors.Is(err, editor.ErrUnknownDefect) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.fail(w, r, err, "Failed to delete defect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveDefects flushes all pending defect drafts of a case
func (h *Handler) SaveDefects(w http.ResponseWriter, r *http.Request) {
	ed, err := h.deps.Editors.Defects(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}
	if err := ed.SaveAll(r.Context()); err != nil {
		h.fail(w, r, err, "Failed to save defects")
		return
	}
	h.writeJSON(w, http.StatusOK, ed.States())
}

type analyzeDefectsRequest struct {
	Transcript string `json:"transcript"`
}

// AnalyzeDefects fills the boilerplate texts of a case's defects from a transcript
func (h *Handler) AnalyzeDefects(w http.ResponseWriter, r *http.Request) {
	if h.deps.Analyzer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "defect analysis is not configured")
		return
	}

	var req analyzeDefectsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	// The analysis and its writes run to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())

	if ed, err := h.deps.Editors.Defects(ctx, caseID); err == nil {
		if err := ed.SaveAll(ctx); err != nil {
			h.fail(w, r, err, "Failed to save defect drafts")
			return
		}
	}

	rows, err := h.deps.Store.ListDefects(ctx, caseID)
	if err != nil {
		h.fail(w, r, err, "Failed to list defects")
		return
	}

	in := extraction.DefectInput{Transcript: req.Transcript, CaseID: caseID}
	for _, row := range rows {
		in.Defects = append(in.Defects, extraction.Defect{Number: row.DefectNumber, Description: row.Description})
	}

	analyses, err := h.deps.Analyzer.Analyze(ctx, in)
	if err != nil {
		h.fail(w, r, err, "Failed to analyze defects")
		return
	}

	if _, err := conversation.StoreDefectAnalyses(ctx, h.deps.Store, caseID, analyses); err != nil {
		h.fail(w, r, err, "Failed to store defect analysis")
		return
	}

	h.logger.Info("Defects analyzed", logger.String("case_id", caseID), logger.Int("defects", len(analyses)))
	if analyses == nil {
		analyses = []extraction.DefectAnalysis{}
	}
	h.writeJSON(w, http.StatusOK, analyses)
}

// GetAllDefects lists defects across all cases with their case details, newest first
func (h *Handler) GetAllDefects(w http.ResponseWriter, r *http.Request) {
	defects, err := h.deps.Store.ListAllDefects(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to list defects")
		return
	}
	h.writeJSON(w, http.StatusOK, defects)
}

// DeleteDefectByID removes a defect by row id. The case's editor is updated too so
// it does not write the defect back.
func (h *Handler) DeleteDefectByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defect, err := h.deps.Store.GetDefectByID(ctx, chi.URLParam(r, "defectID"))
	if err != nil {
		h.fail(w, r, err, "Failed to find defect")
		return
	}

	ed, err := h.deps.Editors.Defects(ctx, defect.CaseID)
	if err != nil {
		h.fail(w, r, err, "Failed to load defects")
		return
	}
	err = ed.Delete(ctx, defect.DefectNumber)
	if errors.Is(err, editor.ErrUnknownDefect) {
		err = h.deps.Store.DeleteDefect(ctx, defect.CaseID, defect.DefectNumber)
	}
	if err != nil {
		h.fail(w, r, err, "Failed to delete defect")
		return
	}

	h.logger.Info("Defect deleted",
		logger.String("case_id", defect.CaseID),
		logger.Int("defect_number", defect.DefectNumber))
	w.WriteHeader(http.StatusNoContent)
}
