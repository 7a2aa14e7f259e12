package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/checklist"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/editor"
)

// GetChecklistCatalog returns the static checklist grouped by section
func (h *Handler) GetChecklistCatalog(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, checklist.Sections())
}

type checklistItemState struct {
	ChecklistID string       `json:"checklist_id"`
	Answer      *string      `json:"answer"`
	Comment     string       `json:"comment"`
	State       editor.State `json:"state"`
}

// GetCaseChecklist returns the draft answers of a case with their save state
func (h *Handler) GetCaseChecklist(w http.ResponseWriter, r *http.Request) {
	ed, err := h.deps.Editors.Checklist(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load checklist")
		return
	}

	items := make([]checklistItemState, 0)
	for _, item := range checklist.Items() {
		a, state, ok := ed.Get(item.ID)
		if !ok {
			continue
		}
		items = append(items, checklistItemState{
			ChecklistID: item.ID,
			Answer:      a.Answer,
			Comment:     a.Comment,
			State:       state,
		})
	}
	h.writeJSON(w, http.StatusOK, items)
}

type checklistDraftRequest struct {
	Answer  *string `json:"answer"`
	Comment *string `json:"comment"`
}

// PutChecklistItem edits the draft of one item; it is saved after the debounce window
func (h *Handler) PutChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req checklistDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	itemID := chi.URLParam(r, "itemID")
	ed, err := h.deps.Editors.Checklist(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load checklist")
		return
	}

	if req.Answer != nil {
		if err := ed.SetAnswer(itemID, *req.Answer); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Comment != nil {
		if err := ed.SetComment(itemID, *req.Comment); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	a, state, _ := ed.Get(itemID)
	h.writeJSON(w, http.StatusAccepted, checklistItemState{
		ChecklistID: itemID,
		Answer:      a.Answer,
		Comment:     a.Comment,
		State:       state,
	})
}

// SaveChecklist flushes all pending checklist drafts of a case
func (h *Handler) SaveChecklist(w http.ResponseWriter, r *http.Request) {
	ed, err := h.deps.Editors.Checklist(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(w, r, err, "Failed to load checklist")
		return
	}
	if err := ed.SaveAll(r.Context()); err != nil {
		h.fail(w, r, err, "Failed to save checklist")
		return
	}
	h.writeJSON(w, http.StatusOK, ed.States())
}
