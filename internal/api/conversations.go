package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
)

type relayEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type relayRequest struct {
	ConversationID string            `json:"conversation_id"`
	Entries        []relayEntry      `json:"entries"`
	DataCollection map[string]string `json:"data_collection,omitempty"`
}

// RelayConversation runs the pipeline for a conversation held by a browser client
func (h *Handler) RelayConversation(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationID == "" {
		h.writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	conv := conversation.Conversation{ID: req.ConversationID, Collected: req.DataCollection}
	for i, e := range req.Entries {
		role, ok := transcript.ParseRole(e.Role)
		if !ok {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q in entry %d", e.Role, i))
			return
		}
		conv.Entries = append(conv.Entries, transcript.Entry{Role: role, Text: e.Text})
	}

	// Dispatched pipeline work is never cancelled by the client leaving
	result, err := h.deps.Pipeline.Process(context.WithoutCancel(r.Context()), conv)
	if err != nil {
		h.fail(w, r, err, "Failed to process conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type conversationResponse struct {
	ConversationID string                   `json:"conversation_id"`
	Data           *sqlite.ConversationData `json:"data"`
	Transcript     *string                  `json:"transcript"`
}

// GetConversation returns the stored record and transcript of a conversation
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "conversationID")
	resp := conversationResponse{ConversationID: id}

	data, err := h.deps.Store.GetConversationData(ctx, id)
	switch {
	case err == nil:
		resp.Data = &data
	case !errors.Is(err, sqlite.ErrNotFound):
		h.fail(w, r, err, "Failed to load conversation data")
		return
	}

	t, err := h.deps.Store.GetTranscript(ctx, id)
	switch {
	case err == nil:
		resp.Transcript = &t.Transcript
	case !errors.Is(err, sqlite.ErrNotFound):
		h.fail(w, r, err, "Failed to load transcript")
		return
	}

	if resp.Data == nil && resp.Transcript == nil {
		h.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type updateConversationRequest struct {
	Project            *string `json:"project"`
	Hours              *string `json:"hours"`
	Summary            *string `json:"summary"`
	Closed             *string `json:"closed"`
	SalesOpportunities *string `json:"sales_opportunities"`
}

// PutConversation stores manually edited project details
func (h *Handler) PutConversation(w http.ResponseWriter, r *http.Request) {
	var req updateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	record := extraction.Record{
		Project:            trimmed(req.Project),
		Hours:              trimmed(req.Hours),
		Summary:            trimmed(req.Summary),
		Closed:             trimmed(req.Closed),
		SalesOpportunities: trimmed(req.SalesOpportunities),
	}
	data, err := h.deps.Pipeline.UpdateRecord(r.Context(), chi.URLParam(r, "conversationID"), record)
	if err != nil {
		h.fail(w, r, err, "Failed to update conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, data)
}

// AnalyzeConversation re-extracts the record from the stored transcript
func (h *Handler) AnalyzeConversation(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Pipeline.Reanalyze(context.WithoutCancel(r.Context()), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.fail(w, r, err, "Failed to analyze conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return extraction.StringPtr(*s)
}
