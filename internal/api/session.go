package api

import (
	"errors"
	"net/http"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
)

type sessionResponse struct {
	Session voice.Snapshot       `json:"session"`
	Last    *conversation.Result `json:"last_result,omitempty"`
	Error   string               `json:"last_error,omitempty"`
}

func (h *Handler) sessionState() sessionResponse {
	resp := sessionResponse{Session: h.deps.Runner.Snapshot()}
	if outcome, ok := h.deps.Runner.Last(); ok {
		resp.Last = &outcome.Result
		if outcome.Err != nil {
			resp.Error = outcome.Err.Error()
		}
	}
	return resp
}

func (h *Handler) requireRunner(w http.ResponseWriter) bool {
	if h.deps.Runner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "voice session is not configured")
		return false
	}
	return true
}

// GetSession returns the live session state and the last pipeline outcome
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	if !h.requireRunner(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.sessionState())
}

type startSessionRequest struct {
	AgentID string `json:"agent_id"`
}

// StartSession opens a voice session with the chosen agent
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireRunner(w) {
		return
	}

	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.AgentID == "" {
		req.AgentID = h.deps.Config.Voice.DefaultAgent
	}
	if _, ok := h.deps.Config.AgentByID(req.AgentID); !ok {
		h.writeError(w, http.StatusBadRequest, "unknown agent "+req.AgentID)
		return
	}

	if err := h.deps.Runner.Start(r.Context(), req.AgentID); err != nil {
		switch {
		case errors.Is(err, voice.ErrSessionActive):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, voice.ErrMicrophoneUnavailable):
			h.writeError(w, http.StatusFailedDependency, err.Error())
		default:
			h.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, h.sessionState())
}

// StopSession ends the voice session; the pipeline continues in the background
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireRunner(w) {
		return
	}
	if err := h.deps.Runner.Stop(r.Context()); err != nil {
		if errors.Is(err, conversation.ErrNotRunning) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.sessionState())
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// MuteSession mutes or unmutes the agent voice
func (h *Handler) MuteSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireRunner(w) {
		return
	}
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.deps.Runner.SetMuted(req.Muted); err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.sessionState())
}
