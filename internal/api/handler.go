package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/config"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/editor"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Dependencies are the services the API serves
type Dependencies struct {
	Config    *config.Config
	Store     *sqlite.Gateway
	Selection *cases.Selection
	Editors   *editor.Registry
	Pipeline  *conversation.Pipeline
	// Analyzer and Runner are optional; their endpoints answer 503 without them
	Analyzer conversation.DefectAnalyzer
	Runner   *conversation.Runner
	Now      func() time.Time
}

// Handler serves the /api/v1 endpoints
type Handler struct {
	deps   Dependencies
	logger *logger.Logger
}

// NewHandler creates a handler
func NewHandler(deps Dependencies, log *logger.Logger) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Selection == nil {
		deps.Selection = cases.NewSelection()
	}
	return &Handler{deps: deps, logger: log.Named("api")}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps pipeline and store errors onto HTTP statuses
func statusFor(err error) int {
	var parseErr *extraction.ParseError
	var completionErr *extraction.CompletionError
	switch {
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &completionErr):
		return http.StatusBadGateway
	case errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cases.ErrNoCaseSelected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	log := h.logger.WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error(message, logger.String("path", r.URL.Path), logger.Int("status", status))
	} else {
		log.Debug(message, logger.String("path", r.URL.Path), logger.Int("status", status))
	}
	h.writeError(w, status, message+": "+err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func intParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

// GetHealth reports whether the store is reachable
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentsResponse struct {
	Default string         `json:"default"`
	Agents  []config.Agent `json:"agents"`
}

// GetAgents lists the configured assistant personas
func (h *Handler) GetAgents(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, agentsResponse{
		Default: h.deps.Config.Voice.DefaultAgent,
		Agents:  h.deps.Config.Voice.Agents,
	})
}
