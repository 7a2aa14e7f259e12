package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/config"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/editor"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Analyze(_ context.Context, in extraction.DefectInput) ([]extraction.DefectAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []extraction.DefectAnalysis
	for _, d := range in.Defects {
		brist := "Standardtext för brist " + fmt.Sprint(d.Number)
		out = append(out, extraction.DefectAnalysis{CaseID: in.CaseID, DefectNumber: d.Number, Brist: &brist})
	}
	return out, nil
}

type stubExtractor struct {
	err error
}

func (s stubExtractor) Extract(context.Context, extraction.Input) (extraction.Record, error) {
	return extraction.Record{}, s.err
}

type testServer struct {
	*httptest.Server
	store *sqlite.Gateway
}

func newTestServer(t *testing.T, mutate func(*Dependencies)) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.SeedCases(ctx, cases.Reference)
	require.NoError(t, err)

	engine, err := extraction.NewEngineForMode(extraction.Options{Mode: extraction.ModeRegex}, logger.NewNop())
	require.NoError(t, err)
	selection := cases.NewSelection()
	pipeline, err := conversation.NewPipeline(conversation.PipelineOptions{
		Store:     store,
		Extractor: engine,
		Selection: selection,
	}, logger.NewNop())
	require.NoError(t, err)

	deps := Dependencies{
		Config:    config.Default(),
		Store:     store,
		Selection: selection,
		Editors:   editor.NewRegistry(store, time.Hour, nil, nil, logger.NewNop()),
		Pipeline:  pipeline,
		Analyzer:  &stubAnalyzer{},
		Now:       func() time.Time { return time.Date(2025, 9, 4, 9, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := httptest.NewServer(NewRouter(deps, logger.NewNop()).Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, s.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "%s %s", method, path)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	require.Equal(t, want, resp.StatusCode, "%s %s", resp.Request.Method, resp.Request.URL.Path)
}

func TestHealthAndAgents(t *testing.T) {
	srv := newTestServer(t, nil)

	expectStatus(t, srv.do(t, http.MethodGet, "/api/v1/health", nil), http.StatusOK)

	resp := srv.do(t, http.MethodGet, "/api/v1/agents", nil)
	expectStatus(t, resp, http.StatusOK)
	var agents agentsResponse
	decode(t, resp, &agents)
	assert.Len(t, agents.Agents, len(config.DefaultAgents))
	assert.Equal(t, config.DefaultAgents[0].ID, agents.Default)
}

func TestCasesAndSelection(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, http.MethodGet, "/api/v1/cases", nil)
	expectStatus(t, resp, http.StatusOK)
	var list []cases.Case
	decode(t, resp, &list)
	assert.Len(t, list, len(cases.Reference))

	expectStatus(t, srv.do(t, http.MethodGet, "/api/v1/cases/404", nil), http.StatusNotFound)
	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/selected", selectCaseRequest{CaseID: "404"}), http.StatusNotFound)

	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/selected", selectCaseRequest{CaseID: "4"}), http.StatusOK)

	resp = srv.do(t, http.MethodGet, "/api/v1/cases/selected", nil)
	var selected selectedCaseResponse
	decode(t, resp, &selected)
	assert.True(t, selected.Selected)
	require.NotNil(t, selected.Case)
	assert.Equal(t, "4", selected.Case.ID)

	expectStatus(t, srv.do(t, http.MethodDelete, "/api/v1/cases/selected", nil), http.StatusNoContent)
}

func TestChecklistDraftAndSave(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	answer := "Nej"
	comment := "Ingen brandskyddsansvarig utsedd"
	resp := srv.do(t, http.MethodPut, "/api/v1/cases/1/checklist/3.1.2", checklistDraftRequest{Answer: &answer, Comment: &comment})
	expectStatus(t, resp, http.StatusAccepted)
	var draft checklistItemState
	decode(t, resp, &draft)
	assert.Equal(t, editor.StateDirty, draft.State)

	rows, err := srv.store.ListChecklistResponses(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, rows, "saved before debounce")

	bad := "Kanske"
	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/1/checklist/3.1.2", checklistDraftRequest{Answer: &bad}), http.StatusBadRequest)

	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/cases/1/checklist/save", nil), http.StatusOK)

	rows, err = srv.store.ListChecklistResponses(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Answer)
	assert.Equal(t, "Nej", *rows[0].Answer)
	assert.Equal(t, comment, rows[0].Comment)

	resp = srv.do(t, http.MethodGet, "/api/v1/cases/1/document?format=text", nil)
	expectStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Finns det någon brandskyddsansvarig?: Nej")
}

func TestDefectLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		resp := srv.do(t, http.MethodPost, "/api/v1/cases/2/defects", nil)
		expectStatus(t, resp, http.StatusCreated)
		var added addDefectResponse
		decode(t, resp, &added)
		assert.True(t, added.Added)
		assert.Equal(t, i, added.DefectNumber)
	}

	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/2/defects/2", defectDraftRequest{Description: "Utrymningsdörr låst"}), http.StatusAccepted)
	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/2/defects/9", defectDraftRequest{Description: "x"}), http.StatusNotFound)
	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/2/defects/abc", defectDraftRequest{}), http.StatusBadRequest)
	expectStatus(t, srv.do(t, http.MethodDelete, "/api/v1/cases/2/defects/1", nil), http.StatusNoContent)

	resp := srv.do(t, http.MethodPost, "/api/v1/cases/2/defects/analyze", analyzeDefectsRequest{Transcript: "You: dörren var låst"})
	expectStatus(t, resp, http.StatusOK)

	defects, err := srv.store.ListDefects(ctx, "2")
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, 2, defects[0].DefectNumber)
	assert.Equal(t, "Utrymningsdörr låst", defects[0].Description, "draft should be flushed before analysis")
	require.NotNil(t, defects[0].Brist)
	assert.Equal(t, "Standardtext för brist 2", *defects[0].Brist)
}

func TestDefectsAcrossCases(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/cases/1/defects", nil), http.StatusCreated)
	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/cases/4/defects", nil), http.StatusCreated)
	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/cases/4/defects", nil), http.StatusCreated)

	resp := srv.do(t, http.MethodGet, "/api/v1/defects", nil)
	expectStatus(t, resp, http.StatusOK)
	var all []sqlite.CaseDefect
	decode(t, resp, &all)
	require.Len(t, all, 3)
	assert.Equal(t, "4", all[0].CaseID)
	assert.Equal(t, 2, all[0].DefectNumber)
	assert.Equal(t, "Havskrogen Storkök & Catering", all[0].CaseName)
	assert.Equal(t, "1", all[2].CaseID)

	expectStatus(t, srv.do(t, http.MethodDelete, "/api/v1/defects/"+all[0].ID, nil), http.StatusNoContent)
	expectStatus(t, srv.do(t, http.MethodDelete, "/api/v1/defects/"+all[0].ID, nil), http.StatusNotFound)

	// the case editor no longer knows the deleted defect
	expectStatus(t, srv.do(t, http.MethodPut, "/api/v1/cases/4/defects/2", defectDraftRequest{Description: "x"}), http.StatusNotFound)

	rows, err := srv.store.ListDefects(ctx, "4")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].DefectNumber)
}

func TestAddDefectAtCap(t *testing.T) {
	srv := newTestServer(t, nil)
	for i := 0; i < sqlite.MaxDefectsPerCase; i++ {
		expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/cases/3/defects", nil), http.StatusCreated)
	}

	resp := srv.do(t, http.MethodPost, "/api/v1/cases/3/defects", nil)
	expectStatus(t, resp, http.StatusOK)
	var added addDefectResponse
	decode(t, resp, &added)
	assert.False(t, added.Added)
}

func TestRelayConversation(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, http.MethodPost, "/api/v1/conversations", relayRequest{
		ConversationID: "conv_web",
		Entries: []relayEntry{
			{Role: "ai", Text: "Hur gick dagen?"},
			{Role: "user", Text: "Uppdrag 12345, 3 timmar, arbetet är klart."},
		},
	})
	expectStatus(t, resp, http.StatusOK)
	var result conversation.Result
	decode(t, resp, &result)
	assert.True(t, result.Persisted)
	assert.Equal(t, "12345", extraction.Value(result.Record.Project))

	resp = srv.do(t, http.MethodGet, "/api/v1/conversations/conv_web", nil)
	expectStatus(t, resp, http.StatusOK)
	var got conversationResponse
	decode(t, resp, &got)
	require.NotNil(t, got.Data)
	require.NotNil(t, got.Transcript)
	assert.Regexp(t, `^A: Hur gick dagen\?`, *got.Transcript)

	closed := "Ja"
	resp = srv.do(t, http.MethodPut, "/api/v1/conversations/conv_web", updateConversationRequest{Project: extraction.StringPtr("12346"), Closed: &closed})
	expectStatus(t, resp, http.StatusOK)
	var data sqlite.ConversationData
	decode(t, resp, &data)
	assert.Equal(t, "12346", extraction.Value(data.Project))
	assert.Equal(t, extraction.ClosedYes, extraction.Value(data.Closed))

	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/conversations/conv_web/analyze", nil), http.StatusOK)
	expectStatus(t, srv.do(t, http.MethodGet, "/api/v1/conversations/unknown", nil), http.StatusNotFound)
	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/conversations", relayRequest{}), http.StatusBadRequest)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"parse error", &extraction.ParseError{Content: "x", Err: errors.New("bad json")}, http.StatusUnprocessableEntity},
		{"completion error", &extraction.CompletionError{StatusCode: 429, Err: errors.New("rate limited")}, http.StatusBadGateway},
		{"generic", errors.New("disk i/o"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(d *Dependencies) {
				pipeline, err := conversation.NewPipeline(conversation.PipelineOptions{
					Store:     d.Store,
					Extractor: stubExtractor{err: tt.err},
				}, logger.NewNop())
				require.NoError(t, err)
				d.Pipeline = pipeline
			})

			resp := srv.do(t, http.MethodPost, "/api/v1/conversations", relayRequest{
				ConversationID: "conv_err",
				Entries:        []relayEntry{{Role: "user", Text: "hej"}},
			})
			expectStatus(t, resp, tt.want)
			var body errorResponse
			decode(t, resp, &body)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestSessionWithoutRunner(t *testing.T) {
	srv := newTestServer(t, nil)
	expectStatus(t, srv.do(t, http.MethodGet, "/api/v1/session", nil), http.StatusServiceUnavailable)
	expectStatus(t, srv.do(t, http.MethodPost, "/api/v1/session/start", nil), http.StatusServiceUnavailable)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, func(d *Dependencies) {
		d.Config.Server.CORSAllowedOrigins = []string{"http://localhost:5173"}
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/cases", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
