package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/templating"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

type fakeCompleter struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.content, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newRenderer(t *testing.T) *templating.Renderer {
	t.Helper()
	r, err := templating.NewRenderer(logger.NewNop())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

// chatCompletionBody is a minimal chat.completion response carrying content
func chatCompletionBody(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]interface{}{
				"role":    "assistant",
				"content": content,
			},
		}},
	})
	return string(body)
}

func TestOpenAICompleter(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody(`{"project":"12345","hours":4}`)))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL}, logger.NewNop())
	content, err := c.Complete(context.Background(), CompletionRequest{
		Model:     "gpt-4o-mini",
		System:    "extract",
		User:      "You: projekt 12345",
		MaxTokens: 2000,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if content != `{"project":"12345","hours":4}` {
		t.Errorf("content = %q", content)
	}

	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", got["model"])
	}
	format, _ := got["response_format"].(map[string]interface{})
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", got["response_format"])
	}
	if got["max_completion_tokens"] != float64(2000) {
		t.Errorf("max_completion_tokens = %v", got["max_completion_tokens"])
	}
	messages, _ := got["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("messages = %v, want system and user", got["messages"])
	}
}

func TestOpenAICompleterErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantParse  bool
	}{
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `{"error":{"message":"boom","type":"server_error"}}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"slow down","type":"rate_limit"}}`,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:      "no choices",
			status:    http.StatusOK,
			body:      `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`,
			wantParse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAICompleter(OpenAIOptions{APIKey: "k", BaseURL: srv.URL + "/"}, logger.NewNop())
			_, err := c.Complete(context.Background(), CompletionRequest{Model: "m", System: "s", User: "u"})
			if err == nil {
				t.Fatal("expected error")
			}

			if tt.wantParse {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("error = %v, want *ParseError", err)
				}
				return
			}

			var compErr *CompletionError
			if !errors.As(err, &compErr) {
				t.Fatalf("error = %v, want *CompletionError", err)
			}
			if compErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", compErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestLLMStrategy(t *testing.T) {
	completer := &fakeCompleter{content: `{"project":"12345","hours":"3","summary":"Klart","closed":"ja","sales_opportunities":"ny larmcentral"}`}
	s := NewLLMStrategy(completer, newRenderer(t), "gpt-4o-mini", 0, false, logger.NewNop())

	r, found, err := s.Extract(context.Background(), Input{
		ConversationID: "conv-1",
		Transcript:     "You: projekt 12345",
		ProjectOptions: []ProjectOption{{Number: "12345", Customer: "Göteborgs Stad"}},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !found {
		t.Fatal("expected a record")
	}
	if Value(r.Project) != "12345" || Value(r.Closed) != ClosedYes || r.Source != SourceLLM {
		t.Errorf("record = %+v", r)
	}
	if r.SalesOpportunities != nil {
		t.Error("sales opportunities should be dropped when not requested")
	}

	req := completer.requests[0]
	if !strings.Contains(req.System, "- 12345 - Göteborgs Stad") {
		t.Errorf("system prompt lacks project options:\n%s", req.System)
	}
	if req.User != "You: projekt 12345" {
		t.Errorf("user prompt = %q", req.User)
	}
}

func TestLLMStrategyErrorsAreNotEmptyResults(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		check     func(error) bool
	}{
		{
			name:      "malformed json",
			completer: &fakeCompleter{content: "not json"},
			check: func(err error) bool {
				var e *ParseError
				return errors.As(err, &e)
			},
		},
		{
			name:      "status error",
			completer: &fakeCompleter{err: &CompletionError{StatusCode: 503, Err: errors.New("unavailable")}},
			check: func(err error) bool {
				var e *CompletionError
				return errors.As(err, &e) && e.StatusCode == 503
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(logger.NewNop(),
				StructuredStrategy{},
				NewLLMStrategy(tt.completer, newRenderer(t), "m", 0, false, logger.NewNop()))

			r, err := engine.Extract(context.Background(), Input{Transcript: "You: hej"})
			if err == nil {
				t.Fatalf("Extract() = %+v, want error", r)
			}
			if !tt.check(err) {
				t.Errorf("error = %v has the wrong type", err)
			}
		})
	}
}

func TestLLMStrategySkipsEmptyTranscript(t *testing.T) {
	completer := &fakeCompleter{content: `{}`}
	s := NewLLMStrategy(completer, newRenderer(t), "m", 0, false, logger.NewNop())

	_, found, err := s.Extract(context.Background(), Input{Transcript: "  "})
	if err != nil || found {
		t.Fatalf("Extract() found=%v err=%v, want nothing", found, err)
	}
	if completer.calls() != 0 {
		t.Error("empty transcript must not reach the model")
	}
}
