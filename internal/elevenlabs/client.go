package elevenlabs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

const apiKeyHeader = "xi-api-key"

// Client reads finished conversations from the ConvAI REST API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a REST client
func NewClient(apiKey, baseURL string, log *logger.Logger) *Client {
	if apiKey == "" {
		log.Warn("ElevenLabs API key is empty - provider requests will be rejected")
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.Named("elevenlabs"),
	}
}

// ConversationDetails is the part of a finished conversation the pipeline uses
type ConversationDetails struct {
	ID             string
	Status         string
	Transcript     []transcript.Entry
	DataCollection map[string]string
}

// GetConversation fetches a conversation. It returns nil, nil while the provider
// does not know the conversation yet.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*ConversationDetails, error) {
	endpoint := fmt.Sprintf("%s/v1/convai/conversations/%s", c.baseURL, url.PathEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("Conversation not available yet", logger.String("conversation_id", conversationID))
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("Conversation fetch failed",
			logger.String("conversation_id", conversationID),
			logger.Int("status_code", resp.StatusCode),
			logger.String("response_body", string(body)))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in conversation response")
	}

	return parseConversation(conversationID, body), nil
}

// FetchDataCollection returns the analysed data-collection values, empty while analysis is pending
func (c *Client) FetchDataCollection(ctx context.Context, conversationID string) (map[string]string, error) {
	conv, err := c.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		return nil, err
	}
	return conv.DataCollection, nil
}

// FetchTranscript returns the provider's transcript of a conversation
func (c *Client) FetchTranscript(ctx context.Context, conversationID string) ([]transcript.Entry, error) {
	conv, err := c.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	return conv.Transcript, nil
}

func parseConversation(conversationID string, body []byte) *ConversationDetails {
	doc := gjson.ParseBytes(body)

	conv := &ConversationDetails{
		ID:             conversationID,
		Status:         doc.Get("status").String(),
		DataCollection: dataCollectionValues(doc.Get("analysis.data_collection_results")),
	}
	if id := doc.Get("conversation_id").String(); id != "" {
		conv.ID = id
	}

	doc.Get("transcript").ForEach(func(_, turn gjson.Result) bool {
		text := strings.TrimSpace(turn.Get("message").String())
		if text == "" {
			return true
		}
		role, ok := transcript.ParseRole(turn.Get("role").String())
		if !ok {
			return true
		}
		conv.Transcript = append(conv.Transcript, transcript.Entry{Role: role, Text: text})
		return true
	})

	return conv
}

// dataCollectionValues flattens {"field": {"value": ...}} into field -> value, skipping nulls
func dataCollectionValues(results gjson.Result) map[string]string {
	values := make(map[string]string)
	results.ForEach(func(key, item gjson.Result) bool {
		value := item.Get("value")
		if !item.IsObject() {
			value = item
		}
		if value.Exists() && value.Type != gjson.Null {
			if text := strings.TrimSpace(value.String()); text != "" {
				values[key.String()] = text
			}
		}
		return true
	})
	return values
}
