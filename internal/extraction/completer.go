package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// CompletionRequest is one JSON-mode chat completion
type CompletionRequest struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// Completer sends a chat completion and returns the message content
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// OpenAIOptions configures the OpenAI client
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAICompleter implements Completer with the OpenAI chat completions API
type OpenAICompleter struct {
	client openai.Client
	logger *logger.Logger
}

// NewOpenAICompleter creates a completer. Requests are not retried.
func NewOpenAICompleter(opts OpenAIOptions, log *logger.Logger) *OpenAICompleter {
	requestOptions := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		baseURL := opts.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	if opts.Timeout > 0 {
		requestOptions = append(requestOptions, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAICompleter{
		client: openai.NewClient(requestOptions...),
		logger: log.Named("openai"),
	}
}

// Complete requests a JSON object completion
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("Completion request rejected",
				logger.String("model", req.Model),
				logger.Int("status", apiErr.StatusCode))
			return "", &CompletionError{StatusCode: apiErr.StatusCode, Err: err}
		}
		c.logger.Error("Completion request failed",
			logger.String("model", req.Model),
			logger.Error(err))
		return "", &CompletionError{Err: err}
	}

	c.logger.Debug("Completion received",
		logger.String("model", req.Model),
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("choices", len(resp.Choices)))

	if len(resp.Choices) == 0 {
		return "", &ParseError{Err: fmt.Errorf("response has no choices")}
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &ParseError{Err: fmt.Errorf("response message is empty")}
	}

	return content, nil
}
