package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/templating"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Strategy produces a record from one conversation.
// found=false hands over to the next strategy; a non-nil error stops the chain.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) (Record, bool, error)
}

// StructuredStrategy uses data the provider already delivered during the session
type StructuredStrategy struct{}

func (StructuredStrategy) Name() string { return string(SourceStructured) }

func (StructuredStrategy) Extract(_ context.Context, in Input) (Record, bool, error) {
	if in.Collected == nil || in.Collected.IsEmpty() {
		return Record{}, false, nil
	}
	r := *in.Collected
	r.Source = SourceStructured
	return r, true, nil
}

// LLMStrategy asks a chat model to extract the record from the transcript
type LLMStrategy struct {
	completer          Completer
	renderer           *templating.Renderer
	model              string
	maxTokens          int
	salesOpportunities bool
	logger             *logger.Logger
}

// NewLLMStrategy creates the LLM strategy
func NewLLMStrategy(completer Completer, renderer *templating.Renderer, model string, maxTokens int, salesOpportunities bool, log *logger.Logger) *LLMStrategy {
	return &LLMStrategy{
		completer:          completer,
		renderer:           renderer,
		model:              model,
		maxTokens:          maxTokens,
		salesOpportunities: salesOpportunities,
		logger:             log.Named("llm-extract"),
	}
}

func (s *LLMStrategy) Name() string { return string(SourceLLM) }

func (s *LLMStrategy) Extract(ctx context.Context, in Input) (Record, bool, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return Record{}, false, nil
	}

	fields := []string{FieldProject, FieldHours, FieldSummary, FieldClosed}
	if s.salesOpportunities {
		fields = append(fields, FieldSalesOpportunities)
	}

	options := make([]templating.ProjectOption, 0, len(in.ProjectOptions))
	for _, opt := range in.ProjectOptions {
		options = append(options, templating.ProjectOption{Number: opt.Number, Customer: opt.Customer})
	}

	system, err := s.renderer.TranscriptSystemPrompt(templating.TranscriptPrompt{
		Fields:             fields,
		SalesOpportunities: s.salesOpportunities,
		ProjectOptions:     options,
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	content, err := s.completer.Complete(ctx, CompletionRequest{
		Model:     s.model,
		System:    system,
		User:      in.Transcript,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return Record{}, false, err
	}

	r, err := ParseRecord(content)
	if err != nil {
		s.logger.Warn("Model returned an unusable record",
			logger.String("conversation_id", in.ConversationID),
			logger.Error(err))
		return Record{}, false, err
	}
	if !s.salesOpportunities {
		r.SalesOpportunities = nil
	}
	r.Source = SourceLLM

	return r, true, nil
}

// DataCollectionSource fetches the provider's asynchronous data-collection results
type DataCollectionSource interface {
	FetchDataCollection(ctx context.Context, conversationID string) (map[string]string, error)
}

// ProviderStrategy polls the provider until its data collection is available.
// Exhaustion yields the partial fallback record rather than an error.
type ProviderStrategy struct {
	source DataCollectionSource
	policy RetryPolicy
	sleep  SleepFunc
	logger *logger.Logger
}

// NewProviderStrategy creates the polling strategy. A nil sleep uses Sleep.
func NewProviderStrategy(source DataCollectionSource, policy RetryPolicy, sleep SleepFunc, log *logger.Logger) *ProviderStrategy {
	if sleep == nil {
		sleep = Sleep
	}
	return &ProviderStrategy{
		source: source,
		policy: policy,
		sleep:  sleep,
		logger: log.Named("provider-poll"),
	}
}

func (s *ProviderStrategy) Name() string { return string(SourceProvider) }

func (s *ProviderStrategy) Extract(ctx context.Context, in Input) (Record, bool, error) {
	log := s.logger.WithConversation(in.ConversationID)
	if in.ConversationID == "" {
		log.Warn("No conversation id to poll, using fallback record")
		return FallbackRecord(), true, nil
	}

	poll := s.policy.Begin()
	for {
		values, err := s.source.FetchDataCollection(ctx, in.ConversationID)
		r := FromCollected(values)
		success := err == nil && !r.IsEmpty()

		step := poll.Observe(success)
		if success {
			r.Source = SourceProvider
			log.Info("Data collection received", logger.Int("attempt", step.Attempt))
			return r, true, nil
		}

		if err != nil {
			log.Warn("Data collection fetch failed",
				logger.Int("attempt", step.Attempt),
				logger.Error(err))
		} else {
			log.Debug("Data collection not ready", logger.Int("attempt", step.Attempt))
		}

		if step.Exhausted {
			log.Warn("Data collection unavailable after polling",
				logger.Int("attempts", step.Attempt))
			return FallbackRecord(), true, nil
		}

		if err := s.sleep(ctx, step.Wait); err != nil {
			return Record{}, false, fmt.Errorf("polling interrupted: %w", err)
		}
	}
}
