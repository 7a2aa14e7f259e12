package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/templating"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Mode selects the strategy chain
type Mode string

const (
	ModeLLM      Mode = "llm"
	ModeRegex    Mode = "regex"
	ModeProvider Mode = "provider"
)

// Options wires the dependencies of a strategy chain
type Options struct {
	Mode               Mode
	Completer          Completer
	Renderer           *templating.Renderer
	Model              string
	MaxTokens          int
	SalesOpportunities bool
	Source             DataCollectionSource
	Retry              RetryPolicy
	Sleep              SleepFunc
}

// Engine runs strategies in preference order and returns the first record found
type Engine struct {
	strategies []Strategy
	logger     *logger.Logger
}

// NewEngine creates an engine over an explicit strategy chain
func NewEngine(log *logger.Logger, strategies ...Strategy) *Engine {
	return &Engine{
		strategies: strategies,
		logger:     log.Named("extraction"),
	}
}

// NewEngineForMode builds the chain for the configured mode.
// The structured strategy always runs first.
func NewEngineForMode(opts Options, log *logger.Logger) (*Engine, error) {
	chain := []Strategy{StructuredStrategy{}}

	switch opts.Mode {
	case ModeLLM:
		if opts.Completer == nil || opts.Renderer == nil {
			return nil, fmt.Errorf("llm mode requires a completer and a prompt renderer")
		}
		chain = append(chain, NewLLMStrategy(opts.Completer, opts.Renderer, opts.Model, opts.MaxTokens, opts.SalesOpportunities, log))
	case ModeRegex:
		chain = append(chain, NewRegexStrategy())
	case ModeProvider:
		if opts.Source == nil {
			return nil, fmt.Errorf("provider mode requires a data collection source")
		}
		chain = append(chain, NewProviderStrategy(opts.Source, opts.Retry, opts.Sleep, log))
	default:
		return nil, fmt.Errorf("unsupported extraction mode %q", opts.Mode)
	}

	return NewEngine(log, chain...), nil
}

// Extract returns the first record a strategy finds, or an empty record.
// Strategy errors are returned unchanged so callers can tell them apart from an empty result.
func (e *Engine) Extract(ctx context.Context, in Input) (Record, error) {
	log := e.logger.WithConversation(in.ConversationID)

	for _, strategy := range e.strategies {
		start := time.Now()
		r, found, err := strategy.Extract(ctx, in)
		if err != nil {
			log.Error("Extraction failed",
				logger.String("strategy", strategy.Name()),
				logger.Error(err))
			return Record{}, err
		}
		if found {
			log.Info("Record extracted",
				logger.String("strategy", strategy.Name()),
				logger.Bool("partial", r.Partial),
				logger.Duration("elapsed", time.Since(start)))
			return r, nil
		}
	}

	log.Info("No record found in conversation")
	return Record{}, nil
}
