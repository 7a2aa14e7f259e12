package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/audio"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/config"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/editor"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/elevenlabs"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/notify"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/templating"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// app wires the services shared by the commands
type app struct {
	cfg       *config.Config
	logger    *logger.Logger
	store     *sqlite.Gateway
	selection *cases.Selection
	provider  *elevenlabs.Client
	engine    *extraction.Engine
	analyzer  *extraction.DefectAnalyzer
	notifier  notify.Notifier
	pipeline  *conversation.Pipeline
	editors   *editor.Registry
	nats      *nats.Conn
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log, selection: cases.NewSelection()}

	store, err := sqlite.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	a.store = store

	if n, err := store.SeedCases(ctx, cases.Reference); err != nil {
		a.Close()
		return nil, err
	} else if n > 0 {
		log.Info("Seeded reference cases", logger.Int("count", n))
	}

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.NATS.Enabled {
		conn, err := notify.ConnectNATS(cfg.NATS, log)
		if err != nil {
			log.Warn("NATS notifications disabled", logger.Error(err))
		} else {
			a.nats = conn
			notifiers = append(notifiers, notify.NewNATSNotifier(conn, cfg.NATS.Subject, log))
		}
	}
	a.notifier = notifiers

	a.provider = elevenlabs.NewClient(cfg.Voice.APIKey, cfg.Voice.BaseURL, log)

	if err := a.buildExtraction(cfg.Extraction.Mode); err != nil {
		a.Close()
		return nil, err
	}

	policy, err := extraction.ParseEmptyRecordPolicy(cfg.Extraction.EmptyRecordPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	var analyzer conversation.DefectAnalyzer
	if a.analyzer != nil {
		analyzer = a.analyzer
	}
	a.pipeline, err = conversation.NewPipeline(conversation.PipelineOptions{
		Store:     store,
		Extractor: a.engine,
		Analyzer:  analyzer,
		Selection: a.selection,
		Policy:    policy,
		Notifier:  a.notifier,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.editors = editor.NewRegistry(store, cfg.Editor.Debounce, nil, func(caseID, key string, err error) {
		if nerr := a.notifier.Notify(context.Background(), notify.Notification{
			Level:   notify.LevelError,
			Title:   "Fel",
			Message: fmt.Sprintf("Kunde inte spara %s: %v", key, err),
			CaseID:  caseID,
		}); nerr != nil {
			log.Warn("Failed to deliver notification", logger.Error(nerr))
		}
	}, log)

	return a, nil
}

// buildExtraction creates the engine for mode and, with an OpenAI key, the defect analyzer
func (a *app) buildExtraction(mode string) error {
	renderer, err := templating.NewRenderer(a.logger)
	if err != nil {
		return err
	}

	opts := extraction.Options{
		Mode:               extraction.Mode(mode),
		Renderer:           renderer,
		Model:              a.cfg.OpenAI.TranscriptModel,
		MaxTokens:          a.cfg.OpenAI.MaxCompletionTokens,
		SalesOpportunities: a.cfg.Extraction.SalesOpportunities,
		Source:             a.provider,
		Retry: extraction.RetryPolicy{
			MaxAttempts: a.cfg.Extraction.PollMaxAttempts,
			Delay:       a.cfg.Extraction.PollInterval,
		},
		Sleep: extraction.Sleep,
	}

	if a.cfg.OpenAI.APIKey != "" {
		completer := extraction.NewOpenAICompleter(extraction.OpenAIOptions{
			APIKey:  a.cfg.OpenAI.APIKey,
			BaseURL: a.cfg.OpenAI.BaseURL,
			Timeout: a.cfg.OpenAI.Timeout,
		}, a.logger)
		opts.Completer = completer
		a.analyzer = extraction.NewDefectAnalyzer(completer, renderer, a.cfg.OpenAI.DefectModel, a.cfg.OpenAI.MaxCompletionTokens, a.logger)
	} else {
		a.logger.Warn("OpenAI API key not set - LLM extraction and defect analysis are unavailable")
	}

	engine, err := extraction.NewEngineForMode(opts, a.logger)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// newRunner builds a live voice runner reading the microphone from input
func (a *app) newRunner(input, output string, pace bool) (*conversation.Runner, func() error, error) {
	format := audio.Format{SampleRate: a.cfg.Voice.InputSampleRate, Channels: a.cfg.Voice.InputChannels}
	mic := audio.NewFileSource(input, format)

	opts := elevenlabs.ConversationOptions{
		APIKey:       a.cfg.Voice.APIKey,
		WebSocketURL: a.cfg.Voice.WebSocketURL,
		Microphone:   mic,
		ChunkMs:      a.cfg.Voice.ChunkMs,
		Pace:         pace,
	}

	closeOutput := func() error { return nil }
	if output != "" {
		w, err := audio.CreateWAV(output, format)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		opts.Output = w
		closeOutput = w.Close
	}

	client := elevenlabs.NewConversation(opts, a.logger)
	session := voice.NewSession(client, mic, a.logger)
	controller := conversation.NewController(a.pipeline, a.notifier, a.logger)
	return conversation.NewRunner(session, controller, a.logger), closeOutput, nil
}

func (a *app) Close() error {
	var errs []error
	if a.editors != nil {
		if err := a.editors.SaveAll(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
