// Package conversation runs the end-of-conversation pipeline: transcript
// persistence, defect analysis for the active case, record extraction and
// the record upsert.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/notify"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ErrNoConversation is returned when a pipeline run has no conversation id
var ErrNoConversation = errors.New("no conversation id")

// Store is the persistence the pipeline writes through
type Store interface {
	InsertTranscript(ctx context.Context, conversationID, text string) (bool, error)
	GetTranscript(ctx context.Context, conversationID string) (sqlite.Transcript, error)
	UpsertConversationData(ctx context.Context, d sqlite.ConversationData) error
	GetConversationData(ctx context.Context, conversationID string) (sqlite.ConversationData, error)
	ListProjects(ctx context.Context) ([]sqlite.Project, error)
	ListDefects(ctx context.Context, caseID string) ([]sqlite.Defect, error)
	AnalysisStore
}

// Extractor turns a finished conversation into a record
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (extraction.Record, error)
}

// DefectAnalyzer elaborates case defects from a transcript
type DefectAnalyzer interface {
	Analyze(ctx context.Context, in extraction.DefectInput) ([]extraction.DefectAnalysis, error)
}

// Conversation is one finished conversation handed to the pipeline
type Conversation struct {
	ID        string
	Entries   []transcript.Entry
	Collected map[string]string
}

// Result reports what a pipeline run did
type Result struct {
	ConversationID  string                      `json:"conversation_id"`
	Transcript      string                      `json:"transcript"`
	TranscriptSaved bool                        `json:"transcript_saved"`
	CaseID          string                      `json:"case_id,omitempty"`
	Defects         []extraction.DefectAnalysis `json:"defects,omitempty"`
	Record          extraction.Record           `json:"record"`
	Persisted       bool                        `json:"persisted"`
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	Store     Store
	Extractor Extractor
	// Analyzer is optional; without it defects are never analyzed
	Analyzer  DefectAnalyzer
	Selection *cases.Selection
	Policy    extraction.EmptyRecordPolicy
	Notifier  notify.Notifier
}

// Pipeline processes finished conversations. It is safe for concurrent use.
type Pipeline struct {
	store     Store
	extractor Extractor
	analyzer  DefectAnalyzer
	selection *cases.Selection
	policy    extraction.EmptyRecordPolicy
	notifier  notify.Notifier
	logger    *logger.Logger

	mu    sync.Mutex
	saved map[string]bool
}

// NewPipeline creates a pipeline
func NewPipeline(opts PipelineOptions, log *logger.Logger) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline requires a store")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("pipeline requires an extractor")
	}
	if opts.Selection == nil {
		opts.Selection = cases.NewSelection()
	}
	if opts.Policy == "" {
		opts.Policy = extraction.PolicyPlaceholder
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}

	return &Pipeline{
		store:     opts.Store,
		extractor: opts.Extractor,
		analyzer:  opts.Analyzer,
		selection: opts.Selection,
		policy:    opts.Policy,
		notifier:  opts.Notifier,
		logger:    log.Named("pipeline"),
		saved:     make(map[string]bool),
	}, nil
}

// Process runs the pipeline for a finished conversation. The transcript is saved
// before defect analysis starts; the analysis works on the in-memory text.
func (p *Pipeline) Process(ctx context.Context, conv Conversation) (Result, error) {
	if conv.ID == "" {
		return Result{}, ErrNoConversation
	}
	log := p.logger.WithConversation(conv.ID)

	result := Result{
		ConversationID: conv.ID,
		Transcript:     transcript.Render(conv.Entries),
	}

	// Save the transcript first; defect analysis only follows a fresh save
	if len(conv.Entries) == 0 {
		log.Info("Empty transcript, skipping transcript persistence")
	} else {
		saved, err := p.saveTranscript(ctx, conv.ID, result.Transcript)
		if err != nil {
			p.notify(ctx, notify.Notification{
				Level:          notify.LevelError,
				Title:          "Transcription Error",
				Message:        err.Error(),
				ConversationID: conv.ID,
			})
		}
		result.TranscriptSaved = saved

		if saved {
			if c, ok := p.selection.Current(); ok {
				result.CaseID = c.ID
				result.Defects = p.analyzeDefects(ctx, conv.ID, c, result.Transcript)
			}
		}
	}

	// Provider data collection, when present, is tried before the transcript
	var collected *extraction.Record
	if len(conv.Collected) > 0 {
		r := extraction.FromCollected(conv.Collected)
		collected = &r
	}

	record, persisted, err := p.extractAndStore(ctx, conv.ID, result.Transcript, collected)
	result.Record = record
	result.Persisted = persisted
	return result, err
}

// Reanalyze re-extracts the record of a stored conversation from its saved transcript
func (p *Pipeline) Reanalyze(ctx context.Context, conversationID string) (Result, error) {
	if conversationID == "" {
		return Result{}, ErrNoConversation
	}

	t, err := p.store.GetTranscript(ctx, conversationID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load transcript: %w", err)
	}

	result := Result{
		ConversationID:  conversationID,
		Transcript:      t.Transcript,
		TranscriptSaved: true,
	}
	record, persisted, err := p.extractAndStore(ctx, conversationID, t.Transcript, nil)
	result.Record = record
	result.Persisted = persisted
	return result, err
}

// UpdateRecord stores a manually edited record for a conversation
func (p *Pipeline) UpdateRecord(ctx context.Context, conversationID string, r extraction.Record) (sqlite.ConversationData, error) {
	if conversationID == "" {
		return sqlite.ConversationData{}, ErrNoConversation
	}
	if r.Closed != nil {
		r.Closed = extraction.NormalizeClosed(*r.Closed)
	}
	r.Source = extraction.SourceManual

	if err := p.store.UpsertConversationData(ctx, toConversationData(conversationID, r)); err != nil {
		return sqlite.ConversationData{}, err
	}
	return p.store.GetConversationData(ctx, conversationID)
}

// saveTranscript inserts the transcript at most once per conversation id.
// It reports true only for the call that performed the first save.
func (p *Pipeline) saveTranscript(ctx context.Context, conversationID, text string) (bool, error) {
	p.mu.Lock()
	if p.saved[conversationID] {
		p.mu.Unlock()
		p.logger.Debug("Transcript already saved", logger.String("conversation_id", conversationID))
		return false, nil
	}
	p.saved[conversationID] = true
	p.mu.Unlock()

	inserted, err := p.store.InsertTranscript(ctx, conversationID, text)
	if err != nil {
		p.mu.Lock()
		delete(p.saved, conversationID)
		p.mu.Unlock()
		return false, fmt.Errorf("failed to save transcript: %w", err)
	}

	if inserted {
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelSuccess,
			Title:          "Transcription Saved",
			Message:        "Conversation transcript has been saved",
			ConversationID: conversationID,
		})
	}
	return inserted, nil
}

func (p *Pipeline) analyzeDefects(ctx context.Context, conversationID string, c cases.Case, text string) []extraction.DefectAnalysis {
	if p.analyzer == nil {
		return nil
	}
	log := p.logger.WithConversation(conversationID).WithCase(c.ID)

	rows, err := p.store.ListDefects(ctx, c.ID)
	if err != nil {
		log.Error("Failed to load defects", logger.Error(err))
		p.notifyCase(ctx, c.ID, notify.LevelError, "Analys fel", err.Error())
		return nil
	}
	if len(rows) == 0 {
		log.Debug("No defects to analyze")
		return nil
	}

	in := extraction.DefectInput{Transcript: text, CaseID: c.ID}
	for _, row := range rows {
		in.Defects = append(in.Defects, extraction.Defect{Number: row.DefectNumber, Description: row.Description})
	}

	analyses, err := p.analyzer.Analyze(ctx, in)
	if err != nil {
		log.Error("Defect analysis failed", logger.Error(err))
		p.notifyCase(ctx, c.ID, notify.LevelError, "Analys fel", err.Error())
		return nil
	}

	updated, err := StoreDefectAnalyses(ctx, p.store, c.ID, analyses)
	if err != nil {
		log.Error("Failed to store defect analysis", logger.Error(err))
	}

	log.Info("Defects analyzed", logger.Int("defects", len(analyses)), logger.Int("updated", updated))
	p.notifyCase(ctx, c.ID, notify.LevelSuccess, "Brister analyserade",
		fmt.Sprintf("%d av %d brister uppdaterade", updated, len(analyses)))
	return analyses
}

func (p *Pipeline) extractAndStore(ctx context.Context, conversationID, text string, collected *extraction.Record) (extraction.Record, bool, error) {
	log := p.logger.WithConversation(conversationID)

	in := extraction.Input{
		ConversationID: conversationID,
		Transcript:     text,
		Collected:      collected,
	}

	projects, err := p.store.ListProjects(ctx)
	if err != nil {
		log.Warn("Failed to load project options", logger.Error(err))
	}
	for _, project := range projects {
		in.ProjectOptions = append(in.ProjectOptions, extraction.ProjectOption{Number: project.Uppdragsnr, Customer: project.Kund})
	}

	record, err := p.extractor.Extract(ctx, in)
	if err != nil {
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelError,
			Title:          "Error",
			Message:        fmt.Sprintf("Failed to extract conversation data: %v", err),
			ConversationID: conversationID,
		})
		return extraction.Record{}, false, fmt.Errorf("failed to extract conversation data: %w", err)
	}

	if !p.policy.ShouldPersist(record) {
		log.Info("Record not persisted",
			logger.String("policy", string(p.policy)),
			logger.Bool("empty", record.IsEmpty()))
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelWarning,
			Title:          "Data Missing",
			Message:        "No conversation data was collected",
			ConversationID: conversationID,
		})
		return record, false, nil
	}

	if err := p.store.UpsertConversationData(ctx, toConversationData(conversationID, record)); err != nil {
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelError,
			Title:          "Database Error",
			Message:        err.Error(),
			ConversationID: conversationID,
		})
		return record, false, fmt.Errorf("failed to save conversation data: %w", err)
	}

	if record.Partial {
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelWarning,
			Title:          "Limited data collected",
			Message:        "Conversation saved but detailed data collection was not available",
			ConversationID: conversationID,
		})
	} else {
		p.notify(ctx, notify.Notification{
			Level:          notify.LevelSuccess,
			Title:          "Saved to Database",
			Message:        "Conversation data has been saved",
			ConversationID: conversationID,
		})
	}

	log.Info("Conversation data saved", logger.String("record", record.String()))
	return record, true, nil
}

func (p *Pipeline) notifyCase(ctx context.Context, caseID string, level notify.Level, title, message string) {
	p.notify(ctx, notify.Notification{Level: level, Title: title, Message: message, CaseID: caseID})
}

func (p *Pipeline) notify(ctx context.Context, n notify.Notification) {
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Warn("Failed to deliver notification",
			logger.String("title", n.Title),
			logger.Error(err))
	}
}

func toConversationData(conversationID string, r extraction.Record) sqlite.ConversationData {
	return sqlite.ConversationData{
		ConversationID:     conversationID,
		Project:            r.Project,
		Hours:              r.Hours,
		Summary:            r.Summary,
		Closed:             r.Closed,
		SalesOpportunities: r.SalesOpportunities,
		Source:             string(r.Source),
	}
}
