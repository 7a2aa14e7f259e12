package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ConversationStorage persists data-collection records and transcripts by conversation id
type ConversationStorage struct {
	db     *sql.DB
	logger *logger.Logger

	mu    sync.Mutex
	saved map[string]struct{}
}

// NewConversationStorage creates the conversation storage and its tables
func NewConversationStorage(db *sql.DB, log *logger.Logger) (*ConversationStorage, error) {
	s := &ConversationStorage{
		db:     db,
		logger: log.Named("sqlite-conversations"),
		saved:  make(map[string]struct{}),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConversationStorage) initDB() error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"conversation_data", `
			CREATE TABLE IF NOT EXISTS conversation_data (
				conversation_id TEXT PRIMARY KEY,
				project TEXT,
				hours TEXT,
				summary TEXT,
				closed TEXT,
				sales_opportunities TEXT,
				source TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`},
		{"conversation_transcripts", `
			CREATE TABLE IF NOT EXISTS conversation_transcripts (
				conversation_id TEXT PRIMARY KEY,
				transcript TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`},
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}

// UpsertConversationData writes the record of a conversation, replacing any earlier one
func (s *ConversationStorage) UpsertConversationData(ctx context.Context, d ConversationData) error {
	if d.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_data
			(conversation_id, project, hours, summary, closed, sales_opportunities, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			project = excluded.project,
			hours = excluded.hours,
			summary = excluded.summary,
			closed = excluded.closed,
			sales_opportunities = excluded.sales_opportunities,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		d.ConversationID, nullString(d.Project), nullString(d.Hours), nullString(d.Summary),
		nullString(d.Closed), nullString(d.SalesOpportunities), d.Source, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation data: %w", err)
	}

	s.logger.Debug("Stored conversation data", logger.String("conversation_id", d.ConversationID))
	return nil
}

// GetConversationData returns the stored record or ErrNotFound
func (s *ConversationStorage) GetConversationData(ctx context.Context, conversationID string) (ConversationData, error) {
	var d ConversationData
	var project, hours, summary, closed, sales sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, project, hours, summary, closed, sales_opportunities, source, created_at, updated_at
		FROM conversation_data WHERE conversation_id = ?`,
		conversationID,
	).Scan(&d.ConversationID, &project, &hours, &summary, &closed, &sales, &d.Source, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationData{}, fmt.Errorf("conversation data %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return ConversationData{}, fmt.Errorf("failed to query conversation data: %w", err)
	}

	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return ConversationData{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ConversationData{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	d.Project = stringPtr(project)
	d.Hours = stringPtr(hours)
	d.Summary = stringPtr(summary)
	d.Closed = stringPtr(closed)
	d.SalesOpportunities = stringPtr(sales)

	return d, nil
}

// InsertTranscript stores the transcript of a conversation once. Later calls for the
// same id are no-ops; inserted reports whether this call wrote the row.
func (s *ConversationStorage) InsertTranscript(ctx context.Context, conversationID, text string) (bool, error) {
	if conversationID == "" {
		return false, fmt.Errorf("conversation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.saved[conversationID]; ok {
		return false, nil
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_transcripts (conversation_id, transcript, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		conversationID, text, formatTime(now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transcript: %w", err)
	}

	s.saved[conversationID] = struct{}{}
	n, _ := result.RowsAffected()
	if n == 0 {
		s.logger.Debug("Transcript already stored", logger.String("conversation_id", conversationID))
	}
	return n > 0, nil
}

// GetTranscript returns the stored transcript or ErrNotFound
func (s *ConversationStorage) GetTranscript(ctx context.Context, conversationID string) (Transcript, error) {
	var t Transcript
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, transcript, created_at FROM conversation_transcripts WHERE conversation_id = ?`,
		conversationID,
	).Scan(&t.ConversationID, &t.Transcript, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, fmt.Errorf("transcript %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to query transcript: %w", err)
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Transcript{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return t, nil
}
