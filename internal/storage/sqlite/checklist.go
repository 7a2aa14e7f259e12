package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ChecklistStorage persists checklist answers per case
type ChecklistStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewChecklistStorage creates the checklist storage and its table
func NewChecklistStorage(db *sql.DB, log *logger.Logger) (*ChecklistStorage, error) {
	s := &ChecklistStorage{db: db, logger: log.Named("sqlite-checklist")}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChecklistStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checklist_responses (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			checklist_id TEXT NOT NULL,
			answer TEXT,
			comment TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (case_id, checklist_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create checklist_responses table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_checklist_responses_case ON checklist_responses(case_id)`)
	if err != nil {
		return fmt.Errorf("failed to create checklist index: %w", err)
	}
	return nil
}

// UpsertChecklistResponse writes the answer and comment keyed by (case, checklist item)
func (s *ChecklistStorage) UpsertChecklistResponse(ctx context.Context, r ChecklistResponse) (ChecklistResponse, error) {
	if r.CaseID == "" || r.ChecklistID == "" {
		return ChecklistResponse{}, fmt.Errorf("case id and checklist id are required")
	}

	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_responses (id, case_id, checklist_id, answer, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, checklist_id) DO UPDATE SET
			answer = excluded.answer,
			comment = excluded.comment,
			updated_at = excluded.updated_at`,
		uuid.NewString(), r.CaseID, r.ChecklistID, nullString(r.Answer), r.Comment, ts, ts,
	)
	if err != nil {
		return ChecklistResponse{}, fmt.Errorf("failed to upsert checklist response: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, checklist_id, answer, comment, created_at, updated_at
		FROM checklist_responses WHERE case_id = ? AND checklist_id = ?`,
		r.CaseID, r.ChecklistID,
	)
	if err != nil {
		return ChecklistResponse{}, fmt.Errorf("failed to read back checklist response: %w", err)
	}
	defer rows.Close()

	stored, err := scanChecklistRows(rows)
	if err != nil {
		return ChecklistResponse{}, err
	}
	if len(stored) != 1 {
		return ChecklistResponse{}, fmt.Errorf("checklist response %s/%s: %w", r.CaseID, r.ChecklistID, ErrNotFound)
	}
	return stored[0], nil
}

// ListChecklistResponses returns every stored answer of a case
func (s *ChecklistStorage) ListChecklistResponses(ctx context.Context, caseID string) ([]ChecklistResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, checklist_id, answer, comment, created_at, updated_at
		FROM checklist_responses WHERE case_id = ? ORDER BY checklist_id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklist responses: %w", err)
	}
	defer rows.Close()

	return scanChecklistRows(rows)
}

func scanChecklistRows(rows *sql.Rows) ([]ChecklistResponse, error) {
	responses := []ChecklistResponse{}
	for rows.Next() {
		var r ChecklistResponse
		var answer sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&r.ID, &r.CaseID, &r.ChecklistID, &answer, &r.Comment, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checklist response: %w", err)
		}

		var err error
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		r.Answer = stringPtr(answer)

		responses = append(responses, r)
	}
	return responses, rows.Err()
}
