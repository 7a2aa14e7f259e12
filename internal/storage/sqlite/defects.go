package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// DefectStorage persists numbered case defects
type DefectStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDefectStorage creates the defect storage and its table
func NewDefectStorage(db *sql.DB, log *logger.Logger) (*DefectStorage, error) {
	s := &DefectStorage{db: db, logger: log.Named("sqlite-defects")}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DefectStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS case_defects (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			defect_number INTEGER NOT NULL CHECK (defect_number >= 1),
			description TEXT NOT NULL DEFAULT '',
			brist TEXT,
			atgard TEXT,
			motivering TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (case_id, defect_number)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create case_defects table: %w", err)
	}
	return nil
}

// UpsertDefect writes a defect keyed by (case, number). Nil boilerplate fields keep their stored value.
func (s *DefectStorage) UpsertDefect(ctx context.Context, d Defect) (Defect, error) {
	if d.CaseID == "" {
		return Defect{}, fmt.Errorf("case id is required")
	}
	if d.DefectNumber < 1 {
		return Defect{}, fmt.Errorf("defect number must be positive: %d", d.DefectNumber)
	}

	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_defects (id, case_id, defect_number, description, brist, atgard, motivering, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, defect_number) DO UPDATE SET
			description = excluded.description,
			brist = COALESCE(excluded.brist, case_defects.brist),
			atgard = COALESCE(excluded.atgard, case_defects.atgard),
			motivering = COALESCE(excluded.motivering, case_defects.motivering),
			updated_at = excluded.updated_at`,
		uuid.NewString(), d.CaseID, d.DefectNumber, d.Description,
		nullString(d.Brist), nullString(d.Atgard), nullString(d.Motivering), ts, ts,
	)
	if err != nil {
		return Defect{}, fmt.Errorf("failed to upsert defect: %w", err)
	}

	return s.getDefect(ctx, d.CaseID, d.DefectNumber)
}

// UpdateDefectAnalysis sets the boilerplate texts of an existing defect. Nil fields are left unchanged.
func (s *DefectStorage) UpdateDefectAnalysis(ctx context.Context, caseID string, number int, brist, atgard, motivering *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE case_defects SET
			brist = COALESCE(?, brist),
			atgard = COALESCE(?, atgard),
			motivering = COALESCE(?, motivering),
			updated_at = ?
		WHERE case_id = ? AND defect_number = ?`,
		nullString(brist), nullString(atgard), nullString(motivering), formatTime(now()), caseID, number,
	)
	if err != nil {
		return fmt.Errorf("failed to update defect analysis: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("defect %s/%d: %w", caseID, number, ErrNotFound)
	}
	return nil
}

// ClearDefectAnalysis removes the boilerplate texts of a defect
func (s *DefectStorage) ClearDefectAnalysis(ctx context.Context, caseID string, number int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE case_defects SET brist = NULL, atgard = NULL, motivering = NULL, updated_at = ?
		WHERE case_id = ? AND defect_number = ?`,
		formatTime(now()), caseID, number,
	)
	if err != nil {
		return fmt.Errorf("failed to clear defect analysis: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("defect %s/%d: %w", caseID, number, ErrNotFound)
	}
	return nil
}

// DeleteDefect removes a defect; numbers of other defects are not changed
func (s *DefectStorage) DeleteDefect(ctx context.Context, caseID string, number int) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM case_defects WHERE case_id = ? AND defect_number = ?`, caseID, number)
	if err != nil {
		return fmt.Errorf("failed to delete defect: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("defect %s/%d: %w", caseID, number, ErrNotFound)
	}
	return nil
}

// ListDefects returns the defects of a case ordered by number
func (s *DefectStorage) ListDefects(ctx context.Context, caseID string) ([]Defect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, defect_number, description, brist, atgard, motivering, created_at, updated_at
		FROM case_defects WHERE case_id = ? ORDER BY defect_number`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query defects: %w", err)
	}
	defer rows.Close()

	return scanDefectRows(rows)
}

// ListAllDefects returns the defects of every case with case details, newest first.
// Defects whose case is gone are still listed with empty case fields.
func (s *DefectStorage) ListAllDefects(ctx context.Context) ([]CaseDefect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.case_id, d.defect_number, d.description, d.brist, d.atgard, d.motivering,
			d.created_at, d.updated_at,
			COALESCE(c.name, ''), COALESCE(c.case_number, ''), COALESCE(c.address, '')
		FROM case_defects d
		LEFT JOIN cases c ON c.id = d.case_id
		ORDER BY d.created_at DESC, d.rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query all defects: %w", err)
	}
	defer rows.Close()

	defects := []CaseDefect{}
	for rows.Next() {
		var cd CaseDefect
		var brist, atgard, motivering sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&cd.ID, &cd.CaseID, &cd.DefectNumber, &cd.Description,
			&brist, &atgard, &motivering, &createdAt, &updatedAt,
			&cd.CaseName, &cd.CaseNumber, &cd.CaseAddress); err != nil {
			return nil, fmt.Errorf("failed to scan defect: %w", err)
		}
		if cd.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if cd.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		cd.Brist = stringPtr(brist)
		cd.Atgard = stringPtr(atgard)
		cd.Motivering = stringPtr(motivering)

		defects = append(defects, cd)
	}
	return defects, rows.Err()
}

// GetDefectByID returns a defect by its row id
func (s *DefectStorage) GetDefectByID(ctx context.Context, id string) (Defect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, defect_number, description, brist, atgard, motivering, created_at, updated_at
		FROM case_defects WHERE id = ?`,
		id,
	)
	if err != nil {
		return Defect{}, fmt.Errorf("failed to query defect: %w", err)
	}
	defer rows.Close()

	defects, err := scanDefectRows(rows)
	if err != nil {
		return Defect{}, err
	}
	if len(defects) == 0 {
		return Defect{}, fmt.Errorf("defect %s: %w", id, ErrNotFound)
	}
	return defects[0], nil
}

func (s *DefectStorage) getDefect(ctx context.Context, caseID string, number int) (Defect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, defect_number, description, brist, atgard, motivering, created_at, updated_at
		FROM case_defects WHERE case_id = ? AND defect_number = ?`,
		caseID, number,
	)
	if err != nil {
		return Defect{}, fmt.Errorf("failed to query defect: %w", err)
	}
	defer rows.Close()

	defects, err := scanDefectRows(rows)
	if err != nil {
		return Defect{}, err
	}
	if len(defects) == 0 {
		return Defect{}, fmt.Errorf("defect %s/%d: %w", caseID, number, ErrNotFound)
	}
	return defects[0], nil
}

func scanDefectRows(rows *sql.Rows) ([]Defect, error) {
	defects := []Defect{}
	for rows.Next() {
		var d Defect
		var brist, atgard, motivering sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&d.ID, &d.CaseID, &d.DefectNumber, &d.Description,
			&brist, &atgard, &motivering, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan defect: %w", err)
		}

		var err error
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		d.Brist = stringPtr(brist)
		d.Atgard = stringPtr(atgard)
		d.Motivering = stringPtr(motivering)

		defects = append(defects, d)
	}
	return defects, rows.Err()
}
