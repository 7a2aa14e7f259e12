package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// CaseStorage reads the read-only case list
type CaseStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewCaseStorage creates the case storage and its table
func NewCaseStorage(db *sql.DB, log *logger.Logger) (*CaseStorage, error) {
	s := &CaseStorage{db: db, logger: log.Named("sqlite-cases")}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CaseStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			case_number TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cases table: %w", err)
	}
	return nil
}

// SeedCases inserts cases that are not yet present and returns how many were added
func (s *CaseStorage) SeedCases(ctx context.Context, seed []cases.Case) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, c := range seed {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO cases (id, name, address, case_number) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			c.ID, c.Name, c.Address, c.CaseNumber,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to seed case %s: %w", c.ID, err)
		}
		n, _ := result.RowsAffected()
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit case seed: %w", err)
	}

	if added > 0 {
		s.logger.Info("Seeded cases", logger.Int("count", added))
	}
	return added, nil
}

// ListCases returns all cases ordered by case number
func (s *CaseStorage) ListCases(ctx context.Context) ([]cases.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, case_number FROM cases ORDER BY case_number, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	result := []cases.Case{}
	for rows.Next() {
		var c cases.Case
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.CaseNumber); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// GetCase returns one case or ErrNotFound
func (s *CaseStorage) GetCase(ctx context.Context, id string) (cases.Case, error) {
	var c cases.Case
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, case_number FROM cases WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Address, &c.CaseNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Case{}, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return cases.Case{}, fmt.Errorf("failed to query case: %w", err)
	}
	return c, nil
}
