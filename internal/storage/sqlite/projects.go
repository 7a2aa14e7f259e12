package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ProjectStorage holds the project-code lookup
type ProjectStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewProjectStorage creates the project storage and its table
func NewProjectStorage(db *sql.DB, log *logger.Logger) (*ProjectStorage, error) {
	s := &ProjectStorage{db: db, logger: log.Named("sqlite-projects")}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProjectStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			uppdragsnr TEXT PRIMARY KEY,
			kund TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}
	return nil
}

// UpsertProject adds or renames a project code
func (s *ProjectStorage) UpsertProject(ctx context.Context, p Project) error {
	p.Uppdragsnr = strings.TrimSpace(p.Uppdragsnr)
	if p.Uppdragsnr == "" {
		return fmt.Errorf("project number is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (uppdragsnr, kund) VALUES (?, ?)
		ON CONFLICT(uppdragsnr) DO UPDATE SET kund = excluded.kund`,
		p.Uppdragsnr, strings.TrimSpace(p.Kund),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// ListProjects returns all project codes ordered by number
func (s *ProjectStorage) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uppdragsnr, kund FROM projects ORDER BY uppdragsnr`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Uppdragsnr, &p.Kund); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
