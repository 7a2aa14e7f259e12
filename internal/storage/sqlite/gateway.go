package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Gateway is the persistence boundary of the assistant. No operation retries.
type Gateway struct {
	*CaseStorage
	*ChecklistStorage
	*DefectStorage
	*ConversationStorage
	*ProjectStorage

	db     *sql.DB
	path   string
	logger *logger.Logger
}

// Open opens or creates the SQLite database at path and prepares the schema
func Open(path string, log *logger.Logger) (*Gateway, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := configureSQLite(db, path == ":memory:"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure SQLite: %w", err)
	}

	g, err := New(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	g.path = path

	g.logger.Info("Database ready", logger.String("path", path))
	return g, nil
}

// New builds the gateway over an open database, creating missing tables
func New(db *sql.DB, log *logger.Logger) (*Gateway, error) {
	g := &Gateway{
		db:     db,
		logger: log.Named("sqlite"),
	}

	var err error
	if g.CaseStorage, err = NewCaseStorage(db, log); err != nil {
		return nil, err
	}
	if g.ChecklistStorage, err = NewChecklistStorage(db, log); err != nil {
		return nil, err
	}
	if g.DefectStorage, err = NewDefectStorage(db, log); err != nil {
		return nil, err
	}
	if g.ConversationStorage, err = NewConversationStorage(db, log); err != nil {
		return nil, err
	}
	if g.ProjectStorage, err = NewProjectStorage(db, log); err != nil {
		return nil, err
	}

	return g, nil
}

func configureSQLite(db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !memory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Ping checks the database connection
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close closes the database
func (g *Gateway) Close() error {
	g.logger.Info("Closing database", logger.String("path", g.path))
	return g.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}
