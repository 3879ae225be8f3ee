package localapi

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Store persists workspace metadata and agent session records in SQLite
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the store database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspace_metadata (
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (project_id, name, key)
	);

	CREATE TABLE IF NOT EXISTS agent_sessions (
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		model TEXT,
		state TEXT,
		PRIMARY KEY (project_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_workspace_metadata_ws ON workspace_metadata(project_id, name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create initial schema: %w", err)
	}
	return nil
}

// GetMetadata returns all metadata entries for a workspace
func (s *Store) GetMetadata(projectID, name string) (workspace.Metadata, error) {
	rows, err := s.db.Query(
		"SELECT key, value FROM workspace_metadata WHERE project_id = ? AND name = ?",
		projectID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	meta := workspace.Metadata{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// ReplaceMetadata atomically replaces all metadata entries for a workspace
func (s *Store) ReplaceMetadata(projectID, name string, meta workspace.Metadata) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM workspace_metadata WHERE project_id = ? AND name = ?",
		projectID, name,
	); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	for key, value := range meta {
		if _, err := tx.Exec(
			"INSERT INTO workspace_metadata (project_id, name, key, value) VALUES (?, ?, ?, ?)",
			projectID, name, key, value,
		); err != nil {
			return fmt.Errorf("failed to insert metadata entry: %w", err)
		}
	}

	return tx.Commit()
}

// GetAgentSession returns the recorded agent session for a workspace, or nil
// when none is attached
func (s *Store) GetAgentSession(projectID, name string) (*workspace.AgentSession, error) {
	row := s.db.QueryRow(
		"SELECT session_id, model, state FROM agent_sessions WHERE project_id = ? AND name = ?",
		projectID, name,
	)

	var session workspace.AgentSession
	var model, state sql.NullString
	if err := row.Scan(&session.SessionID, &model, &state); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query agent session: %w", err)
	}
	session.Model = model.String
	session.State = state.String

	return &session, nil
}

// SetAgentSession records the agent session attached to a workspace
func (s *Store) SetAgentSession(projectID, name string, session workspace.AgentSession) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_sessions (project_id, name, session_id, model, state)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, name) DO UPDATE SET
		 session_id = excluded.session_id, model = excluded.model, state = excluded.state`,
		projectID, name, session.SessionID, session.Model, session.State,
	)
	if err != nil {
		return fmt.Errorf("failed to record agent session: %w", err)
	}
	return nil
}

// DeleteWorkspace removes all stored records for a workspace
func (s *Store) DeleteWorkspace(projectID, name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM workspace_metadata WHERE project_id = ? AND name = ?",
		projectID, name,
	); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM agent_sessions WHERE project_id = ? AND name = ?",
		projectID, name,
	); err != nil {
		return fmt.Errorf("failed to delete agent session: %w", err)
	}

	return tx.Commit()
}
