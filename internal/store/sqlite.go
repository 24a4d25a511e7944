package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/infoundr/infoundr/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS asana_connections (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		workspace_gid TEXT NOT NULL,
		workspace_name TEXT NOT NULL,
		project_gids TEXT NOT NULL,
		active_project TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS github_connections (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		selected_repo TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS thread_states (
		thread_key TEXT PRIMARY KEY,
		active_persona TEXT,
		recent_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		persona TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_message_history_user ON message_history(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetAsanaConnection retrieves a user's Asana credential record.
func (s *SQLiteStore) GetAsanaConnection(ctx context.Context, userID string) (*domain.AsanaConnection, error) {
	query := `
		SELECT user_id, token, workspace_gid, workspace_name, project_gids,
		       active_project, created_at, updated_at
		FROM asana_connections WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var conn domain.AsanaConnection
	var projectsJSON string
	var activeProject sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&conn.UserID, &conn.Token, &conn.WorkspaceGID, &conn.WorkspaceName,
		&projectsJSON, &activeProject, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan asana connection: %w", err)
	}

	if err := json.Unmarshal([]byte(projectsJSON), &conn.ProjectGIDs); err != nil {
		return nil, fmt.Errorf("decode project gids: %w", err)
	}
	conn.ActiveProject = activeProject.String
	conn.CreatedAt = time.Unix(createdAt, 0)
	conn.UpdatedAt = time.Unix(updatedAt, 0)

	return &conn, nil
}

// UpsertAsanaConnection creates or replaces a user's Asana credential record.
func (s *SQLiteStore) UpsertAsanaConnection(ctx context.Context, conn *domain.AsanaConnection) error {
	projectsJSON, err := json.Marshal(conn.ProjectGIDs)
	if err != nil {
		return fmt.Errorf("encode project gids: %w", err)
	}

	query := `
	INSERT INTO asana_connections (
		user_id, token, workspace_gid, workspace_name, project_gids,
		active_project, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		token = excluded.token,
		workspace_gid = excluded.workspace_gid,
		workspace_name = excluded.workspace_name,
		project_gids = excluded.project_gids,
		active_project = excluded.active_project,
		updated_at = excluded.updated_at`

	var activeProject interface{}
	if conn.ActiveProject != "" {
		activeProject = conn.ActiveProject
	}

	_, err = s.db.ExecContext(ctx, query,
		conn.UserID, conn.Token, conn.WorkspaceGID, conn.WorkspaceName,
		string(projectsJSON), activeProject,
		conn.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert asana connection: %w", err)
	}
	return nil
}

// UpdateAsanaActiveProject updates only the active project selection.
func (s *SQLiteStore) UpdateAsanaActiveProject(ctx context.Context, userID, projectName string) error {
	query := `UPDATE asana_connections SET active_project = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, projectName, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update asana active project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("asana connection not found for user %s", userID)
	}
	return nil
}

// GetGitHubConnection retrieves a user's GitHub credential record.
func (s *SQLiteStore) GetGitHubConnection(ctx context.Context, userID string) (*domain.GitHubConnection, error) {
	query := `
		SELECT user_id, token, selected_repo, created_at, updated_at
		FROM github_connections WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var conn domain.GitHubConnection
	var selectedRepo sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&conn.UserID, &conn.Token, &selectedRepo, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan github connection: %w", err)
	}

	conn.SelectedRepo = selectedRepo.String
	conn.CreatedAt = time.Unix(createdAt, 0)
	conn.UpdatedAt = time.Unix(updatedAt, 0)

	return &conn, nil
}

// UpsertGitHubConnection creates or replaces a user's GitHub credential record.
func (s *SQLiteStore) UpsertGitHubConnection(ctx context.Context, conn *domain.GitHubConnection) error {
	query := `
	INSERT INTO github_connections (user_id, token, selected_repo, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		token = excluded.token,
		selected_repo = excluded.selected_repo,
		updated_at = excluded.updated_at`

	var selectedRepo interface{}
	if conn.SelectedRepo != "" {
		selectedRepo = conn.SelectedRepo
	}

	_, err := s.db.ExecContext(ctx, query,
		conn.UserID, conn.Token, selectedRepo,
		conn.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert github connection: %w", err)
	}
	return nil
}

// UpdateGitHubSelectedRepo updates only the repository selection.
func (s *SQLiteStore) UpdateGitHubSelectedRepo(ctx context.Context, userID, repo string) error {
	query := `UPDATE github_connections SET selected_repo = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, repo, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update github selected repo: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("github connection not found for user %s", userID)
	}
	return nil
}

// GetThreadState retrieves routing state for a thread key.
func (s *SQLiteStore) GetThreadState(ctx context.Context, threadKey string) (*domain.ThreadState, error) {
	query := `
		SELECT thread_key, active_persona, recent_json, created_at, updated_at
		FROM thread_states WHERE thread_key = ?`

	row := s.db.QueryRowContext(ctx, query, threadKey)

	var state domain.ThreadState
	var activePersona sql.NullString
	var recentJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&state.ThreadKey, &activePersona, &recentJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread state: %w", err)
	}

	if err := json.Unmarshal([]byte(recentJSON), &state.Recent); err != nil {
		return nil, fmt.Errorf("decode recent exchanges: %w", err)
	}
	state.ActivePersona = activePersona.String
	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// UpsertThreadState creates or updates routing state for a thread.
func (s *SQLiteStore) UpsertThreadState(ctx context.Context, state *domain.ThreadState) error {
	recentJSON, err := json.Marshal(state.Recent)
	if err != nil {
		return fmt.Errorf("encode recent exchanges: %w", err)
	}

	query := `
	INSERT INTO thread_states (thread_key, active_persona, recent_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(thread_key) DO UPDATE SET
		active_persona = excluded.active_persona,
		recent_json = excluded.recent_json,
		updated_at = excluded.updated_at`

	var activePersona interface{}
	if state.ActivePersona != "" {
		activePersona = state.ActivePersona
	}

	_, err = s.db.ExecContext(ctx, query,
		state.ThreadKey, activePersona, string(recentJSON),
		state.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert thread state: %w", err)
	}
	return nil
}

// AppendMessage records one completed question/answer exchange.
func (s *SQLiteStore) AppendMessage(ctx context.Context, rec *domain.MessageRecord) error {
	query := `
	INSERT INTO message_history (user_id, persona, question, answer, created_at)
	VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rec.UserID, rec.Persona, rec.Question, rec.Answer, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// RecentMessages returns the most recent exchanges for a user, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, userID string, limit int) ([]*domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, user_id, persona, question, answer, created_at
		FROM message_history WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query message history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message history rows", "error", closeErr)
		}
	}()

	var records []*domain.MessageRecord
	for rows.Next() {
		var rec domain.MessageRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Persona, &rec.Question, &rec.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message history: %w", err)
	}

	return records, nil
}
