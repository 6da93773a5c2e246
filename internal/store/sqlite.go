package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Registry using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	writeRetries   int
	writeBaseDelay time.Duration
}

// NewSQLite creates a new SQLite-backed registry.
func NewSQLite(dbPath string, retry config.RetryConfig) (Registry, error) {
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

	store := &SQLiteStore{db: db, writeRetries: retry.DatabaseMaxRetries, writeBaseDelay: retry.DatabaseRetryBaseDelay}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS containers (
		container_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		container_name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_containers_user ON containers(user_id) WHERE status != 'removed';
	CREATE INDEX IF NOT EXISTS idx_containers_last_active ON containers(last_active) WHERE status = 'running';
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// exec runs a write statement, retrying with exponential backoff when SQLite
// reports a concurrency conflict. The busy_timeout pragma handles most
// contention; this covers the window where it does not.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...interface{}) error {
	var err error
	for i := 0; i < s.writeRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < s.writeRetries-1 {
			delay := s.writeBaseDelay * time.Duration(1<<i)
			slog.Debug("database locked, retrying write", "attempt", i+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert creates or replaces the record for a container.
func (s *SQLiteStore) Upsert(ctx context.Context, info *domain.ContainerInfo) error {
	query := `
	INSERT INTO containers (container_id, user_id, container_name, status, tier, created_at, last_active)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(container_id) DO UPDATE SET
		user_id = excluded.user_id,
		container_name = excluded.container_name,
		status = excluded.status,
		tier = excluded.tier,
		last_active = excluded.last_active`

	if err := s.exec(ctx, query,
		info.ContainerID, info.UserID, info.ContainerName,
		string(info.Status), info.Tier,
		info.CreatedAt.Unix(), info.LastActive.Unix(),
	); err != nil {
		return fmt.Errorf("upsert container: %w", err)
	}
	return nil
}

// MarkStatus updates the status of a container record.
func (s *SQLiteStore) MarkStatus(ctx context.Context, containerID string, status domain.ContainerStatus) error {
	query := `UPDATE containers SET status = ? WHERE container_id = ?`
	if err := s.exec(ctx, query, string(status), containerID); err != nil {
		return fmt.Errorf("mark container status: %w", err)
	}
	return nil
}

// TouchLastActive updates the last_active timestamp for a container.
func (s *SQLiteStore) TouchLastActive(ctx context.Context, containerID string, at time.Time) error {
	query := `UPDATE containers SET last_active = ? WHERE container_id = ?`
	if err := s.exec(ctx, query, at.Unix(), containerID); err != nil {
		return fmt.Errorf("touch last_active: %w", err)
	}
	return nil
}

// Delete removes a container record.
func (s *SQLiteStore) Delete(ctx context.Context, containerID string) error {
	query := `DELETE FROM containers WHERE container_id = ?`
	if err := s.exec(ctx, query, containerID); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return nil
}

// GetByUser retrieves the non-removed record for a user, or nil.
func (s *SQLiteStore) GetByUser(ctx context.Context, userID string) (*domain.ContainerInfo, error) {
	query := `
		SELECT container_id, user_id, container_name, status, tier, created_at, last_active
		FROM containers WHERE user_id = ? AND status != 'removed'
		ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID)
	info, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan container row: %w", err)
	}
	return info, nil
}

// ListActive retrieves all non-removed container records.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]*domain.ContainerInfo, error) {
	query := `
		SELECT container_id, user_id, container_name, status, tier, created_at, last_active
		FROM containers WHERE status != 'removed'`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active containers: %w", err)
	}
	defer rows.Close()

	var infos []*domain.ContainerInfo
	for rows.Next() {
		info, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan container row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containers: %w", err)
	}
	return infos, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContainer(row rowScanner) (*domain.ContainerInfo, error) {
	var info domain.ContainerInfo
	var status string
	var createdAt, lastActive int64

	if err := row.Scan(
		&info.ContainerID, &info.UserID, &info.ContainerName,
		&status, &info.Tier, &createdAt, &lastActive,
	); err != nil {
		return nil, err
	}

	info.Status = domain.ContainerStatus(status)
	info.CreatedAt = time.Unix(createdAt, 0)
	info.LastActive = time.Unix(lastActive, 0)
	return &info, nil
}
