// Package store is the durable pending-action log. Records enter on enqueue
// and leave only after the remote side acknowledged delivery.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftq/internal/models"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned by Add when the underlying storage could not be
// opened. Callers treat it as a soft failure: the action is lost, not queued.
var ErrUnavailable = errors.New("durable store unavailable")

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db          *sql.DB
	logger      *zerolog.Logger
	unavailable bool
}

// Open creates the database file if needed and applies schema migrations.
// Existing records survive re-open; the v1 migration only creates the
// pending_actions table when it is missing.
func Open(path string, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info().Str("path", path).Msg("durable store opened")
	return &Store{db: db, logger: logger}, nil
}

// Disabled returns a store in degraded mode: Add fails softly, Count reads 0,
// removals are no-ops. Used when Open failed so callers never crash on
// storage operations.
func Disabled(logger *zerolog.Logger) *Store {
	return &Store{logger: logger, unavailable: true}
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Unavailable reports whether the store runs in degraded mode.
func (s *Store) Unavailable() bool {
	return s.unavailable
}

// Add persists a new pending action and returns its assigned id. Ids are
// monotonic and never reused (AUTOINCREMENT).
func (s *Store) Add(ctx context.Context, payload json.RawMessage) (int64, error) {
	if s.unavailable {
		return 0, ErrUnavailable
	}

	query := `INSERT INTO pending_actions (payload, attempts, enqueued_at) VALUES (?, 0, ?)`
	result, err := s.db.ExecContext(ctx, query, string(payload), time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to add pending action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Count returns the number of pending records. A degraded store resolves to
// 0 rather than an error so depth counters degrade gracefully.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.unavailable {
		return 0, nil
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return count, nil
}

// Pending returns up to limit records in enqueue order.
func (s *Store) Pending(ctx context.Context, limit int) ([]models.PendingAction, error) {
	if s.unavailable {
		return nil, nil
	}

	query := `SELECT id, payload, attempts, last_error, enqueued_at
              FROM pending_actions ORDER BY id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending actions: %w", err)
	}
	defer rows.Close()

	var actions []models.PendingAction
	for rows.Next() {
		var a models.PendingAction
		var payload string
		if err := rows.Scan(&a.ID, &payload, &a.Attempts, &a.LastError, &a.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		a.Payload = json.RawMessage(payload)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// RemoveDelivered deletes acknowledged records. Idempotent: unknown ids are
// no-ops, which guards against double-delivery races.
func (s *Store) RemoveDelivered(ctx context.Context, ids []int64) error {
	if s.unavailable || len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM pending_actions WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := s.db.ExecContext(ctx, query, idArgs(ids)...); err != nil {
		return fmt.Errorf("failed to remove delivered actions: %w", err)
	}
	return nil
}

// MarkAttempt bumps the attempt counter and records the failure cause for
// records that stayed pending after a failed delivery.
func (s *Store) MarkAttempt(ctx context.Context, ids []int64, cause string) error {
	if s.unavailable || len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`UPDATE pending_actions SET attempts = attempts + 1, last_error = ? WHERE id IN (%s)`,
		placeholders(len(ids)),
	)
	args := append([]interface{}{cause}, idArgs(ids)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark delivery attempt: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
