// Package feedback persists human verdicts on past suggestions and derives
// learning signals from them
package feedback

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBPool abstracts pgxpool.Pool so tests can substitute a mock
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the append-oriented feedback log. Entries are only ever inserted;
// the single permitted mutation is resolving a pending verdict.
type Store struct {
	pool   DBPool
	logger *zap.Logger
}

// NewStore wraps an existing pool
func NewStore(pool DBPool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.Named("feedback")}
}

// Connect creates a pool, verifies connectivity, and returns a Store
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(pool, logger), nil
}

// Close releases the underlying pool
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the embedded schema migrations
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

const entryColumns = `id, run_id, subject, category, verdict, comment, created_at`

func scanEntry(row pgx.Row) (*models.FeedbackEntry, error) {
	var e models.FeedbackEntry
	err := row.Scan(&e.ID, &e.RunID, &e.Subject, &e.Category, &e.Verdict, &e.Comment, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Record appends one entry. A zero ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, entry models.FeedbackEntry) (*models.FeedbackEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Verdict == "" {
		entry.Verdict = models.VerdictPending
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO feedback_entries (id, run_id, subject, category, verdict, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+entryColumns,
		entry.ID, entry.RunID, entry.Subject, entry.Category, entry.Verdict, entry.Comment, entry.CreatedAt,
	)
	return scanEntry(row)
}

// Resolve sets the verdict on a pending entry
func (s *Store) Resolve(ctx context.Context, id uuid.UUID, verdict models.Verdict, comment string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feedback_entries SET verdict = $2, comment = $3 WHERE id = $1 AND verdict = $4`,
		id, verdict, comment, models.VerdictPending,
	)
	if err != nil {
		return fmt.Errorf("resolve feedback %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feedback %s not found or already resolved", id)
	}
	return nil
}

// ListAll returns every entry, oldest first
func (s *Store) ListAll(ctx context.Context) ([]models.FeedbackEntry, error) {
	return s.list(ctx, `SELECT `+entryColumns+` FROM feedback_entries ORDER BY created_at, id`)
}

// ListPending returns entries still awaiting a verdict, oldest first
func (s *Store) ListPending(ctx context.Context) ([]models.FeedbackEntry, error) {
	return s.list(ctx,
		`SELECT `+entryColumns+` FROM feedback_entries WHERE verdict = $1 ORDER BY created_at, id`,
		models.VerdictPending)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]models.FeedbackEntry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var entries []models.FeedbackEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
