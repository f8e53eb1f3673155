package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/config"
	"github.com/your-org/facepool/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresStore connects to Postgres. dim is the embedding dimensionality
// used when creating the faces table.
func NewPostgresStore(cfg config.DatabaseConfig, dim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: dim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EmbeddingDim returns the vector dimensionality the store was created with.
func (s *PostgresStore) EmbeddingDim() int {
	return s.dim
}

// TryLockEvent takes a session advisory lock on the event id, excluding
// clustering runs in other processes connected to the same database. The
// lock pins one pooled connection until release is called. ok false means
// another holder has the event.
func (s *PostgresStore) TryLockEvent(ctx context.Context, eventID int64) (func(), bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, eventID).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("advisory lock event %d: %w", eventID, err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		// Unlock on a fresh context so a canceled run still releases.
		_, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, eventID)
		if err != nil {
			slog.Warn("advisory unlock", "event_id", eventID, "error", err)
		}
		conn.Release()
	}
	return release, true, nil
}

// Migrate creates the schema if it does not exist. Statements are ordered;
// each is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS events (
			id          BIGSERIAL PRIMARY KEY,
			code        VARCHAR(32) UNIQUE NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			start_at    TIMESTAMPTZ,
			end_at      TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			id             BIGSERIAL PRIMARY KEY,
			event_id       BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			uuid           VARCHAR(32) UNIQUE NOT NULL,
			storage_url    TEXT NOT NULL,
			file_extension VARCHAR(10) NOT NULL,
			face_count     INTEGER NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_modified  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_event ON images(event_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS faces (
			id         BIGSERIAL PRIMARY KEY,
			event_id   BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			image_id   BIGINT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			bbox       JSONB NOT NULL,
			embedding  vector(%d) NOT NULL,
			cluster_id INTEGER NOT NULL DEFAULT -2,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT faces_cluster_id_valid CHECK (cluster_id >= -2)
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_faces_event ON faces(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_image ON faces(image_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_event_cluster ON faces(event_id, cluster_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// --- Events ---

// ResolveEvent maps an external event code to its record. This is the event
// directory collaborator; unknown codes are ErrNotFound.
func (s *PostgresStore) ResolveEvent(ctx context.Context, code string) (*models.Event, error) {
	e := &models.Event{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, description, start_at, end_at, created_at
		 FROM events WHERE code = $1`, code,
	).Scan(&e.ID, &e.Code, &e.Name, &e.Description, &e.StartAt, &e.EndAt, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("event %q: %w", code, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *models.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (code, name, description, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		e.Code, e.Name, e.Description, e.StartAt, e.EndAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %q: %w", code, apperr.ErrNotFound)
	}
	return nil
}

// ListEventCodes returns codes of events eligible for a clustering sweep.
// With onlyRunning set, only events whose window contains now are returned.
func (s *PostgresStore) ListEventCodes(ctx context.Context, onlyRunning bool, now time.Time) ([]string, error) {
	query := `SELECT code FROM events`
	args := []interface{}{}
	if onlyRunning {
		query += ` WHERE start_at <= $1 AND end_at >= $1`
		args = append(args, now)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan event code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
