package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-engine/internal/engine"
	"story-engine/internal/models"
	"story-engine/pkg/database"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// MigrationsFS - схема для Postgres-хранилища сессий (golang-migrate, iofs).
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsPath - каталог миграций внутри MigrationsFS.
const MigrationsPath = "migrations"

// Compile-time check to ensure implementation satisfies the interface.
var _ SessionRepository = (*pgSessionRepository)(nil)

type pgSessionRepository struct {
	db     *database.Database
	logger *zap.Logger
}

// NewPgSessionRepository создает хранилище сессий в PostgreSQL.
func NewPgSessionRepository(db *database.Database, logger *zap.Logger) SessionRepository {
	return &pgSessionRepository{
		db:     db,
		logger: logger.Named("PgSessionRepo"),
	}
}

const uniqueViolationCode = "23505"

// sessionRow - строка таблицы story_sessions.
type sessionRow struct {
	ID           string    `db:"id"`
	NodeID       string    `db:"current_node_id"`
	Variables    []byte    `db:"variables"`
	CreatedAt    time.Time `db:"created_at"`
	LastActiveAt time.Time `db:"last_active_at"`
}

func (row *sessionRow) toSession() (*engine.Session, error) {
	s := &engine.Session{
		ID:           row.ID,
		NodeID:       row.NodeID,
		CreatedAt:    row.CreatedAt,
		LastActiveAt: row.LastActiveAt,
	}
	if err := json.Unmarshal(row.Variables, &s.Variables); err != nil {
		return nil, fmt.Errorf("failed to decode variables of session %s: %w", row.ID, err)
	}
	return s, nil
}

const insertSessionQuery = `
INSERT INTO story_sessions (id, current_node_id, variables, created_at, last_active_at)
VALUES ($1, $2, $3, $4, $5)`

const getSessionQuery = `
SELECT id, current_node_id, variables, created_at, last_active_at
FROM story_sessions
WHERE id = $1`

const getSessionForUpdateQuery = getSessionQuery + `
FOR UPDATE`

const updateSessionQuery = `
UPDATE story_sessions
SET current_node_id = $2, variables = $3, last_active_at = $4
WHERE id = $1`

const deleteSessionQuery = `DELETE FROM story_sessions WHERE id = $1`

const listExpiredSessionsQuery = `
SELECT id FROM story_sessions
WHERE last_active_at <= $1
ORDER BY last_active_at`

func (r *pgSessionRepository) Create(ctx context.Context, session *engine.Session) error {
	vars, err := json.Marshal(session.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables of session %s: %w", session.ID, err)
	}
	_, err = r.db.Pool.Exec(ctx, insertSessionQuery,
		session.ID, session.NodeID, string(vars), session.CreatedAt, session.LastActiveAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: %s", models.ErrSessionAlreadyExists, session.ID)
		}
		r.logger.Error("Failed to insert session", zap.String("sessionID", session.ID), zap.Error(err))
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	r.logger.Debug("Session stored", zap.String("sessionID", session.ID))
	return nil
}

func (r *pgSessionRepository) Get(ctx context.Context, id string) (*engine.Session, error) {
	var row sessionRow
	if err := pgxscan.Get(ctx, r.db.Pool, &row, getSessionQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to get session", zap.String("sessionID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return row.toSession()
}

// Update блокирует строку (SELECT ... FOR UPDATE) до конца транзакции.
func (r *pgSessionRepository) Update(ctx context.Context, id string, fn func(*engine.Session) error) (*engine.Session, error) {
	var result *engine.Session
	err := r.db.ExecuteInTransaction(ctx, func(tx pgx.Tx) error {
		var row sessionRow
		if err := pgxscan.Get(ctx, tx, &row, getSessionForUpdateQuery, id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session %s: %w", id, err)
		}
		s, err := row.toSession()
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		vars, err := json.Marshal(s.Variables)
		if err != nil {
			return fmt.Errorf("failed to marshal variables of session %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, updateSessionQuery, id, s.NodeID, string(vars), s.LastActiveAt); err != nil {
			return fmt.Errorf("failed to update session %s: %w", id, err)
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, deleteSessionQuery, id); err != nil {
		r.logger.Error("Failed to delete session", zap.String("sessionID", id), zap.Error(err))
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (r *pgSessionRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	if err := pgxscan.Select(ctx, r.db.Pool, &ids, listExpiredSessionsQuery, cutoff); err != nil {
		r.logger.Error("Failed to list expired sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return ids, nil
}
