package repository

import (
	"context"
	"time"

	"story-engine/internal/engine"
)

// SessionRepository хранит игровые сессии.
type SessionRepository interface {
	// Create сохраняет новую сессию или возвращает models.ErrSessionAlreadyExists.
	Create(ctx context.Context, session *engine.Session) error
	// Get возвращает сессию или models.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*engine.Session, error)
	// Update атомарно читает сессию, применяет fn и сохраняет результат.
	// Если fn вернула ошибку, сессия не меняется.
	Update(ctx context.Context, id string, fn func(*engine.Session) error) (*engine.Session, error)
	// Delete удаляет сессию. Удаление несуществующей сессии не ошибка.
	Delete(ctx context.Context, id string) error
	// ListExpired возвращает id сессий, неактивных с момента cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
}
