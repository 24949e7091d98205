package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"story-engine/internal/engine"
	"story-engine/internal/models"

	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ SessionRepository = (*memorySessionRepository)(nil)

type memoryEntry struct {
	mu      sync.Mutex
	session *engine.Session
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	logger   *zap.Logger
}

// NewMemorySessionRepository создает хранилище сессий в памяти процесса.
// Сессии теряются при перезапуске.
func NewMemorySessionRepository(logger *zap.Logger) SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]*memoryEntry),
		logger:   logger.Named("MemorySessionRepo"),
	}
}

// clone отдает наружу копию, чтобы вызывающий код не менял сессию в обход Update.
func clone(s *engine.Session) (*engine.Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to copy session %s: %w", s.ID, err)
	}
	var c engine.Session
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to copy session %s: %w", s.ID, err)
	}
	return &c, nil
}

func (r *memorySessionRepository) Create(ctx context.Context, session *engine.Session) error {
	stored, err := clone(session)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("%w: %s", models.ErrSessionAlreadyExists, session.ID)
	}
	r.sessions[session.ID] = &memoryEntry{session: stored}
	r.logger.Debug("Session stored", zap.String("sessionID", session.ID))
	return nil
}

func (r *memorySessionRepository) entry(id string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

func (r *memorySessionRepository) Get(ctx context.Context, id string) (*engine.Session, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, models.ErrSessionNotFound
	}
	return clone(e.session)
}

func (r *memorySessionRepository) Update(ctx context.Context, id string, fn func(*engine.Session) error) (*engine.Session, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, models.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Сессию могли удалить, пока мы ждали блокировку.
	if e.session == nil {
		return nil, models.ErrSessionNotFound
	}

	working, err := clone(e.session)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	stored, err := clone(working)
	if err != nil {
		return nil, err
	}
	e.session = stored
	return working, nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
	}
	return nil
}

func (r *memorySessionRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.RLock()
	entries := make(map[string]*memoryEntry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	var expired []string
	for id, e := range entries {
		e.mu.Lock()
		if e.session != nil && !e.session.LastActiveAt.After(cutoff) {
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	return expired, nil
}
