package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"story-engine/internal/engine"
	"story-engine/internal/messaging"
	"story-engine/internal/models"
	"story-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GlobalSessionID - сессия, которая обслуживает маршруты /current и /choose без id.
const GlobalSessionID = "global"

// SessionService - игровые сессии поверх загруженного сценария.
type SessionService interface {
	CreateSession(ctx context.Context) (string, error)
	GetCurrent(ctx context.Context, sessionID string) (*models.CurrentNodeView, error)
	Choose(ctx context.Context, sessionID, option string) (models.ChoiceResult, error)
	ClearExpiredSessions(ctx context.Context) (int, error)

	GetGlobalCurrent(ctx context.Context) (*models.CurrentNodeView, error)
	ChooseGlobal(ctx context.Context, option string) (models.ChoiceResult, error)
}

// Config - параметры сервиса сессий.
type Config struct {
	SessionTimeout    time.Duration
	GlobalGameEnabled bool
	// Clock - источник времени; по умолчанию time.Now.
	Clock func() time.Time
}

type sessionServiceImpl struct {
	engine    *engine.Engine
	repo      repository.SessionRepository
	publisher messaging.SessionEventPublisher
	metrics   *Metrics
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewSessionService создает сервис сессий.
func NewSessionService(
	eng *engine.Engine,
	repo repository.SessionRepository,
	publisher messaging.SessionEventPublisher,
	metrics *Metrics,
	cfg Config,
	logger *zap.Logger,
) SessionService {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &sessionServiceImpl{
		engine:    eng,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		now:       now,
		logger:    logger.Named("SessionService"),
	}
}

func (s *sessionServiceImpl) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	session := s.engine.NewSession(id, s.now())
	if err := s.repo.Create(ctx, session); err != nil {
		s.logger.Error("Failed to create session", zap.String("sessionID", id), zap.Error(err))
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.SessionsCreated.Inc()
	s.logger.Info("Session created", zap.String("sessionID", id))
	s.publish(ctx, models.SessionEvent{Type: models.EventSessionCreated, SessionID: id, NodeID: session.NodeID})
	return id, nil
}

func (s *sessionServiceImpl) GetCurrent(ctx context.Context, sessionID string) (*models.CurrentNodeView, error) {
	var view *models.CurrentNodeView
	_, err := s.repo.Update(ctx, sessionID, func(session *engine.Session) error {
		v, err := s.engine.CurrentView(session)
		if err != nil {
			return err
		}
		view = v
		session.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, s.wrapErr("get current node", sessionID, err)
	}
	return view, nil
}

func (s *sessionServiceImpl) Choose(ctx context.Context, sessionID, option string) (models.ChoiceResult, error) {
	var result models.ChoiceResult
	updated, err := s.repo.Update(ctx, sessionID, func(session *engine.Session) error {
		r, err := s.engine.Choose(session, option)
		if err != nil {
			return err
		}
		result = r
		if r.Success {
			session.Touch(s.now())
		}
		return nil
	})
	if err != nil {
		return models.ChoiceResult{}, s.wrapErr("choose option", sessionID, err)
	}

	if !result.Success {
		s.metrics.Choices.WithLabelValues(choiceResultInvalid).Inc()
		s.logger.Info("Invalid option chosen",
			zap.String("sessionID", sessionID),
			zap.String("currentNodeID", result.CurrentNodeID),
			zap.String("option", option))
		return result, nil
	}

	s.metrics.Choices.WithLabelValues(choiceResultSuccess).Inc()
	s.logger.Debug("Choice applied", zap.String("sessionID", sessionID), zap.String("nodeID", updated.NodeID))
	s.publish(ctx, models.SessionEvent{Type: models.EventChoiceMade, SessionID: sessionID, NodeID: updated.NodeID, Option: option})

	gameOver, err := s.engine.IsGameOver(updated)
	if err != nil {
		s.logger.Error("Failed to check game over", zap.String("sessionID", sessionID), zap.Error(err))
		return result, nil
	}
	if gameOver {
		s.logger.Info("Game over", zap.String("sessionID", sessionID), zap.String("nodeID", updated.NodeID))
		s.publish(ctx, models.SessionEvent{Type: models.EventGameOver, SessionID: sessionID, NodeID: updated.NodeID})
	}
	return result, nil
}

// ClearExpiredSessions удаляет сессии без активности дольше таймаута.
// Глобальная сессия не истекает.
func (s *sessionServiceImpl) ClearExpiredSessions(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.repo.ListExpired(ctx, now.Add(-s.cfg.SessionTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if id == GlobalSessionID {
			continue
		}
		// Сессию могли использовать после выборки
		session, err := s.repo.Get(ctx, id)
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
		case err != nil:
			s.logger.Warn("Failed to re-check expired session", zap.String("sessionID", id), zap.Error(err))
			continue
		case !session.IsExpired(s.cfg.SessionTimeout, now):
			continue
		}

		if err := s.repo.Delete(ctx, id); err != nil {
			return removed, fmt.Errorf("failed to delete expired session %s: %w", id, err)
		}
		removed++
		s.metrics.SessionsExpired.Inc()
		s.publish(ctx, models.SessionEvent{Type: models.EventSessionExpired, SessionID: id})
	}

	if removed > 0 {
		s.logger.Info("Expired sessions cleared", zap.Int("count", removed))
	}
	return removed, nil
}

func (s *sessionServiceImpl) GetGlobalCurrent(ctx context.Context) (*models.CurrentNodeView, error) {
	if err := s.ensureGlobalSession(ctx); err != nil {
		return nil, err
	}
	return s.GetCurrent(ctx, GlobalSessionID)
}

func (s *sessionServiceImpl) ChooseGlobal(ctx context.Context, option string) (models.ChoiceResult, error) {
	if err := s.ensureGlobalSession(ctx); err != nil {
		return models.ChoiceResult{}, err
	}
	return s.Choose(ctx, GlobalSessionID, option)
}

// ensureGlobalSession создает глобальную сессию при первом обращении.
func (s *sessionServiceImpl) ensureGlobalSession(ctx context.Context) error {
	if !s.cfg.GlobalGameEnabled {
		return models.ErrGlobalDisabled
	}
	_, err := s.repo.Get(ctx, GlobalSessionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrSessionNotFound) {
		return fmt.Errorf("failed to load global session: %w", err)
	}

	err = s.repo.Create(ctx, s.engine.NewSession(GlobalSessionID, s.now()))
	if err != nil && !errors.Is(err, models.ErrSessionAlreadyExists) {
		return fmt.Errorf("failed to create global session: %w", err)
	}
	if err == nil {
		s.logger.Info("Global session created")
	}
	return nil
}

// publish не прерывает запрос игрока: ошибка только логируется и считается.
func (s *sessionServiceImpl) publish(ctx context.Context, event models.SessionEvent) {
	event.Timestamp = s.now()
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.metrics.EventPublishFailures.Inc()
		s.logger.Warn("Failed to publish session event",
			zap.String("type", string(event.Type)),
			zap.String("sessionID", event.SessionID),
			zap.Error(err))
	}
}

func (s *sessionServiceImpl) wrapErr(op, sessionID string, err error) error {
	if errors.Is(err, models.ErrSessionNotFound) {
		s.logger.Debug("Session not found", zap.String("sessionID", sessionID), zap.String("op", op))
	} else {
		s.logger.Error("Session operation failed", zap.String("sessionID", sessionID), zap.String("op", op), zap.Error(err))
	}
	return fmt.Errorf("failed to %s for session %s: %w", op, sessionID, err)
}
