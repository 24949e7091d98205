package mocks

import (
	"context"

	"story-engine/internal/models"

	"github.com/stretchr/testify/mock"
)

// SessionEventPublisher - мок messaging.SessionEventPublisher.
type SessionEventPublisher struct {
	mock.Mock
}

func (m *SessionEventPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
