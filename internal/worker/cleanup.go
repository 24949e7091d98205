package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredSessionCleaner - то, что умеет удалять истекшие сессии.
type ExpiredSessionCleaner interface {
	ClearExpiredSessions(ctx context.Context) (int, error)
}

// SessionSweeper периодически удаляет истекшие сессии.
type SessionSweeper struct {
	cleaner  ExpiredSessionCleaner
	interval time.Duration
	logger   *zap.Logger
}

func NewSessionSweeper(cleaner ExpiredSessionCleaner, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	return &SessionSweeper{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger.Named("SessionSweeper"),
	}
}

// Run блокируется до отмены ctx. При interval <= 0 сразу возвращается.
func (w *SessionSweeper) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("Session sweeper disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("Session sweeper started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			removed, err := w.cleaner.ClearExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("Failed to clear expired sessions", zap.Error(err))
				continue
			}
			w.logger.Debug("Sweep finished", zap.Int("removed", removed))
		}
	}
}
