package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"story-engine/internal/engine"
	"story-engine/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ SessionRepository = (*redisSessionRepository)(nil)

const (
	redisSessionKeyPrefix = "session:"
	// redisActivityKey - sorted set: member = id сессии, score = время последней активности (unix).
	redisActivityKey = "sessions:activity"
	// maxUpdateRetries - сколько раз повторять оптимистичную транзакцию при конфликте.
	maxUpdateRetries = 10
)

type redisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSessionRepository создает хранилище сессий в Redis.
// ttl - время жизни ключа сессии; продлевается при каждом изменении.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) SessionRepository {
	return &redisSessionRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func sessionKey(id string) string {
	return redisSessionKeyPrefix + id
}

func (r *redisSessionRepository) Create(ctx context.Context, session *engine.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}

	var setCmd *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setCmd = pipe.SetNX(ctx, sessionKey(session.ID), data, r.ttl)
		pipe.ZAdd(ctx, redisActivityKey, redis.Z{Score: float64(session.LastActiveAt.Unix()), Member: session.ID})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to store session in redis", zap.String("sessionID", session.ID), zap.Error(err))
		return fmt.Errorf("failed to store session %s in redis: %w", session.ID, err)
	}
	if !setCmd.Val() {
		return fmt.Errorf("%w: %s", models.ErrSessionAlreadyExists, session.ID)
	}

	r.logger.Debug("Session stored", zap.String("sessionID", session.ID), zap.Duration("ttl", r.ttl))
	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, id string) (*engine.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to get session from redis", zap.String("sessionID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get session %s from redis: %w", id, err)
	}
	return decodeSession(id, data)
}

func decodeSession(id string, data []byte) (*engine.Session, error) {
	var s engine.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// Update использует WATCH/MULTI: если ключ изменился между чтением и записью,
// транзакция повторяется.
func (r *redisSessionRepository) Update(ctx context.Context, id string, fn func(*engine.Session) error) (*engine.Session, error) {
	key := sessionKey(id)
	var result *engine.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return models.ErrSessionNotFound
			}
			return err
		}
		s, err := decodeSession(id, data)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		encoded, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			pipe.ZAdd(ctx, redisActivityKey, redis.Z{Score: float64(s.LastActiveAt.Unix()), Member: id})
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Optimistic lock failed, retrying", zap.String("sessionID", id), zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}

	r.logger.Warn("Session update retries exhausted", zap.String("sessionID", id))
	return nil, models.ErrSessionConflict
}

func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, redisActivityKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete session from redis", zap.String("sessionID", id), zap.Error(err))
		return fmt.Errorf("failed to delete session %s from redis: %w", id, err)
	}
	return nil
}

// ListExpired читает индекс активности. Ключи, истекшие по TTL, тоже попадают
// в выборку, и Delete подчищает их из индекса.
func (r *redisSessionRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisActivityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		r.logger.Error("Failed to list expired sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return ids, nil
}
