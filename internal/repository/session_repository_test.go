package repository_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"story-engine/internal/engine"
	"story-engine/internal/models"
	"story-engine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func newSession(id string, lastActive time.Time) *engine.Session {
	return &engine.Session{
		ID:     id,
		NodeID: engine.StartNodeID,
		Variables: map[string]engine.Value{
			"gold":  engine.IntValue(3),
			"torch": engine.BoolValue(false),
			"hero":  engine.StringValue(engine.FormatString{{Text: "Sir "}, {Text: "name", Ref: true}}),
		},
		CreatedAt:    baseTime,
		LastActiveAt: lastActive,
	}
}

// testSessionRepository проверяет контракт SessionRepository на любой реализации.
func testSessionRepository(t *testing.T, repo repository.SessionRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newSession("create-get", baseTime)
		require.NoError(t, repo.Create(ctx, s))

		got, err := repo.Get(ctx, "create-get")
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.NodeID, got.NodeID)
		assert.Equal(t, s.Variables, got.Variables)
		assert.True(t, s.LastActiveAt.Equal(got.LastActiveAt))
	})

	t.Run("create twice", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSession("twice", baseTime)))
		err := repo.Create(ctx, newSession("twice", baseTime))
		assert.ErrorIs(t, err, models.ErrSessionAlreadyExists)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := repo.Get(ctx, "unknown")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSession("update", baseTime)))

		updated, err := repo.Update(ctx, "update", func(s *engine.Session) error {
			s.NodeID = "CAVE"
			s.Variables["gold"] = engine.IntValue(10)
			s.Touch(baseTime.Add(time.Hour))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "CAVE", updated.NodeID)

		got, err := repo.Get(ctx, "update")
		require.NoError(t, err)
		assert.Equal(t, "CAVE", got.NodeID)
		assert.Equal(t, engine.IntValue(10), got.Variables["gold"])
		assert.True(t, baseTime.Add(time.Hour).Equal(got.LastActiveAt))
	})

	t.Run("update error keeps session", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSession("update-error", baseTime)))
		boom := errors.New("boom")

		_, err := repo.Update(ctx, "update-error", func(s *engine.Session) error {
			s.NodeID = "LOST"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.Get(ctx, "update-error")
		require.NoError(t, err)
		assert.Equal(t, engine.StartNodeID, got.NodeID)
	})

	t.Run("update unknown", func(t *testing.T) {
		_, err := repo.Update(ctx, "unknown", func(*engine.Session) error { return nil })
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSession("counter", baseTime)))

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, "counter", func(s *engine.Session) error {
					s.Variables["gold"] = engine.IntValue(s.Variables["gold"].Int + 1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int32(3+workers), got.Variables["gold"].Int)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSession("delete", baseTime)))
		require.NoError(t, repo.Delete(ctx, "delete"))

		_, err := repo.Get(ctx, "delete")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
		assert.NoError(t, repo.Delete(ctx, "delete"), "deleting twice is not an error")
	})

	t.Run("list expired", func(t *testing.T) {
		old := baseTime.Add(-72 * time.Hour)
		require.NoError(t, repo.Create(ctx, newSession("expired-a", old)))
		require.NoError(t, repo.Create(ctx, newSession("expired-b", old.Add(time.Hour))))
		require.NoError(t, repo.Create(ctx, newSession("active", baseTime.Add(48*time.Hour))))

		ids, err := repo.ListExpired(ctx, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"expired-a", "expired-b"}, ids)
	})
}

func TestMemorySessionRepository(t *testing.T) {
	testSessionRepository(t, repository.NewMemorySessionRepository(zap.NewNop()))
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemorySessionRepository(zap.NewNop())
	require.NoError(t, repo.Create(ctx, newSession("copy", baseTime)))

	got, err := repo.Get(ctx, "copy")
	require.NoError(t, err)
	got.NodeID = "ELSEWHERE"
	got.Variables["gold"] = engine.IntValue(999)

	again, err := repo.Get(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, engine.StartNodeID, again.NodeID)
	assert.Equal(t, engine.IntValue(3), again.Variables["gold"])
}
