package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("returns expiry of now plus ttl", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		expiresAt, err := s.Add(ctx, "ABC123", 60*time.Second, nil)
		require.NoError(t, err)
		assert.Equal(t, now.Add(60*time.Second), expiresAt)
	})

	t.Run("overwrite replaces metadata and resets used state", func(t *testing.T) {
		s := NewMemoryStore()

		_, err := s.Add(ctx, "ABC123", time.Minute, json.RawMessage(`{"user":"alice"}`))
		require.NoError(t, err)

		// Consume, then re-add the same code with different metadata.
		_, err = s.CheckAndConsume(ctx, "ABC123", false)
		require.NoError(t, err)

		_, err = s.Add(ctx, "ABC123", time.Minute, json.RawMessage(`{"user":"bob"}`))
		require.NoError(t, err)

		rec, err := s.CheckAndConsume(ctx, "ABC123", false)
		require.NoError(t, err)
		assert.JSONEq(t, `{"user":"bob"}`, string(rec.Metadata))
	})
}

func TestMemoryStoreCheckAndConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("returns metadata supplied at add time", func(t *testing.T) {
		s := NewMemoryStore()

		_, err := s.Add(ctx, "ABC123", time.Minute, json.RawMessage(`{"user":"alice"}`))
		require.NoError(t, err)

		rec, err := s.CheckAndConsume(ctx, "ABC123", false)
		require.NoError(t, err)
		assert.Equal(t, "ABC123", rec.Code)
		assert.JSONEq(t, `{"user":"alice"}`, string(rec.Metadata))
		assert.True(t, rec.Used())
	})

	t.Run("unknown code", func(t *testing.T) {
		s := NewMemoryStore()

		rec, err := s.CheckAndConsume(ctx, "NEVER_ADDED", false)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, rec)
	})

	t.Run("second consume fails when reuse disallowed", func(t *testing.T) {
		s := NewMemoryStore()

		_, err := s.Add(ctx, "ABC123", time.Minute, nil)
		require.NoError(t, err)

		_, err = s.CheckAndConsume(ctx, "ABC123", false)
		require.NoError(t, err)

		_, err = s.CheckAndConsume(ctx, "ABC123", false)
		assert.ErrorIs(t, err, ErrAlreadyUsed)
	})

	t.Run("reuse allowed keeps returning metadata and first used timestamp", func(t *testing.T) {
		s := NewMemoryStore()

		_, err := s.Add(ctx, "ABC123", time.Minute, json.RawMessage(`{"n":1}`))
		require.NoError(t, err)

		first, err := s.CheckAndConsume(ctx, "ABC123", true)
		require.NoError(t, err)

		second, err := s.CheckAndConsume(ctx, "ABC123", true)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(second.Metadata))
		assert.Equal(t, first.UsedAt, second.UsedAt)
	})

	t.Run("expired code fails even if never consumed", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, err := s.Add(ctx, "XYZ", time.Second, nil)
		require.NoError(t, err)

		now = now.Add(2 * time.Second)
		_, err = s.CheckAndConsume(ctx, "XYZ", false)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("code expiring exactly now is still valid", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, err := s.Add(ctx, "EDGE", time.Second, nil)
		require.NoError(t, err)

		now = now.Add(time.Second)
		_, err = s.CheckAndConsume(ctx, "EDGE", false)
		assert.NoError(t, err)
	})

	t.Run("expired wins over used classification", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, err := s.Add(ctx, "BOTH", time.Second, nil)
		require.NoError(t, err)
		_, err = s.CheckAndConsume(ctx, "BOTH", true)
		require.NoError(t, err)

		now = now.Add(time.Minute)
		_, err = s.CheckAndConsume(ctx, "BOTH", true)
		assert.ErrorIs(t, err, ErrExpired)
	})
}

func TestMemoryStoreConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Add(ctx, "RACE", time.Minute, nil)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	results := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CheckAndConsume(ctx, "RACE", false)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyUsed)
			failures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent consume should win")
	assert.Equal(t, n-1, failures)
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()

	t.Run("removes expired and used records only", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, err := s.Add(ctx, "LIVE", time.Hour, nil)
		require.NoError(t, err)
		_, err = s.Add(ctx, "SHORT", time.Second, nil)
		require.NoError(t, err)
		_, err = s.Add(ctx, "CONSUMED", time.Hour, nil)
		require.NoError(t, err)
		_, err = s.CheckAndConsume(ctx, "CONSUMED", false)
		require.NoError(t, err)

		now = now.Add(time.Minute)
		removed, err := s.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		assert.Equal(t, 1, s.Len())

		// The surviving record is still redeemable.
		_, err = s.CheckAndConsume(ctx, "LIVE", false)
		assert.NoError(t, err)
	})

	t.Run("second purge removes nothing", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, err := s.Add(ctx, "SHORT", time.Second, nil)
		require.NoError(t, err)

		now = now.Add(time.Minute)
		removed, err := s.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		removed, err = s.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})

	t.Run("empty store", func(t *testing.T) {
		s := NewMemoryStore()

		removed, err := s.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})
}
