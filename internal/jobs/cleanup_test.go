package jobs

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/verigate/code-server-go/internal/model"
)

type mockCodeStore struct {
	purgeCalls atomic.Int64
	purgeCount int64
	purgeErr   error
}

func (m *mockCodeStore) Add(ctx context.Context, code string, ttl time.Duration, metadata json.RawMessage) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockCodeStore) CheckAndConsume(ctx context.Context, code string, allowReuse bool) (*model.CodeRecord, error) {
	return nil, nil
}

func (m *mockCodeStore) Purge(ctx context.Context) (int64, error) {
	m.purgeCalls.Add(1)
	return m.purgeCount, m.purgeErr
}

func (m *mockCodeStore) Close() error {
	return nil
}

func TestCleanupJob(t *testing.T) {
	t.Run("purges immediately on start", func(t *testing.T) {
		store := &mockCodeStore{purgeCount: 3}
		job := NewCleanupJob(store, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return store.purgeCalls.Load() >= 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("purges again on each tick", func(t *testing.T) {
		store := &mockCodeStore{}
		job := NewCleanupJob(store, 20*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return store.purgeCalls.Load() >= 3
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stop halts the loop", func(t *testing.T) {
		store := &mockCodeStore{}
		job := NewCleanupJob(store, 20*time.Millisecond)

		job.Start()
		job.Stop()

		calls := store.purgeCalls.Load()
		time.Sleep(100 * time.Millisecond)
		assert.LessOrEqual(t, store.purgeCalls.Load(), calls+1)
	})

	t.Run("purge errors do not stop the job", func(t *testing.T) {
		store := &mockCodeStore{purgeErr: context.DeadlineExceeded}
		job := NewCleanupJob(store, 20*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return store.purgeCalls.Load() >= 2
		}, time.Second, 10*time.Millisecond)
	})
}
