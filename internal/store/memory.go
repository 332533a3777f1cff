package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/verigate/code-server-go/internal/model"
)

var _ CodeStore = (*MemoryStore)(nil)

// MemoryStore keeps all records in a mutex-protected map. It is the default
// backend: single-process, nothing survives a restart.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*model.CodeRecord

	// now is swappable in tests to exercise expiry without sleeping.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes: make(map[string]*model.CodeRecord),
		now:   time.Now,
	}
}

func (s *MemoryStore) Add(ctx context.Context, code string, ttl time.Duration, metadata json.RawMessage) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	s.codes[code] = &model.CodeRecord{
		Code:      code,
		ExpiresAt: expiresAt,
		Metadata:  metadata,
		CreatedAt: now,
	}
	return expiresAt, nil
}

func (s *MemoryStore) CheckAndConsume(ctx context.Context, code string, allowReuse bool) (*model.CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	if rec.Expired(now) {
		return nil, ErrExpired
	}
	if rec.Used() && !allowReuse {
		return nil, ErrAlreadyUsed
	}

	if rec.UsedAt == nil {
		usedAt := now
		rec.UsedAt = &usedAt
	}

	// Copy so callers never hold a reference into the map.
	out := *rec
	return &out, nil
}

func (s *MemoryStore) Purge(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var removed int64
	for code, rec := range s.codes {
		if rec.Expired(now) || rec.Used() {
			delete(s.codes, code)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the current record count. Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
