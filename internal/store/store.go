package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/verigate/code-server-go/internal/model"
)

// Redemption failure classifications. The HTTP adapter collapses all three
// into one response; they stay distinct here for logging and tests.
var (
	ErrNotFound    = errors.New("code not found")
	ErrExpired     = errors.New("code expired")
	ErrAlreadyUsed = errors.New("code already used")
)

// IsRedemptionFailure reports whether err is one of the three store-level
// classifications, as opposed to a backend I/O error.
func IsRedemptionFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrAlreadyUsed)
}

// CodeStore is the code lifecycle store. Implementations must make
// CheckAndConsume atomic: two concurrent calls for the same live code with
// reuse disallowed must not both succeed.
//
// Expiry boundary: a record is expired iff its expiry is strictly before now;
// a record expiring exactly at now is still valid. All backends apply the
// same rule.
type CodeStore interface {
	// Add stores or overwrites the record for code and returns the computed
	// expiry. An existing record under the same code is replaced wholesale,
	// including its used state. TTL bounds are the caller's responsibility.
	Add(ctx context.Context, code string, ttl time.Duration, metadata json.RawMessage) (time.Time, error)

	// CheckAndConsume looks up code, classifies it, and marks it used, as one
	// indivisible operation. On success the returned record carries the
	// metadata supplied at add time. With allowReuse, an already-used live
	// record still succeeds and keeps its original used timestamp.
	CheckAndConsume(ctx context.Context, code string, allowReuse bool) (*model.CodeRecord, error)

	// Purge deletes every expired or used record and returns how many were
	// removed. Live unused records are never touched.
	Purge(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close() error
}
