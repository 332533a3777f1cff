package model

import (
	"encoding/json"
	"time"
)

// CodeRecord is a single-use verification code. The code string itself is the
// primary key; metadata is caller-supplied and returned verbatim on redemption.
type CodeRecord struct {
	Code      string          `db:"code" json:"code"`
	ExpiresAt time.Time       `db:"expires_at" json:"expiresAt"`
	UsedAt    *time.Time      `db:"used_at" json:"usedAt,omitempty"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// Used reports whether the code has been redeemed at least once.
func (c *CodeRecord) Used() bool {
	return c.UsedAt != nil
}

// Expired reports whether the code's TTL has elapsed at the given instant.
// A record expiring exactly at now is still valid.
func (c *CodeRecord) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

type AddCodeParams struct {
	Code      string
	ExpiresAt time.Time
	Metadata  json.RawMessage
}
