package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/verigate/code-server-go/internal/database"
	"github.com/verigate/code-server-go/internal/model"
)

var _ CodeStore = (*PostgresStore)(nil)

// PostgresStore is the durable backend. Schema:
//
//	CREATE TABLE verification_codes (
//	    code       TEXT PRIMARY KEY,
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    used_at    TIMESTAMPTZ,
//	    metadata   JSONB,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, code string, ttl time.Duration, metadata json.RawMessage) (time.Time, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	var expiresAt time.Time
	err := s.db.GetContext(ctx, &expiresAt, `
		INSERT INTO verification_codes (code, expires_at, used_at, metadata)
		VALUES ($1, NOW() + $2 * INTERVAL '1 second', NULL, $3)
		ON CONFLICT (code) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			used_at = NULL,
			metadata = EXCLUDED.metadata,
			created_at = NOW()
		RETURNING expires_at
	`, code, ttl.Seconds(), metadata)
	if err != nil {
		return time.Time{}, fmt.Errorf("add code: %w", err)
	}
	return expiresAt, nil
}

// CheckAndConsume runs as a single transaction with the row locked for its
// duration, so concurrent consumes of the same code serialize on the row lock.
func (s *PostgresStore) CheckAndConsume(ctx context.Context, code string, allowReuse bool) (*model.CodeRecord, error) {
	var rec model.CodeRecord
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &rec, `
			SELECT * FROM verification_codes
			WHERE code = $1
			FOR UPDATE
		`, code)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup code: %w", err)
		}

		// Expiry is checked against the database clock so all instances
		// sharing the table agree. Equality with NOW() still validates.
		var expired bool
		if err := tx.GetContext(ctx, &expired, `SELECT $1 < NOW()`, rec.ExpiresAt); err != nil {
			return fmt.Errorf("check expiry: %w", err)
		}
		if expired {
			return ErrExpired
		}
		if rec.Used() && !allowReuse {
			return ErrAlreadyUsed
		}

		if rec.UsedAt == nil {
			err = tx.GetContext(ctx, &rec.UsedAt, `
				UPDATE verification_codes SET used_at = NOW()
				WHERE code = $1
				RETURNING used_at
			`, code)
			if err != nil {
				return fmt.Errorf("mark used: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM verification_codes
		WHERE expires_at < NOW() OR used_at IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("purge codes: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
