package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verigate/code-server-go/internal/model"
	redisclient "github.com/verigate/code-server-go/internal/redis"
)

// Server-side eviction runs a little behind logical expiry so a purge can
// still count records that just expired.
const redisExpiryGrace = time.Minute

// consumeScript performs lookup, classification, and the used_at write as one
// script. EVAL is serialized by the server, so concurrent consumes of the
// same code see a consistent record and only one wins.
//
// ARGV[1] = now (unix milli), ARGV[2] = "1" when reuse is allowed.
// Returns {"ok", expires_at, used_at, metadata, created_at} or a failure kind.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

local vals = redis.call('HMGET', key, 'expires_at', 'used_at', 'metadata', 'created_at')
if not vals[1] then
    return {'not_found'}
end
if tonumber(vals[1]) < now then
    return {'expired'}
end

local used = vals[2]
if used and used ~= '' and ARGV[2] ~= '1' then
    return {'already_used'}
end
if not used or used == '' then
    redis.call('HSET', key, 'used_at', ARGV[1])
    used = ARGV[1]
end

return {'ok', vals[1], used, vals[3] or '', vals[4] or ''}
`)

// purgeScript deletes one record iff it is expired or used at the time of the
// check, so a record re-added mid-scan is never torn down.
var purgeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

local vals = redis.call('HMGET', key, 'expires_at', 'used_at')
if not vals[1] then
    return 0
end
if tonumber(vals[1]) < now or (vals[2] and vals[2] ~= '') then
    redis.call('DEL', key)
    return 1
end
return 0
`)

var _ CodeStore = (*RedisStore)(nil)

// RedisStore keeps records as hashes under code:{code} keys. Redis evicts
// dead records on its own shortly after logical expiry; Purge handles used
// ones and anything still inside the eviction grace window.
type RedisStore struct {
	client *redisclient.Client

	now func() time.Time
}

func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

func (s *RedisStore) Add(ctx context.Context, code string, ttl time.Duration, metadata json.RawMessage) (time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	key := redisclient.CodeKey(code)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Full replacement: a leftover used_at from a prior record must not
		// survive the overwrite.
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"expires_at", expiresAt.UnixMilli(),
			"metadata", string(metadata),
			"created_at", now.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, expiresAt.Add(redisExpiryGrace))
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("add code: %w", err)
	}
	return expiresAt, nil
}

func (s *RedisStore) CheckAndConsume(ctx context.Context, code string, allowReuse bool) (*model.CodeRecord, error) {
	reuse := "0"
	if allowReuse {
		reuse = "1"
	}

	res, err := consumeScript.Run(ctx, s.client,
		[]string{redisclient.CodeKey(code)},
		s.now().UTC().UnixMilli(), reuse,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("consume code: empty script reply")
	}

	switch res[0] {
	case "ok":
	case "expired":
		return nil, ErrExpired
	case "already_used":
		return nil, ErrAlreadyUsed
	default:
		return nil, ErrNotFound
	}
	if len(res) < 5 {
		return nil, fmt.Errorf("consume code: short script reply")
	}

	rec := &model.CodeRecord{Code: code}
	if rec.ExpiresAt, err = parseMilli(res[1]); err != nil {
		return nil, fmt.Errorf("consume code: expires_at: %w", err)
	}
	usedAt, err := parseMilli(res[2])
	if err != nil {
		return nil, fmt.Errorf("consume code: used_at: %w", err)
	}
	rec.UsedAt = &usedAt
	if meta, _ := res[3].(string); meta != "" {
		rec.Metadata = json.RawMessage(meta)
	}
	if created, _ := res[4].(string); created != "" {
		if rec.CreatedAt, err = parseMilli(res[4]); err != nil {
			return nil, fmt.Errorf("consume code: created_at: %w", err)
		}
	}
	return rec, nil
}

func (s *RedisStore) Purge(ctx context.Context) (int64, error) {
	now := s.now().UTC().UnixMilli()
	var removed int64

	iter := s.client.Scan(ctx, 0, redisclient.CodeKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		n, err := purgeScript.Run(ctx, s.client, []string{iter.Val()}, now).Int64()
		if err != nil {
			return removed, fmt.Errorf("purge %s: %w", iter.Val(), err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("purge scan: %w", err)
	}
	return removed, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseMilli(v any) (time.Time, error) {
	str, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected reply type %T", v)
	}
	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
