package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/go-redis/redis/v7"
)

// recordGrace keeps records around past token expiry so a late MarkRevoked
// still finds something to update. Expired tokens fail decode anyway.
const recordGrace = time.Hour

// RedisStore keeps token records as JSON values under <prefix>:<subject>:<jti>
// with a TTL, so dead tokens age out of the store without a sweeper.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and pings it before returning.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %v", common.ErrStoreUnavailable, err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(subject, tokenID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, subject, tokenID)
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ttl := time.Until(rec.ExpiresAt) + recordGrace
	if ttl <= 0 {
		ttl = recordGrace
	}
	if err := s.client.Set(s.key(rec.Subject, rec.TokenID), string(b), ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, subject, tokenID string) (Record, error) {
	val, err := s.client.Get(s.key(subject, tokenID)).Result()
	if err == redis.Nil {
		return Record{}, common.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: redis get: %v", common.ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisStore) MarkRevoked(ctx context.Context, subject, tokenID string) error {
	rec, err := s.Get(ctx, subject, tokenID)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return nil
	}
	now := time.Now()
	rec.Revoked = true
	rec.RevokedAt = &now

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// Preserve the remaining TTL instead of restarting it.
	key := s.key(subject, tokenID)
	ttl, err := s.client.TTL(key).Result()
	if err != nil || ttl <= 0 {
		ttl = recordGrace
	}
	if err := s.client.Set(key, string(b), ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ListByUser(ctx context.Context, subject string) ([]string, error) {
	pattern := fmt.Sprintf("%s:%s:*", s.prefix, subject)
	keys, err := s.client.Keys(pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis keys: %v", common.ErrStoreUnavailable, err)
	}

	cut := fmt.Sprintf("%s:%s:", s.prefix, subject)
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, cut))
	}
	return ids, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
