package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix   = "securevault:token:"
	requestKeyPrefix = "securevault:token:request:"
	// Revoked and consumed tokens stay around briefly past natural expiry
	// so validation can distinguish REVOKED from NOT_FOUND.
	revokedRetention  = 24 * time.Hour
	consumeMaxRetries = 3
)

// RedisStore persists tokens in Redis with key TTLs tracking token expiry.
// ConsumeAction uses WATCH/MULTI so check-and-mark is atomic.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, t *Token) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ttl := time.Until(t.ExpiresAt) + revokedRetention
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+t.Hash, payload, ttl)
	pipe.SAdd(ctx, requestKeyPrefix+t.RequestID.String(), t.Hash)
	pipe.Expire(ctx, requestKeyPrefix+t.RequestID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByHash(ctx context.Context, hash string) (*Token, error) {
	raw, err := s.client.Get(ctx, tokenKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) ConsumeAction(ctx context.Context, hash string, action Action, now time.Time) (*Token, error) {
	key := tokenKeyPrefix + hash
	var result *Token

	consume := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		var t Token
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("unmarshal token: %w", err)
		}
		if t.Revoked {
			return sentinel.ErrRevoked
		}
		if t.Expired(now) {
			return sentinel.ErrExpired
		}
		if !t.InScope(action) {
			return sentinel.ErrScopeMismatch
		}
		if !t.IsConsumed(action) {
			t.Consumed = append(t.Consumed, action)
		}
		payload, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &t
		return nil
	}

	for range consumeMaxRetries {
		err := s.client.Watch(ctx, consume, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, re-read and retry
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, sentinel.ErrConflict
}

func (s *RedisStore) ExtendExpiry(ctx context.Context, hash string, until time.Time) (*Token, error) {
	t, err := s.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if t.Revoked {
		return nil, sentinel.ErrRevoked
	}
	if !until.After(t.ExpiresAt) {
		return t, nil
	}
	t.ExpiresAt = until
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}
	ttl := time.Until(t.ExpiresAt) + revokedRetention
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+t.Hash, payload, ttl)
	pipe.Expire(ctx, requestKeyPrefix+t.RequestID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("extend token: %w", err)
	}
	return t, nil
}

func (s *RedisStore) RevokeByRequest(ctx context.Context, requestID id.VerificationID) (int, error) {
	setKey := requestKeyPrefix + requestID.String()
	hashes, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list request tokens: %w", err)
	}
	revoked := 0
	for _, hash := range hashes {
		t, err := s.FindByHash(ctx, hash)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return revoked, err
		}
		if t.Revoked {
			continue
		}
		t.Revoked = true
		payload, err := json.Marshal(t)
		if err != nil {
			return revoked, fmt.Errorf("marshal token: %w", err)
		}
		if err := s.client.Set(ctx, tokenKeyPrefix+hash, payload, redis.KeepTTL).Err(); err != nil {
			return revoked, fmt.Errorf("revoke token: %w", err)
		}
		revoked++
	}
	return revoked, nil
}
