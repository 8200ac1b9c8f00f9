package docsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "securevault:docsession:"
	openSetKey       = "securevault:docsession:open"
	// Ended sessions linger briefly so a late viewer gets a precise
	// "session ended" answer instead of NOT_FOUND.
	endedRetention = time.Hour
)

// RedisStore persists sessions with key TTLs. The open set feeds the reaper;
// SRem wins decide which instance audits an expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt) + endedRetention
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, sessionKeyPrefix+session.ID.String(), payload, ttl)
	pipe.SAdd(ctx, openSetKey, session.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) End(ctx context.Context, sessionID id.SessionID, state State, now time.Time) (*Session, error) {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != StateOpen {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "session is already %s", session.State)
	}
	session.State = state
	t := now
	session.EndedAt = &t
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sessionID.String(), payload, endedRetention)
	pipe.SRem(ctx, openSetKey, sessionID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return session, nil
}

func (s *RedisStore) ExpireDue(ctx context.Context, now time.Time) ([]*Session, error) {
	ids, err := s.client.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	var out []*Session
	for _, raw := range ids {
		sessionID, err := id.ParseSessionID(raw)
		if err != nil {
			_ = s.client.SRem(ctx, openSetKey, raw)
			continue
		}
		session, err := s.FindByID(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Key TTL already reclaimed it; drop the set member.
			_ = s.client.SRem(ctx, openSetKey, raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.State != StateOpen || !now.After(session.ExpiresAt) {
			continue
		}
		removed, err := s.client.SRem(ctx, openSetKey, raw).Result()
		if err != nil {
			return nil, fmt.Errorf("claim expiring session: %w", err)
		}
		if removed == 0 {
			continue
		}
		session.State = StateExpired
		t := now
		session.EndedAt = &t
		payload, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("marshal session: %w", err)
		}
		if err := s.client.Set(ctx, sessionKeyPrefix+raw, payload, endedRetention).Err(); err != nil {
			return nil, fmt.Errorf("mark session expired: %w", err)
		}
		out = append(out, session)
	}
	return out, nil
}
