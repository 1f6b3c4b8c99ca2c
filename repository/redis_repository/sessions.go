package redis_repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/webchat/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	sessionIDBytes   = 32
)

var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidSessionID reports whether id has the shape of an issued session id.
// Nothing about a session is trusted before this check passes.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// SessionStore issues anonymous sessions and keeps them alive on a sliding TTL.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *SessionStore) CreateSession(ctx context.Context) (models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return models.Session{}, err
	}
	now := s.now().UTC()
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	key := sessionKey(id)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "createdAt", ms, "lastAccessed", ms)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return models.Session{ID: id, CreatedAt: now, LastAccessed: now}, nil
}

// GetSession loads a session and slides its expiry. Malformed ids fail with
// models.ErrInvalidSession before the store is consulted.
func (s *SessionStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	if !ValidSessionID(id) {
		return models.Session{}, models.ErrInvalidSession
	}
	key := sessionKey(id)
	// refresh the expiry before writing so an expired session is never
	// recreated as a hash without createdAt
	var alive *redis.BoolCmd
	var get *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		alive = p.Expire(ctx, key, s.ttl)
		get = p.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	fields := get.Val()
	if !alive.Val() || len(fields) == 0 {
		return models.Session{}, models.ErrNotFound
	}

	now := s.now().UTC()
	if err := s.client.HSet(ctx, key, "lastAccessed", strconv.FormatInt(now.UnixMilli(), 10)).Err(); err != nil {
		return models.Session{}, fmt.Errorf("touch session: %w", err)
	}
	return models.Session{
		ID:           id,
		CreatedAt:    parseMillis(fields["createdAt"]),
		LastAccessed: now,
	}, nil
}

// TouchSession slides the expiry of an existing session.
func (s *SessionStore) TouchSession(ctx context.Context, id string) error {
	_, err := s.GetSession(ctx, id)
	return err
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
