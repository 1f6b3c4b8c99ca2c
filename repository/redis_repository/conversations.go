package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/redis/go-redis/v9"
)

const (
	conversationKeyPrefix = "conversation:"
	sharedKeyPrefix       = "shared:"
	conversationRateKey   = "ratelimit:conversations:"
	summaryTitleRunes     = 80
)

func conversationKey(id string) string { return conversationKeyPrefix + id }
func ownerKey(id string) string { return conversationKeyPrefix + id + ":owner" }
func sharedKey(id string) string { return sharedKeyPrefix + id }

func sessionConversationsKey(sid string) string {
	return sessionKeyPrefix + sid + ":conversations"
}

// ConversationOptions controls retention and quotas.
type ConversationOptions struct {
	TTL        time.Duration
	SharedTTL  time.Duration
	DailyLimit int
}

// ConversationStore persists conversations with session ownership. The
// per-conversation owner pointer is the source of truth; the per-session
// set is derived from it and filtered on read.
type ConversationStore struct {
	client redis.Cmdable
	opts   ConversationOptions
	log    logger.Logger
	now    func() time.Time
}

func NewConversationStore(client redis.Cmdable, opts ConversationOptions, log logger.Logger) *ConversationStore {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.SharedTTL <= 0 {
		opts.SharedTTL = 30 * 24 * time.Hour
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 50
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ConversationStore{
		client: client,
		opts:   opts,
		log:    log.With(logger.Component("conversation_store")),
		now:    time.Now,
	}
}

// owner returns the owning session of id, or "" when unclaimed.
func (s *ConversationStore) owner(ctx context.Context, id string) (string, error) {
	sid, err := s.client.Get(ctx, ownerKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get owner: %w", err)
	}
	return sid, nil
}

// AssociateConversationWithSession claims cid for sid. It succeeds when the
// conversation is unclaimed or already owned by sid, and fails closed when
// another session owns it. Both sides of the index are read back before
// reporting success.
func (s *ConversationStore) AssociateConversationWithSession(ctx context.Context, cid, sid string) (bool, error) {
	if !ValidSessionID(sid) {
		return false, models.ErrInvalidSession
	}
	if strings.TrimSpace(cid) == "" {
		return false, nil
	}

	claimed, err := s.client.SetNX(ctx, ownerKey(cid), sid, s.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim conversation: %w", err)
	}
	if !claimed {
		current, err := s.owner(ctx, cid)
		if err != nil {
			return false, err
		}
		if current != sid {
			s.log.Warn("conversation owned by another session", logger.String("conversation_id", cid))
			return false, nil
		}
	}

	setKey := sessionConversationsKey(sid)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, setKey, cid)
		p.Expire(ctx, setKey, s.opts.TTL)
		p.Expire(ctx, ownerKey(cid), s.opts.TTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("index conversation: %w", err)
	}

	current, err := s.owner(ctx, cid)
	if err != nil {
		return false, err
	}
	member, err := s.client.SIsMember(ctx, setKey, cid).Result()
	if err != nil {
		return false, fmt.Errorf("verify conversation index: %w", err)
	}
	if current != sid || !member {
		s.log.Warn("ownership read-back mismatch", logger.String("conversation_id", cid), logger.Bool("member", member))
		return false, nil
	}
	return true, nil
}

// SaveConversation associates id with sid and writes messages. A conversation
// owned by another session is never written.
func (s *ConversationStore) SaveConversation(ctx context.Context, id string, messages []models.Message, sid string) error {
	ok, err := s.AssociateConversationWithSession(ctx, id, sid)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrForbidden
	}
	data, err := json.Marshal(models.CloneMessages(messages))
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(id), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) load(ctx context.Context, id string) ([]models.Message, error) {
	data, err := s.client.Get(ctx, conversationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return messages, nil
}

// GetConversationSecure returns the messages of id only to its owner. An
// existing conversation without an owner record is claimed by the first
// session that asks for it.
func (s *ConversationStore) GetConversationSecure(ctx context.Context, id, sid string) ([]models.Message, error) {
	if !ValidSessionID(sid) {
		return nil, models.ErrInvalidSession
	}
	current, err := s.owner(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current == "":
		n, err := s.client.Exists(ctx, conversationKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check conversation: %w", err)
		}
		if n == 0 {
			return nil, models.ErrNotFound
		}
		ok, err := s.AssociateConversationWithSession(ctx, id, sid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrForbidden
		}
		s.log.Info("claimed unowned conversation", logger.String("conversation_id", id))
	case current != sid:
		return nil, models.ErrForbidden
	}
	return s.load(ctx, id)
}

// GetSessionConversations lists the conversations owned by sid, sorted by id.
// Set entries whose owner pointer expired or names another session are pruned.
func (s *ConversationStore) GetSessionConversations(ctx context.Context, sid string) ([]models.ConversationSummary, error) {
	if !ValidSessionID(sid) {
		return nil, models.ErrInvalidSession
	}
	setKey := sessionConversationsKey(sid)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sort.Strings(ids)

	out := make([]models.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		current, err := s.owner(ctx, id)
		if err != nil {
			return nil, err
		}
		if current != sid {
			if remErr := s.client.SRem(ctx, setKey, id).Err(); remErr != nil {
				s.log.Warn("prune conversation index", logger.String("conversation_id", id), logger.Error(remErr))
			}
			continue
		}
		messages, err := s.load(ctx, id)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		// A claimed conversation with no messages saved yet is listed empty.
		out = append(out, models.ConversationSummary{
			ID:           id,
			Title:        conversationTitle(messages),
			MessageCount: len(messages),
		})
	}
	return out, nil
}

func conversationTitle(messages []models.Message) string {
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		title := helpers.CleanText(m.Content)
		if utf8.RuneCountInString(title) > summaryTitleRunes {
			title = helpers.TruncateRunes(title, summaryTitleRunes) + "…"
		}
		return title
	}
	return "New conversation"
}

// CreateSharedConversation snapshots a conversation owned by sid under a new
// id. It reports false instead of failing so callers map it to a denial.
func (s *ConversationStore) CreateSharedConversation(ctx context.Context, id, sid string) (string, bool) {
	if !ValidSessionID(sid) {
		return "", false
	}
	current, err := s.owner(ctx, id)
	if err != nil {
		s.log.Error("share: owner lookup failed", logger.String("conversation_id", id), logger.Error(err))
		return "", false
	}
	if current != sid {
		return "", false
	}
	messages, err := s.load(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.log.Error("share: load failed", logger.String("conversation_id", id), logger.Error(err))
		}
		return "", false
	}

	shared := models.SharedConversation{
		SharedID:   uuid.NewString(),
		OriginalID: id,
		Messages:   models.CloneMessages(messages),
		SharedBy:   SharerAlias(sid),
		SharedAt:   s.now().UTC(),
	}
	data, err := json.Marshal(shared)
	if err != nil {
		s.log.Error("share: marshal failed", logger.Error(err))
		return "", false
	}
	if err := s.client.Set(ctx, sharedKey(shared.SharedID), data, s.opts.SharedTTL).Err(); err != nil {
		s.log.Error("share: write failed", logger.String("conversation_id", id), logger.Error(err))
		return "", false
	}
	return shared.SharedID, true
}

// SharerAlias is the public, non-reversible label for the session that shared a snapshot.
func SharerAlias(sid string) string {
	return "anon-" + helpers.Digest("shared-by", sid)[:10]
}

// GetSharedConversation returns a snapshot to anyone holding its id.
func (s *ConversationStore) GetSharedConversation(ctx context.Context, sharedID string) (*models.SharedConversation, error) {
	data, err := s.client.Get(ctx, sharedKey(sharedID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shared conversation: %w", err)
	}
	var shared models.SharedConversation
	if err := json.Unmarshal(data, &shared); err != nil {
		return nil, fmt.Errorf("decode shared conversation: %w", err)
	}
	return &shared, nil
}

// CheckConversationRateLimit counts a new conversation for sid and reports
// whether it is within the daily quota. The window starts at the first
// increment and is not extended by later ones.
func (s *ConversationStore) CheckConversationRateLimit(ctx context.Context, sid string) (bool, error) {
	if !ValidSessionID(sid) {
		return false, models.ErrInvalidSession
	}
	key := conversationRateKey + sid
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		pttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("incr conversation quota: %w", err)
	}
	n := incr.Val()
	// a counter without expiry (first increment, or a lost EXPIRE) gets the
	// full window; an existing window is never extended
	if pttl.Val() <= 0 {
		if err := s.client.Expire(ctx, key, 24*time.Hour).Err(); err != nil {
			return false, fmt.Errorf("expire conversation quota: %w", err)
		}
	}
	return n <= int64(s.opts.DailyLimit), nil
}
