package service

import (
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

// UnreadService keeps per-counterpart unread counters paired with
// last-message snapshots. Counter and snapshot always move in one atomic
// batch so a reader can never observe a fresh count with a stale snapshot.
type UnreadService struct {
	redis       *cache.RedisCache
	messageRepo repository.MessageRepositoryInterface
	groupRepo   repository.GroupRepositoryInterface
}

func NewUnreadService(
	redisCache *cache.RedisCache,
	messageRepo repository.MessageRepositoryInterface,
	groupRepo repository.GroupRepositoryInterface,
) *UnreadService {
	return &UnreadService{redis: redisCache, messageRepo: messageRepo, groupRepo: groupRepo}
}

// Increment bumps recipient's unread count for counterpart and overwrites the
// snapshot, as one MULTI/EXEC unit. INCR does the counting, never a
// read-modify-write, so concurrent senders lose nothing.
func (s *UnreadService) Increment(recipientID, counterpartID uint, snap models.LastMessageSnapshot) error {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	pipe.Incr(ctx, cache.UnreadKey(cache.ScopeUser, recipientID, counterpartID))
	pipe.Set(ctx, cache.LastMsgKey(cache.ScopeUser, recipientID, counterpartID), data, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// IncrementGroup fans the increment+snapshot pair out to every member of the
// group except the sender, batched as one multi-key pipeline.
func (s *UnreadService) IncrementGroup(groupID, senderID uint, snap models.LastMessageSnapshot) error {
	members, err := s.groupRepo.MemberIDs(groupID)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	for _, member := range members {
		if member == senderID {
			continue
		}
		pipe.Incr(ctx, cache.UnreadKey(cache.ScopeGroup, member, groupID))
		pipe.Set(ctx, cache.LastMsgKey(cache.ScopeGroup, member, groupID), data, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// UnreadEntry is one conversation's unread state as returned to the client.
type UnreadEntry struct {
	Scope         cache.Scope                 `json:"scope"`
	CounterpartID uint                        `json:"counterpart_id"`
	Count         int64                       `json:"count"`
	LastMessage   *models.LastMessageSnapshot `json:"last_message,omitempty"`
}

// Read lists every counterpart and group holding unread messages for the
// recipient, newest activity first.
func (s *UnreadService) Read(recipientID uint) ([]UnreadEntry, error) {
	var entries []UnreadEntry
	for _, scope := range []cache.Scope{cache.ScopeUser, cache.ScopeGroup} {
		scoped, err := s.readScope(scope, recipientID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, scoped...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		li, lj := entries[i].LastMessage, entries[j].LastMessage
		if li == nil || lj == nil {
			return lj == nil && li != nil
		}
		return li.SentAt.After(lj.SentAt)
	})
	return entries, nil
}

func (s *UnreadService) readScope(scope cache.Scope, recipientID uint) ([]UnreadEntry, error) {
	keys, err := s.redis.ScanKeys(cache.UnreadPattern(scope, recipientID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx := s.redis.Context()
	pipe := s.redis.Pipeline()
	type pair struct {
		counterpartID uint
		count         *redis.StringCmd
		snapshot      *redis.StringCmd
	}
	pairs := make([]pair, 0, len(keys))
	for _, key := range keys {
		counterpartID, ok := counterpartFromKey(key)
		if !ok {
			log.Printf("[unread] unrecognized counter key %s, skipping", key)
			continue
		}
		pairs = append(pairs, pair{
			counterpartID: counterpartID,
			count:         pipe.Get(ctx, key),
			snapshot:      pipe.Get(ctx, cache.LastMsgKey(scope, recipientID, counterpartID)),
		})
	}
	_, _ = pipe.Exec(ctx)

	entries := make([]UnreadEntry, 0, len(pairs))
	for _, p := range pairs {
		raw, err := p.count.Result()
		if err != nil {
			continue // reset raced the scan; counter is gone
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("[unread] corrupt counter value %q, skipping", raw)
			continue
		}
		entry := UnreadEntry{Scope: scope, CounterpartID: p.counterpartID, Count: count}
		if data, err := p.snapshot.Bytes(); err == nil && len(data) > 0 {
			var snap models.LastMessageSnapshot
			if err := msgpack.Unmarshal(data, &snap); err != nil {
				log.Printf("[unread] corrupt snapshot for counterpart %d, skipping: %v", p.counterpartID, err)
			} else {
				entry.LastMessage = &snap
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Reset atomically deletes the counter and snapshot for one conversation.
// Private chats additionally flip is_read on the matching stored messages;
// group read state is represented by counter presence alone.
func (s *UnreadService) Reset(recipientID, counterpartID uint, scope cache.Scope) error {
	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, cache.UnreadKey(scope, recipientID, counterpartID))
	pipe.Del(ctx, cache.LastMsgKey(scope, recipientID, counterpartID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if scope == cache.ScopeUser {
		if _, err := s.messageRepo.MarkConversationRead(recipientID, counterpartID); err != nil {
			return err
		}
	}
	return nil
}

// counterpartFromKey extracts the trailing counterpart id from
// "{scope}:unread:{recipient}:{counterpart}".
func counterpartFromKey(key string) (uint, bool) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(key[idx+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
