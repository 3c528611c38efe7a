package service

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxRetainedPerIndex bounds every sorted index; trimmed ids stay
	// recoverable from the persistent store.
	MaxRetainedPerIndex = 100
)

// HistoryService maintains the per-viewer message-history indices on top of
// the tiered cache and serves paginated history reads, falling back to the
// persistent store whenever the cache cannot prove completeness.
type HistoryService struct {
	store       *cache.TieredStore
	redis       *cache.RedisCache
	messageRepo repository.MessageRepositoryInterface
	groupRepo   repository.GroupRepositoryInterface
	deletes     *DeleteService
	retained    int64
	now         func() time.Time
}

func NewHistoryService(
	store *cache.TieredStore,
	redisCache *cache.RedisCache,
	messageRepo repository.MessageRepositoryInterface,
	groupRepo repository.GroupRepositoryInterface,
	deletes *DeleteService,
) *HistoryService {
	return &HistoryService{
		store:       store,
		redis:       redisCache,
		messageRepo: messageRepo,
		groupRepo:   groupRepo,
		deletes:     deletes,
		retained:    MaxRetainedPerIndex,
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *HistoryService) SetClock(now func() time.Time) { s.now = now }

// baseKeysFor lists every viewpoint stem a message is indexed under: both
// participants for private chats, one per (member, group) for groups.
func (s *HistoryService) baseKeysFor(msg *models.Message) ([]string, error) {
	if msg.IsGroup() {
		members, err := s.groupRepo.MemberIDs(*msg.GroupID)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(members))
		for _, member := range members {
			keys = append(keys, cache.HistoryBaseKey(cache.ScopeGroup, member, *msg.GroupID))
		}
		return keys, nil
	}
	if msg.RecipientID == nil {
		return nil, ErrInvalidConversation
	}
	return []string{
		cache.HistoryBaseKey(cache.ScopeUser, msg.SenderID, *msg.RecipientID),
		cache.HistoryBaseKey(cache.ScopeUser, *msg.RecipientID, msg.SenderID),
	}, nil
}

// IndexMessage records a freshly sent message: body into the hot tier and id
// into the hot sorted index for every relevant baseKey, each index trimmed to
// the retained bound. All mutations for the event ride one pipeline.
func (s *HistoryService) IndexMessage(msg *models.Message) error {
	baseKeys, err := s.baseKeysFor(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data, err := cache.NewRecord(body, msg.SentAt).Encode()
	if err != nil {
		return err
	}

	score := float64(msg.SentAt.UnixMilli())
	ctx := s.redis.Context()
	pipe := s.redis.Pipeline()
	for _, bk := range baseKeys {
		idx := cache.IndexKey(cache.TierHot, bk)
		pipe.Set(ctx, cache.BodyKey(cache.TierHot, bk, msg.ID), data, cache.HotTTL)
		pipe.ZAdd(ctx, idx, redis.Z{Score: score, Member: msg.ID})
		pipe.ZRemRangeByRank(ctx, idx, 0, -(s.retained + 1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// HistoryPage is one page of a conversation, newest first, already passed
// through the tombstone display filter.
type HistoryPage struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Size     int              `json:"size"`
}

// GetHistory returns page/size of a conversation for the viewer in filter.
// Page 1 is served from the tier indices when they hold anything; every other
// page, and page 1 against an empty index, reads the persistent store
// directly; a trim-bounded cache cannot be trusted beyond the first page.
func (s *HistoryService) GetHistory(filter repository.ConversationFilter, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	baseKey := s.viewerBaseKey(filter)

	var messages []models.Message
	var err error
	if page == 1 && s.indexPopulated(baseKey) {
		messages, err = s.readFirstPage(filter, baseKey, size)
	} else {
		messages, err = s.messageRepo.FindConversationPage(filter, (page-1)*size, size)
	}
	if err != nil {
		return nil, err
	}

	messages = dedupeByID(messages)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.After(messages[j].SentAt)
	})
	messages = s.deletes.FilterForDisplay(messages, filter.ViewerID)

	total, err := s.messageRepo.CountConversation(filter)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{Messages: messages, Total: total, Page: page, Size: size}, nil
}

func (s *HistoryService) viewerBaseKey(filter repository.ConversationFilter) string {
	if filter.IsGroup() {
		return cache.HistoryBaseKey(cache.ScopeGroup, filter.ViewerID, filter.GroupID)
	}
	return cache.HistoryBaseKey(cache.ScopeUser, filter.ViewerID, filter.CounterpartID)
}

func (s *HistoryService) indexPopulated(baseKey string) bool {
	for _, tier := range []cache.Tier{cache.TierHot, cache.TierFrequent} {
		if n, err := s.redis.ZCard(cache.IndexKey(tier, baseKey)); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// readFirstPage assembles page 1 from the hot index, then the frequent index,
// then a store remainder that is opportunistically pulled into the hot tier.
func (s *HistoryService) readFirstPage(filter repository.ConversationFilter, baseKey string, size int) ([]models.Message, error) {
	ids, err := s.redis.ZRevRange(cache.IndexKey(cache.TierHot, baseKey), 0, int64(size)-1)
	if err != nil {
		log.Printf("[history] hot index read failed for %s: %v", baseKey, err)
		ids = nil
	}
	if len(ids) < size {
		more, err := s.redis.ZRevRange(cache.IndexKey(cache.TierFrequent, baseKey), 0, int64(size-len(ids))-1)
		if err != nil {
			log.Printf("[history] frequent index read failed for %s: %v", baseKey, err)
		} else {
			ids = append(ids, more...)
		}
	}

	messages := make([]models.Message, 0, size)
	for _, raw := range ids {
		id64, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			log.Printf("[history] non-numeric index member %q under %s, skipping", raw, baseKey)
			continue
		}
		msg, ok := s.resolveBody(baseKey, uint(id64))
		if ok {
			messages = append(messages, msg)
		}
	}

	if len(messages) < size {
		remainder, err := s.messageRepo.FindConversationPage(filter, len(messages), size-len(messages))
		if err != nil {
			return nil, err
		}
		s.backfillHot(baseKey, remainder)
		messages = append(messages, remainder...)
	}
	return messages, nil
}

// resolveBody fetches one message body, probing hot → frequent → cold. A
// non-hot hit promotes the record; a total miss falls back to a store point
// lookup. Absent everywhere means the id is stale: dropped, not an error.
func (s *HistoryService) resolveBody(baseKey string, messageID uint) (models.Message, bool) {
	rec, tier, ok := s.store.Get(cache.BodyBaseKey(baseKey, messageID))
	if ok {
		var msg models.Message
		if err := json.Unmarshal(rec.Body, &msg); err != nil {
			log.Printf("[history] corrupt cached message %d under %s, skipping: %v", messageID, baseKey, err)
		} else {
			if tier != cache.TierHot {
				if err := s.store.Promote(baseKey, messageID, rec, tier); err != nil {
					log.Printf("[history] promote of message %d failed: %v", messageID, err)
				}
			}
			return msg, true
		}
	}

	msg, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[history] store lookup of message %d failed: %v", messageID, err)
		}
		return models.Message{}, false
	}
	return *msg, true
}

// backfillHot writes store-fetched page-1 messages into the hot tier so the
// next read is index-complete. Failures only cost the next read a store trip.
func (s *HistoryService) backfillHot(baseKey string, messages []models.Message) {
	if len(messages) == 0 {
		return
	}
	ctx := s.redis.Context()
	pipe := s.redis.Pipeline()
	idx := cache.IndexKey(cache.TierHot, baseKey)
	nowMs := s.now().UnixMilli()
	for i := range messages {
		msg := &messages[i]
		body, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		rec := cache.Record{Timestamp: nowMs, SentAt: msg.SentAt.UnixMilli(), Body: body}
		data, err := rec.Encode()
		if err != nil {
			continue
		}
		pipe.Set(ctx, cache.BodyKey(cache.TierHot, baseKey, msg.ID), data, cache.HotTTL)
		pipe.ZAdd(ctx, idx, redis.Z{Score: float64(rec.SentAt), Member: msg.ID})
	}
	pipe.ZRemRangeByRank(ctx, idx, 0, -(s.retained + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[history] hot backfill for %s failed: %v", baseKey, err)
	}
}

func dedupeByID(messages []models.Message) []models.Message {
	seen := make(map[uint]struct{}, len(messages))
	out := messages[:0]
	for _, msg := range messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out
}
