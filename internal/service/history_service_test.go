package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

type historyFixture struct {
	history  *HistoryService
	store    *cache.TieredStore
	redis    *cache.RedisCache
	msgRepo  *mockMessageRepo
	userRepo *mockUserRepo
	grpRepo  *mockGroupRepo
	mr       *miniredis.Miniredis
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })

	msgRepo := newMockMessageRepo()
	userRepo := newMockUserRepo()
	grpRepo := newMockGroupRepo()
	store := cache.NewTieredStore(rc)
	deletes := NewDeleteService(rc, msgRepo, userRepo, grpRepo)
	history := NewHistoryService(store, rc, msgRepo, grpRepo, deletes)

	return &historyFixture{
		history: history, store: store, redis: rc,
		msgRepo: msgRepo, userRepo: userRepo, grpRepo: grpRepo, mr: mr,
	}
}

func (f *historyFixture) sendPrivate(t *testing.T, senderID, recipientID uint, content string, sentAt time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: &recipientID,
		Type:        models.TextMessage,
		Body:        models.NewBody(models.TextPayload{Content: content}),
		SentAt:      sentAt,
	}
	if err := f.msgRepo.Create(msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, _ := f.msgRepo.FindByID(msg.ID)
	if err := f.history.IndexMessage(stored); err != nil {
		t.Fatalf("index: %v", err)
	}
	return stored
}

func TestIndexMessageWritesBothViewpoints(t *testing.T) {
	f := newHistoryFixture(t)
	msg := f.sendPrivate(t, 1, 2, "hello", time.Now())

	for _, viewer := range []struct{ a, b uint }{{1, 2}, {2, 1}} {
		bk := cache.HistoryBaseKey(cache.ScopeUser, viewer.a, viewer.b)
		if !f.mr.Exists(cache.BodyKey(cache.TierHot, bk, msg.ID)) {
			t.Errorf("body missing under viewpoint %d:%d", viewer.a, viewer.b)
		}
		ids, _ := f.redis.ZRevRange(cache.IndexKey(cache.TierHot, bk), 0, -1)
		if len(ids) != 1 {
			t.Errorf("index under %d:%d = %v, want one member", viewer.a, viewer.b, ids)
		}
	}
}

func TestGetHistoryFirstPageFromCache(t *testing.T) {
	f := newHistoryFixture(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		f.sendPrivate(t, 1, 2, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	filter := repository.ConversationFilter{ViewerID: 1, CounterpartID: 2}
	storeCalls := f.msgRepo.findPageCalls
	page, err := f.history.GetHistory(filter, 1, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	if len(page.Messages) != 20 {
		t.Fatalf("page 1 size = %d, want 20", len(page.Messages))
	}
	if page.Total != 25 {
		t.Errorf("total = %d, want 25", page.Total)
	}
	if f.msgRepo.findPageCalls != storeCalls {
		t.Errorf("page 1 with a full index should not touch the store")
	}

	// Newest first, no duplicates.
	seen := make(map[uint]bool)
	for i, msg := range page.Messages {
		if seen[msg.ID] {
			t.Errorf("duplicate message %d", msg.ID)
		}
		seen[msg.ID] = true
		if i > 0 && msg.SentAt.After(page.Messages[i-1].SentAt) {
			t.Errorf("messages not in descending sentAt order at %d", i)
		}
	}
}

func TestGetHistorySecondPageFromStore(t *testing.T) {
	f := newHistoryFixture(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		f.sendPrivate(t, 1, 2, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	filter := repository.ConversationFilter{ViewerID: 1, CounterpartID: 2}
	page, err := f.history.GetHistory(filter, 2, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(page.Messages) != 5 {
		t.Fatalf("page 2 size = %d, want 5", len(page.Messages))
	}
	if f.msgRepo.findPageCalls == 0 {
		t.Error("page 2 must read the store")
	}
	// Page 2 holds the 5 oldest messages (the first 5 created).
	for _, msg := range page.Messages {
		if msg.ID > 5 {
			t.Errorf("unexpected message %d on page 2, want ids 1-5", msg.ID)
		}
	}
}

func TestGetHistoryEmptyIndexFallsBackToStore(t *testing.T) {
	f := newHistoryFixture(t)
	base := time.Now().Add(-time.Hour)
	msg := f.sendPrivate(t, 1, 2, "survivor", base)

	// Wipe the cache entirely; the store still holds the message.
	f.mr.FlushAll()

	filter := repository.ConversationFilter{ViewerID: 1, CounterpartID: 2}
	page, err := f.history.GetHistory(filter, 1, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != msg.ID {
		t.Fatalf("fallback page = %+v, want the stored message", page.Messages)
	}
}

func TestGetHistoryPromotesNonHotBodies(t *testing.T) {
	f := newHistoryFixture(t)
	now := time.Now()
	msg := f.sendPrivate(t, 1, 2, "aging", now.Add(-48*time.Hour))

	// Relocate the body and index entry to the frequent tier, as a sweep
	// would have.
	bk := cache.HistoryBaseKey(cache.ScopeUser, 1, 2)
	data, _ := f.redis.Get(cache.BodyKey(cache.TierHot, bk, msg.ID))
	if err := f.redis.Set(cache.BodyKey(cache.TierFrequent, bk, msg.ID), data, cache.FrequentTTL); err != nil {
		t.Fatalf("seed frequent: %v", err)
	}
	if err := f.redis.ZAdd(cache.IndexKey(cache.TierFrequent, bk), float64(msg.SentAt.UnixMilli()), msg.ID); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	if err := f.redis.Delete(cache.BodyKey(cache.TierHot, bk, msg.ID)); err != nil {
		t.Fatalf("clear hot body: %v", err)
	}
	if err := f.redis.ZRem(cache.IndexKey(cache.TierHot, bk), msg.ID); err != nil {
		t.Fatalf("clear hot index: %v", err)
	}

	filter := repository.ConversationFilter{ViewerID: 1, CounterpartID: 2}
	page, err := f.history.GetHistory(filter, 1, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("page size = %d, want 1", len(page.Messages))
	}

	if !f.mr.Exists(cache.BodyKey(cache.TierHot, bk, msg.ID)) {
		t.Error("read hit should have promoted the body to hot")
	}
	if f.mr.Exists(cache.BodyKey(cache.TierFrequent, bk, msg.ID)) {
		t.Error("promotion should have cleaned the frequent copy")
	}
}

func TestGetHistoryRedactsTombstones(t *testing.T) {
	f := newHistoryFixture(t)
	now := time.Now()
	f.sendPrivate(t, 1, 2, "keep me", now.Add(-2*time.Minute))
	deleted := f.sendPrivate(t, 1, 2, "secret", now.Add(-time.Minute))

	deletes := NewDeleteService(f.redis, f.msgRepo, f.userRepo, f.grpRepo)
	if err := deletes.Delete(deleted.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Force the store path so the tombstoned row is part of the page.
	f.mr.FlushAll()

	filter := repository.ConversationFilter{ViewerID: 2, CounterpartID: 1}
	page, err := f.history.GetHistory(filter, 1, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Messages))
	}

	redacted := false
	for _, msg := range page.Messages {
		if msg.ID != deleted.ID {
			continue
		}
		redacted = true
		content := msg.Body.Payload.(models.TextPayload).Content
		if content != "Message recalled" {
			t.Errorf("redacted content = %q, want recall notice", content)
		}
	}
	if !redacted {
		t.Error("tombstoned message missing from the page")
	}
}

func TestIndexTrimsToRetainedBound(t *testing.T) {
	f := newHistoryFixture(t)
	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < MaxRetainedPerIndex+10; i++ {
		f.sendPrivate(t, 1, 2, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second))
	}

	bk := cache.HistoryBaseKey(cache.ScopeUser, 1, 2)
	n, err := f.redis.ZCard(cache.IndexKey(cache.TierHot, bk))
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if n != MaxRetainedPerIndex {
		t.Errorf("index size = %d, want %d", n, MaxRetainedPerIndex)
	}
}
