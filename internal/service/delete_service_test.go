package service

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
)

type deleteFixture struct {
	deletes  *DeleteService
	msgRepo  *mockMessageRepo
	userRepo *mockUserRepo
	grpRepo  *mockGroupRepo
	redis    *cache.RedisCache
	mr       *miniredis.Miniredis
}

func newDeleteFixture(t *testing.T) *deleteFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })

	msgRepo := newMockMessageRepo()
	userRepo := newMockUserRepo(
		&models.User{ID: 1, Name: "sender"},
		&models.User{ID: 2, Name: "recipient"},
		&models.User{ID: 3, Name: "stranger"},
		&models.User{ID: 9, Name: "root", Role: "admin"},
	)
	grpRepo := newMockGroupRepo()
	return &deleteFixture{
		deletes:  NewDeleteService(rc, msgRepo, userRepo, grpRepo),
		msgRepo:  msgRepo,
		userRepo: userRepo,
		grpRepo:  grpRepo,
		redis:    rc,
		mr:       mr,
	}
}

func (f *deleteFixture) seedPrivate(t *testing.T) *models.Message {
	t.Helper()
	recipient := uint(2)
	msg := &models.Message{
		SenderID:    1,
		RecipientID: &recipient,
		Type:        models.TextMessage,
		Body:        models.NewBody(models.TextPayload{Content: "secret"}),
		SentAt:      time.Now(),
	}
	if err := f.msgRepo.Create(msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	return msg
}

func TestDeleteBySender(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)

	if err := f.deletes.Delete(msg.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	stored, _ := f.msgRepo.FindByID(msg.ID)
	if !stored.IsDeleted || stored.DeletedBy == nil || *stored.DeletedBy != 1 {
		t.Errorf("tombstone = %+v, want deleted by 1", stored)
	}
	if stored.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}
}

func TestDeleteByCounterpart(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)

	if err := f.deletes.Delete(msg.ID, 2); err != nil {
		t.Fatalf("Delete by counterpart: %v", err)
	}
	stored, _ := f.msgRepo.FindByID(msg.ID)
	if !stored.IsDeleted {
		t.Error("counterpart delete did not tombstone")
	}
}

func TestDeleteByStrangerDenied(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)

	err := f.deletes.Delete(msg.ID, 3)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	stored, _ := f.msgRepo.FindByID(msg.ID)
	if stored.IsDeleted {
		t.Error("denied delete must not mutate")
	}
}

func TestDeleteGroupRequiresAdmin(t *testing.T) {
	f := newDeleteFixture(t)
	groupID := uint(10)
	f.grpRepo.addMember(groupID, 1, models.RoleMember)
	f.grpRepo.addMember(groupID, 2, models.RoleMember)
	f.grpRepo.addMember(groupID, 9, models.RoleAdmin)

	msg := &models.Message{
		SenderID: 1,
		GroupID:  &groupID,
		Type:     models.TextMessage,
		Body:     models.NewBody(models.TextPayload{Content: "group secret"}),
		SentAt:   time.Now(),
	}
	if err := f.msgRepo.Create(msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.deletes.Delete(msg.ID, 2); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("plain member delete err = %v, want ErrPermissionDenied", err)
	}
	if err := f.deletes.Delete(msg.ID, 9); err != nil {
		t.Errorf("group admin delete: %v", err)
	}
}

func TestDeletePurgesEveryTier(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)

	// Seed cached copies under both viewpoints across tiers.
	for _, bk := range []string{
		cache.HistoryBaseKey(cache.ScopeUser, 1, 2),
		cache.HistoryBaseKey(cache.ScopeUser, 2, 1),
	} {
		for _, tier := range []cache.Tier{cache.TierHot, cache.TierFrequent, cache.TierCold} {
			if err := f.redis.Set(cache.BodyKey(tier, bk, msg.ID), []byte("cached"), tier.TTL()); err != nil {
				t.Fatalf("seed body: %v", err)
			}
		}
		if err := f.redis.ZAdd(cache.IndexKey(cache.TierHot, bk), 1, msg.ID); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}

	if err := f.deletes.Delete(msg.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, bk := range []string{
		cache.HistoryBaseKey(cache.ScopeUser, 1, 2),
		cache.HistoryBaseKey(cache.ScopeUser, 2, 1),
	} {
		for _, tier := range []cache.Tier{cache.TierHot, cache.TierFrequent, cache.TierCold} {
			if f.mr.Exists(cache.BodyKey(tier, bk, msg.ID)) {
				t.Errorf("body survived purge at %s:%s", tier, bk)
			}
		}
		if n, _ := f.redis.ZCard(cache.IndexKey(cache.TierHot, bk)); n != 0 {
			t.Errorf("index under %s still holds %d members", bk, n)
		}
	}
}

func TestRestoreRequiresAdmin(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)
	if err := f.deletes.Delete(msg.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := f.deletes.Restore(msg.ID, 1); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("sender restore err = %v, want ErrPermissionDenied", err)
	}
	if err := f.deletes.Restore(msg.ID, 9); err != nil {
		t.Fatalf("admin restore: %v", err)
	}

	stored, _ := f.msgRepo.FindByID(msg.ID)
	if stored.IsDeleted || stored.DeletedAt != nil || stored.DeletedBy != nil {
		t.Errorf("tombstone not cleared: %+v", stored)
	}
}

func TestRestoreNotDeleted(t *testing.T) {
	f := newDeleteFixture(t)
	msg := f.seedPrivate(t)

	if err := f.deletes.Restore(msg.ID, 9); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("err = %v, want ErrNotDeleted", err)
	}
}

func TestFilterForDisplayNotices(t *testing.T) {
	f := newDeleteFixture(t)
	now := time.Now()
	sender := uint(1)
	admin := uint(9)

	tests := []struct {
		name      string
		deletedBy *uint
		want      string
	}{
		{"recalled by sender", &sender, "Message recalled"},
		{"removed by admin", &admin, "Message removed by an admin"},
		{"unattributed", nil, "Message deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipient := uint(2)
			msg := models.Message{
				ID:          77,
				SenderID:    1,
				RecipientID: &recipient,
				Type:        models.ImageMessage,
				Body:        models.NewBody(models.ImagePayload{MediaURL: "http://x/y.png"}),
				SentAt:      now,
				IsDeleted:   true,
				DeletedAt:   &now,
				DeletedBy:   tt.deletedBy,
			}
			out := f.deletes.FilterForDisplay([]models.Message{msg}, 2)
			if out[0].Type != models.TextMessage {
				t.Errorf("type = %v, want text notice", out[0].Type)
			}
			got := out[0].Body.Payload.(models.TextPayload).Content
			if got != tt.want {
				t.Errorf("notice = %q, want %q", got, tt.want)
			}
		})
	}
}
