package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
)

func newPresenceFixture(t *testing.T) (*PresenceService, *mockUserRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })
	userRepo := newMockUserRepo(
		&models.User{ID: 1, Name: "alice"},
		&models.User{ID: 2, Name: "bob"},
	)
	return NewPresenceService(rc, userRepo), userRepo, mr
}

func TestConnectMarksOnline(t *testing.T) {
	presence, userRepo, _ := newPresenceFixture(t)

	sessionID, err := presence.Connect(1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if sessionID == "" {
		t.Fatal("empty session id")
	}

	online, err := presence.IsOnline(1)
	if err != nil || !online {
		t.Errorf("IsOnline = %v (err %v), want true", online, err)
	}
	if !userRepo.users[1].IsOnline {
		t.Error("persisted flag not set")
	}

	userID, ok := presence.ResolveSession(sessionID)
	if !ok || userID != 1 {
		t.Errorf("ResolveSession = (%d, %v), want (1, true)", userID, ok)
	}
}

func TestLapsedHeartbeatExpiresPassively(t *testing.T) {
	presence, _, mr := newPresenceFixture(t)

	sessionID, err := presence.Connect(1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	mr.FastForward(HeartbeatTimeout + time.Second)

	online, err := presence.IsOnline(1)
	if err != nil {
		t.Fatalf("IsOnline: %v", err)
	}
	if online {
		t.Error("user still online after heartbeat timeout")
	}
	if _, ok := presence.ResolveSession(sessionID); ok {
		t.Error("session resolvable after timeout")
	}
}

func TestHeartbeatExtendsSession(t *testing.T) {
	presence, _, mr := newPresenceFixture(t)

	sessionID, err := presence.Connect(1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	mr.FastForward(HeartbeatTimeout - 5*time.Second)
	if err := presence.Heartbeat(1, sessionID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	mr.FastForward(HeartbeatTimeout - 5*time.Second)

	online, err := presence.IsOnline(1)
	if err != nil || !online {
		t.Errorf("IsOnline = %v (err %v), want true after refresh", online, err)
	}
}

func TestHeartbeatRevivesLapsedSession(t *testing.T) {
	presence, _, mr := newPresenceFixture(t)

	sessionID, err := presence.Connect(1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	mr.FastForward(HeartbeatTimeout + time.Second)
	if online, _ := presence.IsOnline(1); online {
		t.Fatal("precondition: keys should have lapsed")
	}

	// The client kept pinging; the next heartbeat must recreate the keys,
	// not silently refresh nothing.
	if err := presence.Heartbeat(1, sessionID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	online, err := presence.IsOnline(1)
	if err != nil || !online {
		t.Errorf("IsOnline = %v (err %v), want true after post-lapse heartbeat", online, err)
	}
	if userID, ok := presence.ResolveSession(sessionID); !ok || userID != 1 {
		t.Errorf("ResolveSession = (%d, %v), want (1, true)", userID, ok)
	}
}

func TestDisconnectClearsImmediately(t *testing.T) {
	presence, userRepo, _ := newPresenceFixture(t)

	sessionID, err := presence.Connect(1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := presence.Disconnect(1, sessionID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	online, err := presence.IsOnline(1)
	if err != nil || online {
		t.Errorf("IsOnline = %v (err %v), want false", online, err)
	}
	if userRepo.users[1].IsOnline {
		t.Error("persisted flag still online")
	}
}

func TestOnlineUsersListsPersistedFlags(t *testing.T) {
	presence, _, _ := newPresenceFixture(t)

	if _, err := presence.Connect(1); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	users, err := presence.OnlineUsers()
	if err != nil {
		t.Fatalf("OnlineUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != 1 || users[0].Name != "alice" {
		t.Errorf("OnlineUsers = %+v, want alice only", users)
	}
}
