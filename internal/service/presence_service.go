package service

import (
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

// HeartbeatTimeout is how long a session survives without a heartbeat before
// Redis expiry marks the user offline passively.
const HeartbeatTimeout = 30 * time.Second

// PresenceService tracks who is online through paired ephemeral keys: a
// forward key per user and a reverse key per session, both refreshed on every
// heartbeat. A stopped heartbeat needs no cleanup pass; the keys just lapse.
// The persisted online flag and lastActive back the bulk listing.
type PresenceService struct {
	redis    *cache.RedisCache
	userRepo repository.UserRepositoryInterface
	timeout  time.Duration
	now      func() time.Time
}

func NewPresenceService(redisCache *cache.RedisCache, userRepo repository.UserRepositoryInterface) *PresenceService {
	return &PresenceService{
		redis:    redisCache,
		userRepo: userRepo,
		timeout:  HeartbeatTimeout,
		now:      time.Now,
	}
}

// SetTimeout overrides the heartbeat timeout. Tests only.
func (s *PresenceService) SetTimeout(d time.Duration) { s.timeout = d }

// Connect registers a new session for the user and marks them online in both
// Redis and the store. Returns the session id the client must heartbeat with.
func (s *PresenceService) Connect(userID uint) (string, error) {
	sessionID := uuid.NewString()
	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, cache.OnlineKey(userID), sessionID, s.timeout)
	pipe.Set(ctx, cache.HeartbeatKey(sessionID), userID, s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	if err := s.userRepo.SetPresence(userID, true, sessionID, s.now()); err != nil {
		log.Printf("[presence] persisting online flag for user %d failed: %v", userID, err)
	}
	return sessionID, nil
}

// Heartbeat rewrites both session keys for another timeout window and
// touches the persisted lastActive. SET rather than EXPIRE: a heartbeat that
// arrives after the keys have lapsed must bring the session back, not no-op
// against keys that no longer exist.
func (s *PresenceService) Heartbeat(userID uint, sessionID string) error {
	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, cache.OnlineKey(userID), sessionID, s.timeout)
	pipe.Set(ctx, cache.HeartbeatKey(sessionID), userID, s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if err := s.userRepo.TouchLastActive(userID, s.now()); err != nil {
		log.Printf("[presence] touching lastActive for user %d failed: %v", userID, err)
	}
	return nil
}

// Disconnect removes both session keys immediately and flips the persisted
// flag, for clean shutdowns that should not wait out the timeout.
func (s *PresenceService) Disconnect(userID uint, sessionID string) error {
	if err := s.redis.Delete(cache.OnlineKey(userID), cache.HeartbeatKey(sessionID)); err != nil {
		return err
	}
	if err := s.userRepo.SetPresence(userID, false, "", s.now()); err != nil {
		log.Printf("[presence] persisting offline flag for user %d failed: %v", userID, err)
	}
	return nil
}

// IsOnline reports live presence from the forward key alone, so a lapsed
// heartbeat reads offline even before the persisted flag catches up.
func (s *PresenceService) IsOnline(userID uint) (bool, error) {
	return s.redis.Exists(cache.OnlineKey(userID))
}

// ResolveSession maps a session id back to its user, or false if the session
// has lapsed.
func (s *PresenceService) ResolveSession(sessionID string) (uint, bool) {
	data, err := s.redis.Get(cache.HeartbeatKey(sessionID))
	if err != nil || data == nil {
		return 0, false
	}
	userID, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(userID), true
}

// OnlineUsers lists every user whose persisted flag is online, as the slim
// listing projection.
func (s *PresenceService) OnlineUsers() ([]models.OnlineUser, error) {
	users, err := s.userRepo.ListOnline()
	if err != nil {
		return nil, err
	}
	out := make([]models.OnlineUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToOnlineUser())
	}
	return out, nil
}
