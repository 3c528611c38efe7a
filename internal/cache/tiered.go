package cache

import (
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/520Girl/socket-chat/internal/observability"
)

// Tier is a cache temperature class. Reads probe hottest-first.
type Tier string

const (
	TierHot      Tier = "hot"
	TierFrequent Tier = "frequent"
	TierCold     Tier = "cold"
)

const (
	// Retention windows: a record younger than HotWindow belongs in hot, a
	// record younger than FrequentWindow belongs in frequent, anything
	// older is cold.
	HotWindow      = 24 * time.Hour
	FrequentWindow = 7 * 24 * time.Hour

	HotTTL      = 24 * time.Hour
	FrequentTTL = 7 * 24 * time.Hour
	// Cold is a short-lived read accelerator, never authoritative storage.
	ColdTTL = time.Hour
)

var probeOrder = []Tier{TierHot, TierFrequent, TierCold}

// TTL returns the expiry applied to entries written into the tier.
func (t Tier) TTL() time.Duration {
	switch t {
	case TierHot:
		return HotTTL
	case TierFrequent:
		return FrequentTTL
	default:
		return ColdTTL
	}
}

// TierForAge selects the tier a record of the given age belongs to at write
// time.
func TierForAge(age time.Duration) Tier {
	switch {
	case age <= HotWindow:
		return TierHot
	case age <= FrequentWindow:
		return TierFrequent
	default:
		return TierCold
	}
}

// Record is the envelope every cached body travels in. Timestamp is the
// tier-age clock (refreshed on promotion); SentAt is the immutable sort score.
type Record struct {
	Timestamp int64  `msgpack:"timestamp"` // unix milliseconds
	SentAt    int64  `msgpack:"sent_at"`   // unix milliseconds
	Body      []byte `msgpack:"body"`
}

// NewRecord wraps a serialized body stamped with its send time.
func NewRecord(body []byte, sentAt time.Time) Record {
	ms := sentAt.UnixMilli()
	return Record{Timestamp: ms, SentAt: ms, Body: body}
}

func (r Record) Encode() ([]byte, error) {
	return msgpack.Marshal(r)
}

func DecodeRecord(data []byte) (Record, error) {
	var r Record
	err := msgpack.Unmarshal(data, &r)
	return r, err
}

// Age is the record's distance from now on the tier clock.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.Timestamp))
}

// TieredStore is a put/get/promote facade over the three temperature tiers.
type TieredStore struct {
	redis *RedisCache
	now   func() time.Time
}

func NewTieredStore(redis *RedisCache) *TieredStore {
	return &TieredStore{redis: redis, now: time.Now}
}

// SetClock overrides the store's clock. Tests only.
func (s *TieredStore) SetClock(now func() time.Time) { s.now = now }

// Put writes a record under the tier its age-at-write selects and returns
// that tier.
func (s *TieredStore) Put(baseKey string, rec Record) (Tier, error) {
	tier := TierForAge(rec.Age(s.now()))
	data, err := rec.Encode()
	if err != nil {
		return tier, err
	}
	return tier, s.redis.Set(TierKey(tier, baseKey), data, tier.TTL())
}

// Get probes hot, then frequent, then cold and returns the first hit with its
// tier. Backend errors and corrupt entries degrade to the next tier; a total
// miss returns ok=false.
func (s *TieredStore) Get(baseKey string) (Record, Tier, bool) {
	for _, tier := range probeOrder {
		data, err := s.redis.Get(TierKey(tier, baseKey))
		if err != nil {
			log.Printf("[cache] %s tier read failed for %s: %v", tier, baseKey, err)
			continue
		}
		if data == nil {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			log.Printf("[cache] corrupt record at %s:%s, skipping: %v", tier, baseKey, err)
			continue
		}
		observability.CacheHit(string(tier))
		return rec, tier, true
	}
	observability.CacheMiss()
	return Record{}, "", false
}

// Promote moves a record read from a non-hot tier into hot: the body is
// rewritten with a refreshed tier clock, the message id is relinked into the
// hot sorted index, and only then is the source tier cleaned up. Promoting an
// already-hot record is a no-op.
func (s *TieredStore) Promote(convKey string, messageID uint, rec Record, from Tier) error {
	if from == TierHot || from == "" {
		return nil
	}
	rec.Timestamp = s.now().UnixMilli()
	data, err := rec.Encode()
	if err != nil {
		return err
	}

	ctx := s.redis.Context()
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, BodyKey(TierHot, convKey, messageID), data, HotTTL)
	pipe.ZAdd(ctx, IndexKey(TierHot, convKey), redis.Z{Score: float64(rec.SentAt), Member: messageID})
	pipe.Del(ctx, BodyKey(from, convKey, messageID))
	pipe.ZRem(ctx, IndexKey(from, convKey), messageID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	observability.Promotion()
	return nil
}
