package cache

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/520Girl/socket-chat/internal/observability"
)

// DefaultDowngradeInterval is the hot-sweep period; the frequent sweep runs
// at twice this period.
const DefaultDowngradeInterval = time.Hour

// DowngradeScheduler ages cache entries across tier boundaries in the
// background: hot records older than the hot window move to frequent,
// frequent records older than the frequent window move to cold. Each sweep
// crosses at most one boundary per record per run.
type DowngradeScheduler struct {
	redis    *RedisCache
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
}

func NewDowngradeScheduler(redis *RedisCache, interval time.Duration) *DowngradeScheduler {
	if interval <= 0 {
		interval = DefaultDowngradeInterval
	}
	return &DowngradeScheduler{
		redis:    redis,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// SetClock overrides the scheduler's clock. Tests only.
func (d *DowngradeScheduler) SetClock(now func() time.Time) { d.now = now }

// Start launches the two sweep loops. Sweep errors are logged per iteration
// and never stop the loops.
func (d *DowngradeScheduler) Start() {
	go d.loop(d.interval, d.SweepHot)
	go d.loop(2*d.interval, d.SweepFrequent)
	log.Printf("[downgrade] scheduler started (hot every %v, frequent every %v)", d.interval, 2*d.interval)
}

func (d *DowngradeScheduler) Stop() {
	close(d.stop)
}

func (d *DowngradeScheduler) loop(every time.Duration, sweep func() error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if err := sweep(); err != nil {
				log.Printf("[downgrade] sweep failed: %v", err)
			}
		}
	}
}

// SweepHot moves hot records past the hot window into the frequent tier.
func (d *DowngradeScheduler) SweepHot() error {
	return d.sweep(TierHot, TierFrequent, HotWindow)
}

// SweepFrequent moves frequent records past the frequent window into the
// cold tier.
func (d *DowngradeScheduler) SweepFrequent() error {
	return d.sweep(TierFrequent, TierCold, FrequentWindow)
}

func (d *DowngradeScheduler) sweep(from, to Tier, window time.Duration) error {
	keys, err := d.redis.ScanKeys(string(from) + ":*")
	if err != nil {
		return err
	}

	// The tier namespace holds body entries and the sorted indices; only
	// bodies are aged, their index membership follows them.
	bodies := keys[:0]
	for _, key := range keys {
		if !strings.HasSuffix(key, ":zset") {
			bodies = append(bodies, key)
		}
	}
	if len(bodies) == 0 {
		return nil
	}

	ctx := d.redis.Context()
	fetch := d.redis.Pipeline()
	gets := make([]*redis.StringCmd, len(bodies))
	for i, key := range bodies {
		gets[i] = fetch.Get(ctx, key)
	}
	// Exec returns the first command error; per-key results are inspected
	// individually below.
	_, _ = fetch.Exec(ctx)

	threshold := d.now()
	type move struct {
		sourceKey string
		convKey   string
		messageID uint
		rec       Record
	}
	var moves []move
	for i, key := range bodies {
		data, err := gets[i].Bytes()
		if err == redis.Nil || len(data) == 0 {
			continue // expired between scan and fetch
		}
		if err != nil {
			log.Printf("[downgrade] fetch %s failed: %v", key, err)
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			log.Printf("[downgrade] corrupt record at %s, skipping: %v", key, err)
			continue
		}
		if rec.Timestamp == 0 {
			log.Printf("[downgrade] record at %s has no timestamp, leaving in place", key)
			continue
		}
		if rec.Age(threshold) < window {
			continue
		}
		convKey, messageID, ok := splitBodyKey(from, key)
		if !ok {
			log.Printf("[downgrade] unrecognized key shape %s, leaving in place", key)
			continue
		}
		moves = append(moves, move{sourceKey: key, convKey: convKey, messageID: messageID, rec: rec})
	}
	if len(moves) == 0 {
		return nil
	}

	// Write-before-delete: the destination write lands first so a failure
	// leaves the source entry intact, never losing the record.
	write := d.redis.Pipeline()
	writeCmds := make([]*redis.StatusCmd, len(moves))
	for i, mv := range moves {
		data, err := mv.rec.Encode()
		if err != nil {
			log.Printf("[downgrade] encode %s failed: %v", mv.sourceKey, err)
			continue
		}
		writeCmds[i] = write.Set(ctx, BodyKey(to, mv.convKey, mv.messageID), data, to.TTL())
		// Cold keeps bodies only; reads never page through a cold index.
		if to != TierCold {
			write.ZAdd(ctx, IndexKey(to, mv.convKey), redis.Z{Score: float64(mv.rec.SentAt), Member: mv.messageID})
		}
	}
	_, _ = write.Exec(ctx)

	cleanup := d.redis.Pipeline()
	moved := 0
	for i, mv := range moves {
		if writeCmds[i] == nil || writeCmds[i].Err() != nil {
			if writeCmds[i] != nil {
				log.Printf("[downgrade] destination write for %s failed, keeping source: %v", mv.sourceKey, writeCmds[i].Err())
			}
			continue
		}
		cleanup.Del(ctx, mv.sourceKey)
		cleanup.ZRem(ctx, IndexKey(from, mv.convKey), mv.messageID)
		observability.Downgrade(string(from))
		moved++
	}
	if moved > 0 {
		if _, err := cleanup.Exec(ctx); err != nil {
			log.Printf("[downgrade] source cleanup failed: %v", err)
		}
		log.Printf("[downgrade] moved %d records %s -> %s", moved, from, to)
	}
	return nil
}

// splitBodyKey parses "{tier}:{conv...}:{messageId}" into the tier-less
// conversation stem and message id.
func splitBodyKey(tier Tier, key string) (string, uint, bool) {
	base := strings.TrimPrefix(key, string(tier)+":")
	idx := strings.LastIndex(base, ":")
	if idx < 0 {
		return "", 0, false
	}
	id, err := strconv.ParseUint(base[idx+1:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return base[:idx], uint(id), true
}
