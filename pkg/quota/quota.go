// Package quota tracks quota-exhaustion and anti-automation blocks across
// pipeline runs. Once one run trips the circuit breaker, subsequent runs for
// the same deployment consult the tracker and stop dispatching detail calls
// until the block expires, instead of burning the remaining quota into a ban.
package quota

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/logging"
)

// Prometheus metrics for quota state.
var (
	quotaTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_quota_trips_total",
		Help: "Total circuit breaker trips recorded by reason",
	}, []string{"reason"})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resdex_quota_blocks_total",
		Help: "Total runs blocked by a previously recorded quota trip",
	})
)

// RedisKeyBlock is the key under which the active block is stored.
const RedisKeyBlock = "resdex:quota:block"

// DefaultBlockTTL is how long a recorded trip keeps blocking new runs.
const DefaultBlockTTL = 15 * time.Minute

// Block records one circuit breaker trip.
type Block struct {
	Reason    string    `json:"reason"`
	TrippedAt time.Time `json:"tripped_at"`
	ResetAt   time.Time `json:"reset_at"`
}

// Active reports whether the block still applies.
func (b *Block) Active(now time.Time) bool {
	return b != nil && now.Before(b.ResetAt)
}

// Store persists the current block. Implementations must treat a missing
// block as (nil, nil).
type Store interface {
	Get(ctx context.Context) (*Block, error)
	Set(ctx context.Context, b *Block) error
}

// MemoryStore keeps the block in process memory. It is the default when no
// Redis endpoint is configured; cross-run blocking then only covers runs
// within the same process.
type MemoryStore struct {
	mu    sync.Mutex
	block *Block
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = b
	return nil
}

// RedisStore shares the block across processes via Redis, so a trip in one
// replica halts the others.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context) (*Block, error) {
	raw, err := s.redis.Get(ctx, RedisKeyBlock).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var b Block
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, b *Block) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	ttl := time.Until(b.ResetAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.redis.Set(ctx, RedisKeyBlock, payload, ttl).Err()
}

// Tracker gates runs on the recorded quota state.
type Tracker struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewTracker creates a tracker over the given store. A zero ttl uses
// DefaultBlockTTL.
func NewTracker(store Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultBlockTTL
	}
	return &Tracker{
		store:  store,
		ttl:    ttl,
		logger: logging.NewLogger("quota"),
	}
}

// Blocked reports whether an active block exists and its reason. Store
// errors fail open: a broken store never halts a run by itself.
func (t *Tracker) Blocked(ctx context.Context) (bool, string) {
	block, err := t.store.Get(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Quota state lookup failed, allowing run")
		return false, ""
	}
	if !block.Active(time.Now()) {
		return false, ""
	}

	quotaBlocksTotal.Inc()
	t.logger.Warn().
		Str("reason", block.Reason).
		Time("reset_at", block.ResetAt).
		Msg("Run blocked by recorded quota trip")
	return true, block.Reason
}

// Trip records a circuit breaker trip so later runs stop early.
func (t *Tracker) Trip(ctx context.Context, reason string) {
	now := time.Now()
	block := &Block{
		Reason:    reason,
		TrippedAt: now,
		ResetAt:   now.Add(t.ttl),
	}

	quotaTripsTotal.WithLabelValues(reason).Inc()
	if err := t.store.Set(ctx, block); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to record quota trip")
		return
	}

	t.logger.Error().
		Str("reason", reason).
		Time("reset_at", block.ResetAt).
		Msg("Quota trip recorded")
}
