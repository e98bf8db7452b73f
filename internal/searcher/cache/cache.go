// Package cache memoizes search result pages. Keys embed a per-process
// namespace and the generation ID, so publishing a new generation makes every
// older entry unreachable and replicas never read each other's pages.
package cache

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/message-search/pkg/redis"
)

const keyPrefix = "search:"

// Backend stores result pages by key.
type Backend interface {
	Get(ctx context.Context, key string) (*executor.Result, bool)
	Set(ctx context.Context, key string, result *executor.Result)
}

// Purger is implemented by backends that can drop a namespace eagerly.
type Purger interface {
	Purge(ctx context.Context, namespace string) (int64, error)
}

type QueryCache struct {
	backend   Backend
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(backend Backend, m *metrics.Metrics) *QueryCache {
	if m == nil {
		m = metrics.NewNop()
	}
	return &QueryCache{
		backend:   backend,
		namespace: newNamespace(),
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

func newNamespace() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// GetOrCompute returns the cached page for (generation, query, limit,
// offset) or computes and stores it. Concurrent misses for the same key
// share one computation. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generationID uint64,
	query string,
	limit, offset int,
	compute func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	key := BuildKey(c.namespace, generationID, query, limit, offset)
	if res, ok := c.backend.Get(ctx, key); ok {
		c.metrics.CacheHitsTotal.Inc()
		return res, true, nil
	}
	c.metrics.CacheMissesTotal.Inc()
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.backend.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*executor.Result), false, nil
}

// Close drops this process's entries from backends that support it.
func (c *QueryCache) Close(ctx context.Context) {
	p, ok := c.backend.(Purger)
	if !ok {
		return
	}
	n, err := p.Purge(ctx, c.namespace)
	if err != nil {
		c.logger.Warn("cache purge failed", "namespace", c.namespace, "error", err)
		return
	}
	c.logger.Info("cache purged", "namespace", c.namespace, "keys_deleted", n)
}

// BuildKey derives a cache key. Token order and repetition do not change the
// matches, so "Table book" and "book table" share a key.
func BuildKey(namespace string, generationID uint64, query string, limit, offset int) string {
	terms := tokenizer.Tokenize(query)
	sort.Strings(terms)
	raw := fmt.Sprintf("%s|limit=%d|offset=%d", strings.Join(terms, ","), limit, offset)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:g%d:%x", keyPrefix, namespace, generationID, hash[:16])
}

// LRU is an in-process backend with per-entry expiry.
type LRU struct {
	entries *expirable.LRU[string, *executor.Result]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{entries: expirable.NewLRU[string, *executor.Result](size, nil, ttl)}
}

func (l *LRU) Get(_ context.Context, key string) (*executor.Result, bool) {
	return l.entries.Get(key)
}

func (l *LRU) Set(_ context.Context, key string, result *executor.Result) {
	l.entries.Add(key, result)
}

func (l *LRU) Len() int {
	return l.entries.Len()
}

// Redis shares cached pages between replicas. Failures degrade to misses.
type Redis struct {
	client *pkgredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client *pkgredis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache", "backend", "redis"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (*executor.Result, bool) {
	data, ok, err := r.client.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	res, err := decodeEntry(data)
	if err != nil {
		r.logger.Warn("cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return res, true
}

func (r *Redis) Set(ctx context.Context, key string, result *executor.Result) {
	data, err := encodeEntry(result)
	if err != nil {
		r.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Purge removes every page cached under namespace, across generations.
func (r *Redis) Purge(ctx context.Context, namespace string) (int64, error) {
	return r.client.FlushByPattern(ctx, keyPrefix+namespace+":*")
}

// redisEntry carries the fields a Result hides from API responses.
type redisEntry struct {
	GenerationID uint64           `json:"generation_id"`
	Terms        []string         `json:"terms"`
	Result       *executor.Result `json:"result"`
}

func encodeEntry(res *executor.Result) ([]byte, error) {
	return json.Marshal(redisEntry{
		GenerationID: res.GenerationID,
		Terms:        res.Terms,
		Result:       res,
	})
}

func decodeEntry(data []byte) (*executor.Result, error) {
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if entry.Result == nil {
		return nil, fmt.Errorf("cache entry has no result")
	}
	res := entry.Result
	res.GenerationID = entry.GenerationID
	res.Terms = entry.Terms
	if res.Results == nil {
		res.Results = []store.Record{}
	}
	return res, nil
}
