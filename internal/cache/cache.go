// Package cache provides a similarity-keyed cache of previously good
// worker results with quality-weighted admission and least-accessed eviction.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/textsim"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

const (
	// DefaultCapacity is the default number of admitted entries retained.
	DefaultCapacity = 1000
	// DefaultSimilarityThreshold is the minimum Jaccard score for a
	// similarity-based hit.
	DefaultSimilarityThreshold = 0.9
	// admissionBar is the minimum rolling success rate and quality an entry
	// needs before it becomes retrievable.
	admissionBar = 0.8
	// evictFraction is the share of capacity removed when over capacity.
	evictFraction = 0.1
)

// Entry is an admitted cache entry.
type Entry struct {
	Worker      string
	Query       string
	Artifact    string
	StoredAt    time.Time
	SuccessRate float64
	Quality     float64

	// queryTokens is the precomputed token set for similarity scoring.
	queryTokens map[string]struct{}
}

// rolling accumulates observations for one key across store calls.
type rolling struct {
	count      int
	successSum int
	qualitySum float64
}

// Cache is the process-wide result cache. All methods are safe for
// concurrent use.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	threshold float64
	entries   map[string]*Entry
	access    map[string]int
	stats     map[string]*rolling
	hits      int
	misses    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of admitted entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithSimilarityThreshold sets the minimum similarity for fallback lookups.
func WithSimilarityThreshold(t float64) Option {
	return func(c *Cache) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		capacity:  DefaultCapacity,
		threshold: DefaultSimilarityThreshold,
		entries:   make(map[string]*Entry),
		access:    make(map[string]int),
		stats:     make(map[string]*rolling),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fingerprint derives the stable exact-lookup key for a worker and query.
func Fingerprint(worker, query string) string {
	sum := md5.Sum([]byte(worker + ":" + normalize(query)))
	return hex.EncodeToString(sum[:])
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Lookup returns the cached artifact for the worker and query. Exact
// fingerprint match is tried first; on miss, entries for the same worker are
// scored by token-set Jaccard similarity and the best match at or above the
// threshold is returned.
func (c *Cache) Lookup(worker, query string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Fingerprint(worker, query)
	if entry, ok := c.entries[key]; ok {
		c.access[key]++
		c.hits++
		return entry, true
	}

	queryTokens := textsim.Tokens(query)
	bestScore := 0.0
	bestKey := ""
	for k, entry := range c.entries {
		if entry.Worker != worker {
			continue
		}
		score := textsim.JaccardSets(queryTokens, entry.queryTokens)
		if score >= c.threshold && score > bestScore {
			bestScore = score
			bestKey = k
		}
	}

	if bestKey != "" {
		c.access[bestKey]++
		c.hits++
		log.Printf("[cache] similar hit for %s (similarity: %.2f)", worker, bestScore)
		return c.entries[bestKey], true
	}

	c.misses++
	return nil, false
}

// Store records an observation for the (worker, query) key and admits or
// refreshes the retrievable entry once the rolling success rate and quality
// both clear the admission bar. Entries are overwritten as observations
// accrue; eviction runs when the admitted set exceeds capacity.
func (c *Cache) Store(worker, query, artifact string, success bool, quality float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Fingerprint(worker, query)
	r, ok := c.stats[key]
	if !ok {
		r = &rolling{}
		c.stats[key] = r
	}
	r.count++
	if success {
		r.successSum++
	}
	r.qualitySum += quality

	successRate := float64(r.successSum) / float64(r.count)
	avgQuality := r.qualitySum / float64(r.count)
	if successRate < admissionBar || avgQuality < admissionBar {
		return
	}

	c.entries[key] = &Entry{
		Worker:      worker,
		Query:       query,
		Artifact:    artifact,
		StoredAt:    time.Now(),
		SuccessRate: successRate,
		Quality:     avgQuality,
		queryTokens: textsim.Tokens(query),
	}

	if len(c.entries) > c.capacity {
		c.evictLeastAccessedLocked()
	}
}

// evictLeastAccessedLocked removes the least-accessed decile of capacity,
// deleting each victim from the entry, access, and stats maps together.
// Caller must hold c.mu.
func (c *Cache) evictLeastAccessedLocked() {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.access[keys[i]] < c.access[keys[j]]
	})

	remove := int(float64(c.capacity) * evictFraction)
	if remove < 1 {
		remove = 1
	}
	if remove > len(keys) {
		remove = len(keys)
	}

	for _, k := range keys[:remove] {
		delete(c.entries, k)
		delete(c.access, k)
		delete(c.stats, k)
	}
	log.Printf("[cache] evicted %d least-accessed entries (size now %d)", remove, len(c.entries))
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, n := range c.access {
		total += n
	}
	return models.CacheStats{
		Size:          len(c.entries),
		TotalAccesses: total,
		Hits:          c.hits,
		Misses:        c.misses,
	}
}

// Size returns the number of admitted entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
