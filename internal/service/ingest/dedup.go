// internal/service/ingest/dedup.go

package ingest

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
	"trendwire/internal/observe"
)

// RecentHashCache remembers content hashes seen by this process. It is an
// optimization only; the storage uniqueness constraint is the correctness
// backstop under concurrent writers.
type RecentHashCache struct {
	cache *gocache.Cache
}

// NewRecentHashCache creates a recent-hash cache with age-based eviction.
func NewRecentHashCache(cfg config.DedupConfig) *RecentHashCache {
	return &RecentHashCache{
		cache: gocache.New(cfg.CacheMaxAge, cfg.CacheSweepInterval),
	}
}

// Lookup returns the record id previously seen for this content hash.
func (c *RecentHashCache) Lookup(contentHash string) (string, bool) {
	if id, found := c.cache.Get(contentHash); found {
		return id.(string), true
	}
	return "", false
}

// Remember associates a content hash with a stored record id.
func (c *RecentHashCache) Remember(contentHash, id string) {
	c.cache.SetDefault(contentHash, id)
}

// Len returns the number of cached hashes.
func (c *RecentHashCache) Len() int {
	return c.cache.ItemCount()
}

// DedupLookup is the slice of the repository the deduplicator needs.
type DedupLookup interface {
	FindByContentHash(ctx context.Context, contentHash string) (*record.TrendRecord, error)
	FindBySimilarityHash(ctx context.Context, similarityHash string, limit int) ([]record.TrendRecord, error)
}

// DedupResult reports whether a record duplicates stored content.
type DedupResult struct {
	IsDuplicate     bool    `json:"is_duplicate"`
	ExistingID      string  `json:"existing_id,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
}

// Deduplicator detects exact and near duplicates. Checks short-circuit in
// order: in-process cache, exact store lookup, similarity-bucket candidates
// scored by Jaccard word overlap.
type Deduplicator struct {
	cache   *RecentHashCache
	store   DedupLookup
	config  config.DedupConfig
	metrics *observe.Metrics
	logger  zerolog.Logger
}

// NewDeduplicator creates a new deduplicator. metrics may be nil.
func NewDeduplicator(cache *RecentHashCache, store DedupLookup, cfg config.DedupConfig, metrics *observe.Metrics, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		cache:   cache,
		store:   store,
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Check runs the duplicate checks for a normalized record.
func (d *Deduplicator) Check(ctx context.Context, rec *record.TrendRecord) (DedupResult, error) {
	if id, found := d.cache.Lookup(rec.ContentHash); found {
		if d.metrics != nil {
			d.metrics.DedupCacheHits.Inc()
		}
		return DedupResult{IsDuplicate: true, ExistingID: id, SimilarityScore: 1.0}, nil
	}

	existing, err := d.store.FindByContentHash(ctx, rec.ContentHash)
	if err != nil {
		return DedupResult{}, err
	}
	if existing != nil {
		d.cache.Remember(rec.ContentHash, existing.ID)
		return DedupResult{IsDuplicate: true, ExistingID: existing.ID, SimilarityScore: 1.0}, nil
	}

	candidates, err := d.store.FindBySimilarityHash(ctx, rec.SimilarityHash, d.config.MaxCandidates)
	if err != nil {
		return DedupResult{}, err
	}

	words := wordSet(rec.Title + " " + rec.Summary)
	var best record.TrendRecord
	bestScore := 0.0
	for i := range candidates {
		score := Jaccard(words, wordSet(candidates[i].Title+" "+candidates[i].Summary))
		if score > bestScore {
			bestScore = score
			best = candidates[i]
		}
	}

	if bestScore > d.config.SimilarityThreshold {
		d.logger.Debug().
			Str("record_id", rec.ID).
			Str("existing_id", best.ID).
			Float64("similarity", bestScore).
			Msg("near-duplicate detected")
		return DedupResult{IsDuplicate: true, ExistingID: best.ID, SimilarityScore: bestScore}, nil
	}

	return DedupResult{}, nil
}

// Remember records a freshly stored content hash in the in-process cache.
func (d *Deduplicator) Remember(contentHash, id string) {
	d.cache.Remember(contentHash, id)
}

// Jaccard computes set similarity: |intersection| / |union|.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
