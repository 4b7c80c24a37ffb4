// internal/service/ingest/dedup_test.go

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
)

type fakeDedupLookup struct {
	byContentHash    map[string]*record.TrendRecord
	bySimilarityHash map[string][]record.TrendRecord
	exactCalls       int
	similarityCalls  int
	err              error
}

func (f *fakeDedupLookup) FindByContentHash(ctx context.Context, contentHash string) (*record.TrendRecord, error) {
	f.exactCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byContentHash[contentHash], nil
}

func (f *fakeDedupLookup) FindBySimilarityHash(ctx context.Context, similarityHash string, limit int) ([]record.TrendRecord, error) {
	f.similarityCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bySimilarityHash[similarityHash], nil
}

func testDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		SimilarityThreshold: 0.8,
		CacheMaxAge:         time.Hour,
		CacheSweepInterval:  time.Hour,
		MaxCandidates:       20,
	}
}

func newTestDeduplicator(store DedupLookup) *Deduplicator {
	cfg := testDedupConfig()
	return NewDeduplicator(NewRecentHashCache(cfg), store, cfg, nil, zerolog.Nop())
}

func TestJaccard(t *testing.T) {
	a := wordSet("bitcoin hits new high today")
	b := wordSet("bitcoin hits new high today")
	assert.Equal(t, 1.0, Jaccard(a, b))

	c := wordSet("completely unrelated words here")
	assert.Equal(t, 0.0, Jaccard(a, c))

	assert.Equal(t, 0.0, Jaccard(nil, nil))
}

func TestDedupCacheHit(t *testing.T) {
	store := &fakeDedupLookup{}
	d := newTestDeduplicator(store)
	d.Remember("hash-1", "existing-id")

	result, err := d.Check(context.Background(), &record.TrendRecord{ContentHash: "hash-1"})
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "existing-id", result.ExistingID)
	assert.Equal(t, 1.0, result.SimilarityScore)
	assert.Zero(t, store.exactCalls)
}

func TestDedupExactStoreHit(t *testing.T) {
	store := &fakeDedupLookup{
		byContentHash: map[string]*record.TrendRecord{
			"hash-1": {ID: "stored-id", ContentHash: "hash-1"},
		},
	}
	d := newTestDeduplicator(store)

	result, err := d.Check(context.Background(), &record.TrendRecord{ContentHash: "hash-1"})
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "stored-id", result.ExistingID)
	assert.Equal(t, 1.0, result.SimilarityScore)

	// The store hit populates the cache for next time.
	_, err = d.Check(context.Background(), &record.TrendRecord{ContentHash: "hash-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.exactCalls)
}

func TestDedupNearDuplicate(t *testing.T) {
	existing := record.TrendRecord{
		ID:      "near-id",
		Title:   "Bitcoin surges past record levels amid strong demand",
		Summary: "The cryptocurrency climbed again as institutional buyers kept accumulating.",
	}
	store := &fakeDedupLookup{
		bySimilarityHash: map[string][]record.TrendRecord{
			"bucket": {existing},
		},
	}
	d := newTestDeduplicator(store)

	rec := &record.TrendRecord{
		ContentHash:    "other-hash",
		SimilarityHash: "bucket",
		Title:          "Bitcoin surges past record levels amid strong demand",
		Summary:        "The cryptocurrency climbed again as institutional buyers kept accumulating.",
	}

	result, err := d.Check(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "near-id", result.ExistingID)
	assert.Greater(t, result.SimilarityScore, 0.8)
}

func TestDedupBelowThresholdIsNotDuplicate(t *testing.T) {
	existing := record.TrendRecord{
		ID:      "far-id",
		Title:   "Local bakery wins regional award",
		Summary: "Judges praised the sourdough and the seasonal pastry selection.",
	}
	store := &fakeDedupLookup{
		bySimilarityHash: map[string][]record.TrendRecord{
			"bucket": {existing},
		},
	}
	d := newTestDeduplicator(store)

	rec := &record.TrendRecord{
		ContentHash:    "other-hash",
		SimilarityHash: "bucket",
		Title:          "Satellite launch postponed after weather warning",
		Summary:        "Mission control pushed the window by a day citing high winds.",
	}

	result, err := d.Check(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
}

func TestDedupPropagatesStoreError(t *testing.T) {
	store := &fakeDedupLookup{err: assert.AnError}
	d := newTestDeduplicator(store)

	_, err := d.Check(context.Background(), &record.TrendRecord{ContentHash: "h"})
	assert.Error(t, err)
}
