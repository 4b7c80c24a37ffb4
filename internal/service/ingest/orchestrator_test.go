// internal/service/ingest/orchestrator_test.go

package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
)

// memoryStore is an in-memory RecordStore for pipeline tests.
type memoryStore struct {
	mu            sync.Mutex
	byContentHash map[string]*record.TrendRecord
	saveCalls     int
	saveErr       error
	raceDuplicate string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byContentHash: make(map[string]*record.TrendRecord)}
}

func (m *memoryStore) FindByContentHash(ctx context.Context, contentHash string) (*record.TrendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byContentHash[contentHash], nil
}

func (m *memoryStore) FindBySimilarityHash(ctx context.Context, similarityHash string, limit int) ([]record.TrendRecord, error) {
	return nil, nil
}

func (m *memoryStore) Save(ctx context.Context, rec *record.TrendRecord) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return "", false, m.saveErr
	}
	if m.raceDuplicate != "" {
		return m.raceDuplicate, true, nil
	}
	if existing, ok := m.byContentHash[rec.ContentHash]; ok {
		return existing.ID, true, nil
	}
	m.byContentHash[rec.ContentHash] = rec
	return rec.ID, false, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturePublisher) has(subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

func newTestOrchestrator(store RecordStore, publisher Publisher) *Orchestrator {
	dedupCfg := testDedupConfig()
	return NewOrchestrator(
		NewValidator(),
		NewNormalizer(zerolog.Nop()),
		NewDeduplicator(NewRecentHashCache(dedupCfg), store, dedupCfg, nil, zerolog.Nop()),
		NewAnomalyDetector(testAnomalyConfig()),
		NewQualityScorer(testQualityConfig()),
		store,
		publisher,
		nil,
		config.IngestConfig{BatchChunkSize: 10, BulkBatchSize: 100, EventsTopic: "record"},
		zerolog.Nop(),
	)
}

func ingestableCandidate(i int) *record.Candidate {
	return &record.Candidate{
		Platform: "twitter",
		Category: "technology",
		Title:    fmt.Sprintf("Chip makers rally on earnings round %d", i),
		Summary:  fmt.Sprintf("Semiconductor stocks climbed sharply after strong earnings, session %d.", i),
		SourceID: fmt.Sprintf("tw-%d", i),
		Source:   &record.SourceInfo{Reliability: 0.9},
	}
}

func TestIngestHappyPath(t *testing.T) {
	store := newMemoryStore()
	publisher := &capturePublisher{}
	o := newTestOrchestrator(store, publisher)

	result := o.Ingest(context.Background(), ingestableCandidate(1))

	assert.Equal(t, record.StatusIngested, result.Status)
	assert.NotEmpty(t, result.ID)
	require.NotNil(t, result.Record)
	assert.NotEmpty(t, result.Record.ContentHash)
	assert.Greater(t, result.Record.QualityScore, 0.0)
	assert.Greater(t, result.Metrics.ProcessingTime.Nanoseconds(), int64(0))
	assert.True(t, publisher.has("record.ingested"))
}

func TestIngestInvalidCandidate(t *testing.T) {
	store := newMemoryStore()
	publisher := &capturePublisher{}
	o := newTestOrchestrator(store, publisher)

	c := ingestableCandidate(1)
	c.Platform = ""

	result := o.Ingest(context.Background(), c)
	assert.Equal(t, record.StatusInvalid, result.Status)
	assert.NotEmpty(t, result.Errors)
	assert.Zero(t, store.saveCalls)
	assert.True(t, publisher.has("record.failed"))
}

func TestIngestExactDuplicate(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, nil)

	first := o.Ingest(context.Background(), ingestableCandidate(1))
	require.Equal(t, record.StatusIngested, first.Status)

	second := o.Ingest(context.Background(), ingestableCandidate(1))
	assert.Equal(t, record.StatusDuplicate, second.Status)
	assert.Equal(t, first.ID, second.DuplicateOf)
	assert.Equal(t, 1.0, second.SimilarityScore)
	assert.Equal(t, 1, store.saveCalls, "duplicate should be caught before storage")
}

func TestIngestStorageRaceResolvesToDuplicate(t *testing.T) {
	store := newMemoryStore()
	store.raceDuplicate = "winner-id"
	o := newTestOrchestrator(store, nil)

	result := o.Ingest(context.Background(), ingestableCandidate(1))
	assert.Equal(t, record.StatusDuplicate, result.Status)
	assert.Equal(t, "winner-id", result.DuplicateOf)
	assert.Equal(t, 1.0, result.SimilarityScore)
}

func TestIngestRejectsLowQuality(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, nil)

	c := &record.Candidate{
		Platform: "twitter",
		Category: "technology",
		Title:    "hm",
		Summary:  "short",
		SourceID: "tw-1",
		Source:   &record.SourceInfo{Reliability: 0.2},
	}

	result := o.Ingest(context.Background(), c)
	assert.Equal(t, record.StatusRejected, result.Status)
	assert.Contains(t, result.RejectionReason, "below minimum")
	assert.Zero(t, store.saveCalls)
}

func TestIngestRejectsCriticalAnomaly(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, nil)

	c := &record.Candidate{
		Platform:  "twitter",
		Category:  "technology",
		Title:     "crypto crypto crypto crypto crypto",
		Summary:   "crypto crypto crypto crypto crypto crypto",
		SourceID:  "tw-1",
		Timestamp: "2026-03-01T03:00:00Z",
		Source:    &record.SourceInfo{Reliability: 0.9},
		Entities: []record.CandidateEntity{
			{Name: "a", Type: "organization"},
			{Name: "b", Type: "organization"},
			{Name: "c", Type: "organization"},
			{Name: "d", Type: "organization"},
			{Name: "e", Type: "organization"},
		},
	}

	result := o.Ingest(context.Background(), c)
	assert.Equal(t, record.StatusRejected, result.Status)
	assert.Contains(t, result.RejectionReason, "critical")
	assert.Zero(t, store.saveCalls, "critical anomalies must never reach storage")
}

func TestIngestStorageErrorBecomesRejection(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = assert.AnError
	o := newTestOrchestrator(store, nil)

	result := o.Ingest(context.Background(), ingestableCandidate(1))
	assert.Equal(t, record.StatusRejected, result.Status)
	assert.Equal(t, "processing error", result.RejectionReason)
}

func TestIngestPanicContained(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, nil)
	o.SetSanitizer(func(c *record.Candidate) *record.Candidate {
		panic("boom")
	})

	result := o.Ingest(context.Background(), ingestableCandidate(1))
	assert.Equal(t, record.StatusRejected, result.Status)
	assert.Equal(t, "processing error", result.RejectionReason)
}

func TestIngestNilCandidate(t *testing.T) {
	o := newTestOrchestrator(newMemoryStore(), nil)
	result := o.Ingest(context.Background(), nil)
	assert.Equal(t, record.StatusInvalid, result.Status)
}

func TestIngestBatchPreservesOrder(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, nil)

	candidates := make([]*record.Candidate, 12)
	for i := range candidates {
		candidates[i] = ingestableCandidate(i)
	}
	// One invalid item must not abort its siblings.
	candidates[4] = &record.Candidate{Platform: "twitter"}

	results := o.IngestBatch(context.Background(), candidates)
	require.Len(t, results, 12)

	for i, result := range results {
		if i == 4 {
			assert.Equal(t, record.StatusInvalid, result.Status)
			continue
		}
		assert.Equal(t, record.StatusIngested, result.Status, "item %d", i)
		require.NotNil(t, result.Record, "item %d", i)
		assert.Equal(t, candidates[i].SourceID, result.Record.SourceID, "item %d", i)
	}
}

func TestIngestBatchEmpty(t *testing.T) {
	o := newTestOrchestrator(newMemoryStore(), nil)
	results := o.IngestBatch(context.Background(), nil)
	assert.Empty(t, results)
}

func TestStripControlCharacters(t *testing.T) {
	c := &record.Candidate{
		Title:   "tit\x00le",
		Summary: "sum\tmary\x07",
		Author:  "au\nthor",
	}

	out := StripControlCharacters(c)
	assert.Equal(t, "title", out.Title)
	assert.Equal(t, "sum\tmary", out.Summary)
	assert.Equal(t, "au\nthor", out.Author)
}
