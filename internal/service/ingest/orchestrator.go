// internal/service/ingest/orchestrator.go

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
	"trendwire/internal/observe"
)

// RecordStore is the persistence surface the orchestrator depends on.
type RecordStore interface {
	DedupLookup

	// Save persists the record transactionally. When the content hash is
	// already present it returns the canonical id with duplicate=true
	// instead of an error.
	Save(ctx context.Context, rec *record.TrendRecord) (id string, duplicate bool, err error)
}

// Publisher delivers lifecycle events. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sanitizer transforms raw input before validation. The default is a
// control-character strip; callers may inject their own.
type Sanitizer func(*record.Candidate) *record.Candidate

// Orchestrator sequences the ingest pipeline per record: validate,
// normalize, deduplicate, detect anomalies, score, store.
type Orchestrator struct {
	validator  *Validator
	normalizer *Normalizer
	dedup      *Deduplicator
	anomalies  *AnomalyDetector
	quality    *QualityScorer
	store      RecordStore
	publisher  Publisher
	sanitize   Sanitizer
	metrics    *observe.Metrics
	config     config.IngestConfig
	logger     zerolog.Logger
}

// NewOrchestrator creates a new ingest orchestrator. publisher may be nil
// when no event sink is wired.
func NewOrchestrator(
	validator *Validator,
	normalizer *Normalizer,
	dedup *Deduplicator,
	anomalies *AnomalyDetector,
	quality *QualityScorer,
	store RecordStore,
	publisher Publisher,
	metrics *observe.Metrics,
	cfg config.IngestConfig,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		validator:  validator,
		normalizer: normalizer,
		dedup:      dedup,
		anomalies:  anomalies,
		quality:    quality,
		store:      store,
		publisher:  publisher,
		sanitize:   StripControlCharacters,
		metrics:    metrics,
		config:     cfg,
		logger:     logger,
	}
}

// SetSanitizer replaces the pre-validation input transform.
func (o *Orchestrator) SetSanitizer(s Sanitizer) {
	if s != nil {
		o.sanitize = s
	}
}

// Ingest runs one candidate through the full pipeline and reports the
// terminal outcome. It never returns an error: system failures surface as a
// rejected result.
func (o *Orchestrator) Ingest(ctx context.Context, c *record.Candidate) *record.IngestResult {
	start := time.Now()
	result := o.process(ctx, c)
	result.Metrics.ProcessingTime = time.Since(start)

	if o.metrics != nil {
		o.metrics.IngestTotal.WithLabelValues(string(result.Status)).Inc()
		o.metrics.ProcessingTime.Observe(result.Metrics.ProcessingTime.Seconds())
	}

	o.publishLifecycle(result)
	return result
}

// IngestBatch ingests candidates in input order, fanning out fixed-size
// chunks concurrently. One item's failure never aborts its siblings.
func (o *Orchestrator) IngestBatch(ctx context.Context, candidates []*record.Candidate) []*record.IngestResult {
	results := make([]*record.IngestResult, len(candidates))

	chunkSize := o.config.BatchChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}

	for offset := 0; offset < len(candidates); offset += chunkSize {
		end := offset + chunkSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = o.Ingest(ctx, candidates[idx])
			}(i)
		}
		wg.Wait()
	}

	return results
}

// process walks the ingest state machine. Any panic transitions straight to
// the rejected terminal state with a generic reason.
func (o *Orchestrator) process(ctx context.Context, c *record.Candidate) (result *record.IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Msg("ingest pipeline panic")
			result = &record.IngestResult{
				Status:          record.StatusRejected,
				RejectionReason: "processing error",
			}
		}
	}()

	if c == nil {
		return &record.IngestResult{
			Status: record.StatusInvalid,
			Errors: []string{"candidate is nil"},
		}
	}

	c = o.sanitize(c)

	// validating
	validationStart := time.Now()
	validation := o.validator.Validate(c)
	validationTime := time.Since(validationStart)
	if !validation.Valid {
		return &record.IngestResult{
			Status:  record.StatusInvalid,
			Errors:  validation.Errors,
			Metrics: record.IngestMetrics{ValidationTime: validationTime},
		}
	}

	// normalizing
	rec := o.normalizer.Normalize(c)

	// deduplicating
	dedupStart := time.Now()
	dup, err := o.dedup.Check(ctx, rec)
	dedupTime := time.Since(dedupStart)
	if err != nil {
		return o.systemFailure(rec.ID, "duplicate check failed", err, record.IngestMetrics{
			ValidationTime:    validationTime,
			DeduplicationTime: dedupTime,
		})
	}
	if dup.IsDuplicate {
		return &record.IngestResult{
			ID:              rec.ID,
			Status:          record.StatusDuplicate,
			DuplicateOf:     dup.ExistingID,
			SimilarityScore: dup.SimilarityScore,
			Metrics: record.IngestMetrics{
				ValidationTime:    validationTime,
				DeduplicationTime: dedupTime,
			},
		}
	}

	// detecting_anomalies
	rec.Anomalies = o.anomalies.Detect(c, rec)
	rec.AnomalyScore = MaxAnomalyScore(rec.Anomalies)
	if o.metrics != nil {
		for _, a := range rec.Anomalies {
			o.metrics.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		}
	}

	// scoring
	verdict := o.quality.Score(c, rec)
	rec.QualityScore = verdict.Score
	if !verdict.Passed {
		return &record.IngestResult{
			ID:              rec.ID,
			Status:          record.StatusRejected,
			RejectionReason: verdict.Reason,
			Metrics: record.IngestMetrics{
				ValidationTime:    validationTime,
				DeduplicationTime: dedupTime,
			},
		}
	}

	// storing
	storageStart := time.Now()
	id, duplicate, err := o.store.Save(ctx, rec)
	storageTime := time.Since(storageStart)
	if o.metrics != nil {
		o.metrics.StorageTime.Observe(storageTime.Seconds())
	}
	metrics := record.IngestMetrics{
		ValidationTime:    validationTime,
		DeduplicationTime: dedupTime,
		StorageTime:       storageTime,
	}
	if err != nil {
		return o.systemFailure(rec.ID, "storage failed", err, metrics)
	}
	if duplicate {
		// Lost the race to a concurrent writer; the unique constraint is
		// the authority.
		return &record.IngestResult{
			ID:              rec.ID,
			Status:          record.StatusDuplicate,
			DuplicateOf:     id,
			SimilarityScore: 1.0,
			Metrics:         metrics,
		}
	}

	o.dedup.Remember(rec.ContentHash, id)

	return &record.IngestResult{
		ID:      id,
		Status:  record.StatusIngested,
		Record:  rec,
		Metrics: metrics,
	}
}

// systemFailure logs the underlying error and reports a generic rejection.
func (o *Orchestrator) systemFailure(id, msg string, err error, metrics record.IngestMetrics) *record.IngestResult {
	o.logger.Error().Err(err).Str("record_id", id).Msg(msg)
	return &record.IngestResult{
		ID:              id,
		Status:          record.StatusRejected,
		RejectionReason: "processing error",
		Metrics:         metrics,
	}
}

// publishLifecycle emits record.ingested / record.failed events when a
// publisher is wired.
func (o *Orchestrator) publishLifecycle(result *record.IngestResult) {
	if o.publisher == nil {
		return
	}

	var subject string
	payload := map[string]interface{}{
		"id":     result.ID,
		"status": result.Status,
	}

	switch result.Status {
	case record.StatusIngested:
		subject = fmt.Sprintf("%s.ingested", o.config.EventsTopic)
		if result.Record != nil {
			payload["platform"] = result.Record.Platform
			payload["quality_score"] = result.Record.QualityScore
		}
	case record.StatusRejected, record.StatusInvalid:
		subject = fmt.Sprintf("%s.failed", o.config.EventsTopic)
		if result.RejectionReason != "" {
			payload["reason"] = result.RejectionReason
		}
		if len(result.Errors) > 0 {
			payload["errors"] = result.Errors
		}
	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := o.publisher.Publish(subject, data); err != nil {
		o.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish lifecycle event")
	}
}

// StripControlCharacters is the default pre-validation sanitizer.
func StripControlCharacters(c *record.Candidate) *record.Candidate {
	if c == nil {
		return nil
	}
	c.Title = stripControl(c.Title)
	c.Summary = stripControl(c.Summary)
	c.Author = stripControl(c.Author)
	return c
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
