package record

import (
	"time"
)

// IngestStatus is the terminal state of one ingest attempt.
type IngestStatus string

const (
	StatusIngested  IngestStatus = "ingested"
	StatusDuplicate IngestStatus = "duplicate"
	StatusInvalid   IngestStatus = "invalid"
	StatusRejected  IngestStatus = "rejected"
)

// IngestMetrics carries per-stage timings for one ingest attempt.
type IngestMetrics struct {
	ProcessingTime    time.Duration `json:"processing_time"`
	ValidationTime    time.Duration `json:"validation_time"`
	DeduplicationTime time.Duration `json:"deduplication_time"`
	StorageTime       time.Duration `json:"storage_time"`
}

// IngestResult reports the outcome of ingesting a single candidate. Exactly
// one of the terminal statuses is set; none are retried by the pipeline.
type IngestResult struct {
	ID              string        `json:"id,omitempty"`
	Status          IngestStatus  `json:"status"`
	Record          *TrendRecord  `json:"record,omitempty"`
	Errors          []string      `json:"errors,omitempty"`
	DuplicateOf     string        `json:"duplicate_of,omitempty"`
	SimilarityScore float64       `json:"similarity_score,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	Metrics         IngestMetrics `json:"metrics"`
}
