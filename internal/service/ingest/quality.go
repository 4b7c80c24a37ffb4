// internal/service/ingest/quality.go

package ingest

import (
	"fmt"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
)

// Content-completeness thresholds used by the scorer.
const (
	sufficientTitleLen   = 10
	sufficientSummaryLen = 50
)

// QualityResult is the scoring verdict for one record.
type QualityResult struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// QualityScorer computes a composite acceptance score from content
// completeness, source reliability and entity signals. Contributions are
// signed around neutral values so weak records can fall below the floor.
type QualityScorer struct {
	config config.QualityConfig
}

// NewQualityScorer creates a new quality scorer
func NewQualityScorer(cfg config.QualityConfig) *QualityScorer {
	return &QualityScorer{config: cfg}
}

// Score evaluates the record with its anomaly list and decides acceptance.
// A critical anomaly is terminal regardless of the score.
func (s *QualityScorer) Score(c *record.Candidate, rec *record.TrendRecord) QualityResult {
	cfg := s.config
	score := cfg.BaseScore

	if len(rec.Title) >= sufficientTitleLen {
		score += cfg.TitleBonus
	} else {
		score -= cfg.TitlePenalty
	}

	if len(rec.Summary) >= sufficientSummaryLen {
		score += cfg.SummaryBonus
	} else {
		score -= cfg.SummaryPenalty
	}

	if hasKeywords(rec) {
		score += cfg.KeywordBonus
	}

	reliability := defaultReliability
	if c.Source != nil {
		reliability = Clamp(c.Source.Reliability)
	}
	score += (reliability - 0.5) * cfg.ReliabilityWeight

	if len(rec.Entities) > 0 {
		score += cfg.EntityBonus
	} else {
		score -= cfg.EntityPenalty
	}

	score += (metadataConfidence(c, rec) - 0.5) * cfg.ConfidenceWeight

	critical := rec.HasCriticalAnomaly()
	if critical {
		score -= cfg.CriticalPenalty
	}

	score = Clamp(score)

	if critical {
		return QualityResult{
			Passed: false,
			Score:  score,
			Reason: "record carries a critical-severity anomaly",
		}
	}

	if score < cfg.MinScore {
		return QualityResult{
			Passed: false,
			Score:  score,
			Reason: fmt.Sprintf("quality score %.2f below minimum %.2f", score, cfg.MinScore),
		}
	}

	return QualityResult{Passed: true, Score: score}
}

// hasKeywords reports whether the producer attached tags or keywords.
func hasKeywords(rec *record.TrendRecord) bool {
	if rec.Metadata == nil {
		return false
	}
	if tags, ok := rec.Metadata["tags"].([]string); ok {
		return len(tags) > 0
	}
	if tags, ok := rec.Metadata["tags"].([]interface{}); ok {
		return len(tags) > 0
	}
	if keywords, ok := rec.Metadata["keywords"].([]interface{}); ok {
		return len(keywords) > 0
	}
	return false
}

// metadataConfidence is the overall producer confidence: the mean of entity
// confidences when entities exist, otherwise the sentiment score, otherwise
// neutral.
func metadataConfidence(c *record.Candidate, rec *record.TrendRecord) float64 {
	if len(rec.Entities) > 0 {
		sum := 0.0
		for _, e := range rec.Entities {
			sum += e.Confidence
		}
		return Clamp(sum / float64(len(rec.Entities)))
	}
	if c.Sentiment != nil && c.Sentiment.Score > 0 {
		return Clamp(c.Sentiment.Score)
	}
	return 0.5
}
