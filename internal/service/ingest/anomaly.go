// internal/service/ingest/anomaly.go

package ingest

import (
	"fmt"
	"strings"

	"trendwire/internal/config"
	"trendwire/internal/domain/record"
)

// AnomalyDetector runs independent heuristic checks over a normalized record.
// Each check is additive: a record may carry several flags at once.
type AnomalyDetector struct {
	config config.AnomalyConfig
}

// NewAnomalyDetector creates a new anomaly detector
func NewAnomalyDetector(cfg config.AnomalyConfig) *AnomalyDetector {
	return &AnomalyDetector{config: cfg}
}

// Detect returns every anomaly flag raised by the candidate's metrics.
func (d *AnomalyDetector) Detect(c *record.Candidate, rec *record.TrendRecord) []record.AnomalyDetection {
	var anomalies []record.AnomalyDetection

	if a := d.checkVelocity(c); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := d.checkEngagement(c); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := d.checkVirality(c); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := d.checkCredibility(c); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := d.checkCoordination(rec); a != nil {
		anomalies = append(anomalies, *a)
	}

	return anomalies
}

// checkVelocity flags growth rates above the configured multiplier.
func (d *AnomalyDetector) checkVelocity(c *record.Candidate) *record.AnomalyDetection {
	if c.Velocity == nil || c.Velocity.GrowthRate <= d.config.VelocityMultiplier {
		return nil
	}

	return &record.AnomalyDetection{
		Type:        record.AnomalySpike,
		Severity:    record.SeverityHigh,
		Confidence:  Clamp(c.Velocity.GrowthRate / (d.config.VelocityMultiplier * 2)),
		Description: fmt.Sprintf("velocity spike: growth rate %.1fx exceeds %.1fx threshold", c.Velocity.GrowthRate, d.config.VelocityMultiplier),
		Parameters: map[string]interface{}{
			"growth_rate": c.Velocity.GrowthRate,
			"threshold":   d.config.VelocityMultiplier,
		},
	}
}

// checkEngagement flags interaction-to-view ratios that real audiences do
// not produce.
func (d *AnomalyDetector) checkEngagement(c *record.Candidate) *record.AnomalyDetection {
	if c.Engagement == nil || c.Engagement.Views <= 0 {
		return nil
	}

	interactions := c.Engagement.Likes + c.Engagement.Shares + c.Engagement.Comments
	ratio := float64(interactions) / float64(c.Engagement.Views)
	if ratio <= d.config.EngagementRatio {
		return nil
	}

	return &record.AnomalyDetection{
		Type:        record.AnomalyUnusualPattern,
		Severity:    record.SeverityMedium,
		Confidence:  Clamp(ratio),
		Description: fmt.Sprintf("suspicious engagement: interaction ratio %.2f exceeds %.2f", ratio, d.config.EngagementRatio),
		Parameters: map[string]interface{}{
			"interactions": interactions,
			"views":        c.Engagement.Views,
			"ratio":        ratio,
			"threshold":    d.config.EngagementRatio,
		},
	}
}

// checkVirality flags virality impact above the configured threshold.
func (d *AnomalyDetector) checkVirality(c *record.Candidate) *record.AnomalyDetection {
	if c.Impact == nil || c.Impact.Virality <= d.config.ViralityThreshold {
		return nil
	}

	return &record.AnomalyDetection{
		Type:        record.AnomalyOutlier,
		Severity:    record.SeverityHigh,
		Confidence:  Clamp(c.Impact.Virality),
		Description: fmt.Sprintf("virality spike: %.2f exceeds %.2f threshold", c.Impact.Virality, d.config.ViralityThreshold),
		Parameters: map[string]interface{}{
			"virality":  c.Impact.Virality,
			"threshold": d.config.ViralityThreshold,
		},
	}
}

// checkCredibility flags credibility impact below the configured floor.
func (d *AnomalyDetector) checkCredibility(c *record.Candidate) *record.AnomalyDetection {
	if c.Impact == nil || c.Impact.Credibility >= d.config.CredibilityFloor {
		return nil
	}

	return &record.AnomalyDetection{
		Type:        record.AnomalyDrop,
		Severity:    record.SeverityMedium,
		Confidence:  Clamp(1 - c.Impact.Credibility),
		Description: fmt.Sprintf("credibility drop: %.2f below %.2f floor", c.Impact.Credibility, d.config.CredibilityFloor),
		Parameters: map[string]interface{}{
			"credibility": c.Impact.Credibility,
			"floor":       d.config.CredibilityFloor,
		},
	}
}

// checkCoordination builds a composite suspicion score from off-peak
// posting, repetitive wording and low entity-type diversity. Crossing the
// threshold is the one critical outcome in the detector: such records are
// never persisted.
func (d *AnomalyDetector) checkCoordination(rec *record.TrendRecord) *record.AnomalyDetection {
	suspicion := 0.0
	params := map[string]interface{}{}

	hour := rec.Timestamp.UTC().Hour()
	offPeak := hour >= 0 && hour < 6
	if offPeak {
		suspicion += d.config.OffPeakBonus
	}
	params["off_peak"] = offPeak
	params["hour"] = hour

	repetition := repetitiveWordRatio(rec.Title + " " + rec.Summary)
	suspicion += repetition * d.config.RepetitionWeight
	params["repetition_ratio"] = repetition

	lowDiversity := false
	if len(rec.Entities) >= 5 {
		types := make(map[record.EntityType]bool)
		for _, e := range rec.Entities {
			types[e.Type] = true
		}
		if len(types) <= 2 {
			lowDiversity = true
			suspicion += d.config.LowDiversityBonus
		}
		params["entity_types"] = len(types)
	}
	params["low_diversity"] = lowDiversity
	params["entity_count"] = len(rec.Entities)
	params["suspicion"] = suspicion

	if suspicion <= d.config.CoordinationThreshold {
		return nil
	}

	return &record.AnomalyDetection{
		Type:        record.AnomalyCoordinatedBehavior,
		Severity:    record.SeverityCritical,
		Confidence:  Clamp(suspicion),
		Description: fmt.Sprintf("coordinated behavior suspected: composite score %.2f exceeds %.2f", suspicion, d.config.CoordinationThreshold),
		Parameters:  params,
	}
}

// repetitiveWordRatio is the share of word occurrences belonging to words
// repeated more than three times, weighted toward longer words.
func repetitiveWordRatio(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}

	repeated := 0.0
	total := 0.0
	for w, n := range counts {
		weight := 1.0
		if len(w) >= 5 {
			weight = 1.5
		}
		total += float64(n) * weight
		if n > 3 {
			repeated += float64(n) * weight
		}
	}
	if total == 0 {
		return 0
	}
	return repeated / total
}

// MaxAnomalyScore is the anomaly score carried on the record: the highest
// confidence among its flags.
func MaxAnomalyScore(anomalies []record.AnomalyDetection) float64 {
	score := 0.0
	for _, a := range anomalies {
		if a.Confidence > score {
			score = a.Confidence
		}
	}
	return Clamp(score)
}
