package record

import (
	"time"
)

// EntityType classifies an extracted entity mention.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
	EntityTopic        EntityType = "topic"
	EntityHashtag      EntityType = "hashtag"
	EntityOther        EntityType = "other"
)

// EntityTypes lists every accepted entity type.
var EntityTypes = []EntityType{
	EntityPerson, EntityOrganization, EntityLocation, EntityEvent,
	EntityProduct, EntityTopic, EntityHashtag, EntityOther,
}

// AnomalyType classifies an anomaly flag.
type AnomalyType string

const (
	AnomalySpike               AnomalyType = "spike"
	AnomalyDrop                AnomalyType = "drop"
	AnomalyUnusualPattern      AnomalyType = "unusual_pattern"
	AnomalyOutlier             AnomalyType = "outlier"
	AnomalySuspiciousSource    AnomalyType = "suspicious_source"
	AnomalyCoordinatedBehavior AnomalyType = "coordinated_behavior"
)

// AnomalyTypes lists every accepted anomaly type.
var AnomalyTypes = []AnomalyType{
	AnomalySpike, AnomalyDrop, AnomalyUnusualPattern,
	AnomalyOutlier, AnomalySuspiciousSource, AnomalyCoordinatedBehavior,
}

// Severity ranks how serious an anomaly is. A record carrying any
// critical-severity anomaly is never persisted.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every accepted severity.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// SentimentLabels is the closed set of accepted sentiment labels.
var SentimentLabels = []string{"positive", "negative", "neutral", "mixed"}

// TrendEntity is an entity mention attached to a trend record. Entities are
// deduplicated by case-insensitive normalized name: merging sums mentions,
// keeps the maximum confidence and unions aliases.
type TrendEntity struct {
	Name         string                 `json:"name"`
	Type         EntityType             `json:"type"`
	Confidence   float64                `json:"confidence"`
	Mentions     int                    `json:"mentions"`
	Aliases      []string               `json:"aliases,omitempty"`
	WikipediaURL string                 `json:"wikipedia_url,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// AnomalyDetection is a typed, severity-ranked flag indicating unusual record
// behavior. Parameters carries the raw metric values that triggered the flag.
type AnomalyDetection struct {
	Type        AnomalyType            `json:"type"`
	Severity    Severity               `json:"severity"`
	Confidence  float64                `json:"confidence"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// TrendRecord is the unit of ingestion. It is mutable during normalization
// and anomaly detection and immutable once stored.
type TrendRecord struct {
	ID             string `json:"id"`
	ContentHash    string `json:"content_hash"`
	SimilarityHash string `json:"similarity_hash"`

	Platform string `json:"platform"`
	Category string `json:"category"`
	Language string `json:"language"`
	Region   string `json:"region"`

	Title    string `json:"title"`
	Summary  string `json:"summary"`
	URL      string `json:"url,omitempty"`
	Author   string `json:"author,omitempty"`
	SourceID string `json:"source_id"`

	Timestamp  time.Time `json:"timestamp"`
	IngestedAt time.Time `json:"ingested_at"`

	EngagementCount int64 `json:"engagement_count"`
	ViewCount       int64 `json:"view_count"`
	ShareCount      int64 `json:"share_count"`

	QualityScore   float64 `json:"quality_score"`
	FreshnessScore float64 `json:"freshness_score"`
	AnomalyScore   float64 `json:"anomaly_score"`

	Entities  []TrendEntity      `json:"entities,omitempty"`
	Anomalies []AnomalyDetection `json:"anomalies,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	RawData  map[string]interface{} `json:"raw_data,omitempty"`
}

// HasCriticalAnomaly reports whether any attached anomaly is critical.
func (r *TrendRecord) HasCriticalAnomaly() bool {
	for _, a := range r.Anomalies {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
