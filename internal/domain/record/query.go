package record

import (
	"time"
)

// Sort columns accepted by Query.SortBy.
const (
	SortByTimestamp  = "timestamp"
	SortByEngagement = "engagement"
	SortByQuality    = "quality"
	SortByFreshness  = "freshness"
)

// Query filters and pages stored trend records.
type Query struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`

	Platforms  []string `json:"platforms,omitempty"`
	Categories []string `json:"categories,omitempty"`

	MinQuality  float64 `json:"min_quality,omitempty"`
	Keyword     string  `json:"keyword,omitempty"`
	Entity      string  `json:"entity,omitempty"`
	AnomalyType string  `json:"anomaly_type,omitempty"`

	SortBy   string `json:"sort_by,omitempty"`
	SortDesc bool   `json:"sort_desc,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

// SearchResult is one page of matching records.
type SearchResult struct {
	Records    []TrendRecord `json:"records"`
	Total      int64         `json:"total"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Analytics aggregates the filtered record set.
type Analytics struct {
	Count         int64            `json:"count"`
	From          *time.Time       `json:"from,omitempty"`
	To            *time.Time       `json:"to,omitempty"`
	Platforms     map[string]int64 `json:"platforms"`
	Categories    map[string]int64 `json:"categories"`
	AnomalyTypes  map[string]int64 `json:"anomaly_types"`
	AvgQuality    float64          `json:"avg_quality"`
	AvgEngagement float64          `json:"avg_engagement"`
	FreshnessP50  float64          `json:"freshness_p50"`
	FreshnessP95  float64          `json:"freshness_p95"`
	FreshnessP99  float64          `json:"freshness_p99"`
}
