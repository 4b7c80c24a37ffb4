package record

// Candidate is the untrusted partial record submitted by upstream producers.
// It is validated and normalized before it becomes a TrendRecord.
type Candidate struct {
	ID       string `json:"id,omitempty"`
	Platform string `json:"platform"`
	Category string `json:"category"`
	Language string `json:"language,omitempty"`
	Region   string `json:"region,omitempty"`

	Title     string `json:"title"`
	Summary   string `json:"summary"`
	URL       string `json:"url,omitempty"`
	Author    string `json:"author,omitempty"`
	SourceID  string `json:"source_id"`
	Timestamp string `json:"timestamp,omitempty"`

	Engagement *EngagementMetrics `json:"engagement,omitempty"`
	Velocity   *VelocityMetrics   `json:"velocity,omitempty"`
	Impact     *ImpactMetrics     `json:"impact,omitempty"`
	Source     *SourceInfo        `json:"source,omitempty"`
	Sentiment  *Sentiment         `json:"sentiment,omitempty"`

	QualityScore   *float64 `json:"quality_score,omitempty"`
	FreshnessScore *float64 `json:"freshness_score,omitempty"`

	Entities []CandidateEntity      `json:"entities,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	RawData  map[string]interface{} `json:"raw_data,omitempty"`
}

// EngagementMetrics carries raw interaction counters.
type EngagementMetrics struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views"`
}

// VelocityMetrics describes how fast a trend is growing.
type VelocityMetrics struct {
	GrowthRate   float64 `json:"growth_rate"`
	PostsPerHour float64 `json:"posts_per_hour,omitempty"`
}

// ImpactMetrics carries upstream-computed impact signals.
type ImpactMetrics struct {
	Virality    float64 `json:"virality"`
	Credibility float64 `json:"credibility"`
}

// SourceInfo identifies the producing source and its trust level.
type SourceInfo struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Reliability float64 `json:"reliability"`
}

// Sentiment is an upstream sentiment classification.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// CandidateEntity is an entity mention as submitted, before merging.
type CandidateEntity struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Confidence   *float64               `json:"confidence,omitempty"`
	Mentions     int                    `json:"mentions,omitempty"`
	Aliases      []string               `json:"aliases,omitempty"`
	WikipediaURL string                 `json:"wikipedia_url,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
