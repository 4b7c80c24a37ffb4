// internal/service/ingest/normalizer.go

package ingest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trendwire/internal/domain/record"
)

// Default confidences applied when the producer omits them.
const (
	defaultEntityConfidence = 0.5
	defaultReliability      = 0.8
	defaultFreshnessScore   = 0.5
)

// Timestamp layouts accepted from producers, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer turns a structurally valid candidate into a canonical
// TrendRecord. It never fails: unparseable timestamps fall back to the
// current time with a warning.
type Normalizer struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger,
		now:    time.Now,
	}
}

// Normalize builds the canonical record: UTC timestamp, content and
// similarity fingerprints, clamped scores, deduplicated tags and merged
// entities.
func (n *Normalizer) Normalize(c *record.Candidate) *record.TrendRecord {
	now := n.now().UTC()

	rec := &record.TrendRecord{
		ID:         c.ID,
		Platform:   c.Platform,
		Category:   c.Category,
		Language:   c.Language,
		Region:     c.Region,
		Title:      strings.TrimSpace(c.Title),
		Summary:    strings.TrimSpace(c.Summary),
		URL:        strings.TrimSpace(c.URL),
		Author:     strings.TrimSpace(c.Author),
		SourceID:   c.SourceID,
		IngestedAt: now,
		Metadata:   c.Metadata,
		RawData:    c.RawData,
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	rec.Timestamp = n.parseTimestamp(c.Timestamp, now)

	if c.Engagement != nil {
		rec.EngagementCount = c.Engagement.Likes + c.Engagement.Shares + c.Engagement.Comments
		rec.ViewCount = c.Engagement.Views
		rec.ShareCount = c.Engagement.Shares
	}

	rec.ContentHash = ContentHash(c.Title, c.Summary, c.Platform, c.SourceID)
	rec.SimilarityHash = SimilarityHash(c.Title, c.Summary)

	if c.QualityScore != nil {
		rec.QualityScore = Clamp(*c.QualityScore)
	}
	if c.FreshnessScore != nil {
		rec.FreshnessScore = Clamp(*c.FreshnessScore)
	} else {
		rec.FreshnessScore = defaultFreshnessScore
	}

	if len(c.Tags) > 0 {
		rec.Metadata = withTags(rec.Metadata, dedupTags(c.Tags))
	}

	rec.Entities = MergeEntities(c.Entities)

	return rec
}

// parseTimestamp parses the event time, falling back to processing time.
// An invalid timestamp is never grounds for rejection.
func (n *Normalizer) parseTimestamp(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}

	n.logger.Warn().Str("timestamp", raw).Msg("unparseable event timestamp, using current time")
	return fallback
}

// ContentHash is the exact-duplicate key: a SHA-256 fingerprint of the
// normalized title, summary and platform-scoped source id.
func ContentHash(title, summary, platform, sourceID string) string {
	basis := fmt.Sprintf("%s|%s|%s:%s",
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(summary)),
		platform, sourceID,
	)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// SimilarityHash is the near-duplicate bucket key: an MD5 of the first 100
// characters of the lowercased text with punctuation stripped and whitespace
// collapsed. Records sharing a bucket are compared by word-set similarity.
func SimilarityHash(title, summary string) string {
	text := normalizeForSimilarity(title + " " + summary)
	if runes := []rune(text); len(runes) > 100 {
		text = string(runes[:100])
	}
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func normalizeForSimilarity(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Clamp bounds a score into [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MergeEntities deduplicates entity mentions by case-insensitive normalized
// name. Merging sums mentions, keeps the maximum confidence and unions
// aliases, including every original surface form.
func MergeEntities(entities []record.CandidateEntity) []record.TrendEntity {
	if len(entities) == 0 {
		return nil
	}

	merged := make(map[string]*record.TrendEntity)
	order := make([]string, 0, len(entities))

	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)

		confidence := defaultEntityConfidence
		if e.Confidence != nil {
			confidence = Clamp(*e.Confidence)
		}
		mentions := e.Mentions
		if mentions <= 0 {
			mentions = 1
		}

		existing, ok := merged[key]
		if !ok {
			merged[key] = &record.TrendEntity{
				Name:         name,
				Type:         record.EntityType(e.Type),
				Confidence:   confidence,
				Mentions:     mentions,
				Aliases:      unionAliases(nil, e.Aliases, name),
				WikipediaURL: e.WikipediaURL,
				Metadata:     e.Metadata,
			}
			order = append(order, key)
			continue
		}

		existing.Mentions += mentions
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		existing.Aliases = unionAliases(existing.Aliases, e.Aliases, name)
		if existing.WikipediaURL == "" {
			existing.WikipediaURL = e.WikipediaURL
		}
	}

	result := make([]record.TrendEntity, 0, len(merged))
	for _, key := range order {
		result = append(result, *merged[key])
	}
	return result
}

func unionAliases(existing, incoming []string, surface string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming)+1)
	var out []string
	add := func(alias string) {
		alias = strings.TrimSpace(alias)
		if alias == "" || seen[strings.ToLower(alias)] {
			return
		}
		seen[strings.ToLower(alias)] = true
		out = append(out, alias)
	}

	for _, a := range existing {
		add(a)
	}
	add(surface)
	for _, a := range incoming {
		add(a)
	}
	return out
}

// dedupTags applies set semantics to the tag list; order is not significant
// but kept stable for readability.
func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func withTags(metadata map[string]interface{}, tags []string) map[string]interface{} {
	if metadata == nil {
		metadata = make(map[string]interface{}, 1)
	}
	metadata["tags"] = tags
	return metadata
}
