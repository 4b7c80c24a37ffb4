// internal/service/ingest/normalizer_test.go

package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwire/internal/domain/record"
)

func floatPtr(v float64) *float64 { return &v }

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("Big Story", "Something happened", "twitter", "123")
	b := ContentHash("Big Story", "Something happened", "twitter", "123")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestContentHashNormalizesCaseAndWhitespace(t *testing.T) {
	a := ContentHash("  Big Story ", " Something happened  ", "twitter", "123")
	b := ContentHash("big story", "something happened", "twitter", "123")
	assert.Equal(t, a, b)
}

func TestContentHashScopedBySource(t *testing.T) {
	a := ContentHash("Big Story", "Something happened", "twitter", "123")
	b := ContentHash("Big Story", "Something happened", "twitter", "456")
	c := ContentHash("Big Story", "Something happened", "reddit", "123")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSimilarityHashIgnoresPunctuation(t *testing.T) {
	a := SimilarityHash("Breaking: markets rally!", "Stocks are up today.")
	b := SimilarityHash("breaking markets rally", "stocks are up today")
	assert.Equal(t, a, b)
}

func TestSimilarityHashUsesPrefixOnly(t *testing.T) {
	long := "word "
	for len(long) < 120 {
		long += "word "
	}
	a := SimilarityHash(long, "completely different tail one")
	b := SimilarityHash(long, "completely different tail two")
	assert.Equal(t, a, b)
}

func TestSimilarityHashTruncatesOnCharacters(t *testing.T) {
	// 50 two-byte runes span 100 bytes; a byte-boundary cut would stop here
	// and miss the divergence that falls inside the first 100 characters.
	prefix := strings.Repeat("é", 50)
	a := SimilarityHash(prefix+"first tail", "")
	b := SimilarityHash(prefix+"second tail", "")
	assert.NotEqual(t, a, b)

	// Texts sharing their first 100 characters share a bucket.
	long := strings.Repeat("é", 101)
	c := SimilarityHash(long+" one", "")
	d := SimilarityHash(long+" two", "")
	assert.Equal(t, c, d)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5))
	assert.Equal(t, 1.0, Clamp(1.5))
	assert.Equal(t, 0.42, Clamp(0.42))
}

func TestNormalizeBasics(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	c := &record.Candidate{
		Platform:  "twitter",
		Category:  "technology",
		Title:     "  Chip makers rally  ",
		Summary:   " Semiconductor stocks climbed sharply after earnings. ",
		SourceID:  "tw-1",
		Timestamp: "2026-02-28T10:30:00Z",
		Engagement: &record.EngagementMetrics{
			Likes:    10,
			Shares:   5,
			Comments: 3,
			Views:    400,
		},
	}

	rec := n.Normalize(c)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Chip makers rally", rec.Title)
	assert.Equal(t, "Semiconductor stocks climbed sharply after earnings.", rec.Summary)
	assert.Equal(t, int64(18), rec.EngagementCount)
	assert.Equal(t, int64(400), rec.ViewCount)
	assert.Equal(t, int64(5), rec.ShareCount)
	assert.Equal(t, fixed, rec.IngestedAt)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 30, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, defaultFreshnessScore, rec.FreshnessScore)
	assert.NotEmpty(t, rec.ContentHash)
	assert.NotEmpty(t, rec.SimilarityHash)
}

func TestNormalizeKeepsProvidedID(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	rec := n.Normalize(&record.Candidate{ID: "given", Platform: "p", Category: "c", Title: "t", Summary: "s", SourceID: "1"})
	assert.Equal(t, "given", rec.ID)
}

func TestNormalizeUnparseableTimestampFallsBack(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	rec := n.Normalize(&record.Candidate{
		Platform: "p", Category: "c", Title: "t", Summary: "s", SourceID: "1",
		Timestamp: "not-a-time",
	})
	assert.Equal(t, fixed, rec.Timestamp)
}

func TestNormalizeClampsScores(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	rec := n.Normalize(&record.Candidate{
		Platform: "p", Category: "c", Title: "t", Summary: "s", SourceID: "1",
		QualityScore:   floatPtr(3.2),
		FreshnessScore: floatPtr(-1.0),
	})
	assert.Equal(t, 1.0, rec.QualityScore)
	assert.Equal(t, 0.0, rec.FreshnessScore)
}

func TestNormalizeDeduplicatesTags(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	rec := n.Normalize(&record.Candidate{
		Platform: "p", Category: "c", Title: "t", Summary: "s", SourceID: "1",
		Tags: []string{"Crypto", "markets", "crypto", " ", "Markets"},
	})

	require.NotNil(t, rec.Metadata)
	tags, ok := rec.Metadata["tags"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"Crypto", "markets"}, tags)
}

func TestMergeEntities(t *testing.T) {
	entities := []record.CandidateEntity{
		{Name: "OpenAI", Type: "organization", Confidence: floatPtr(0.6), Mentions: 2},
		{Name: "openai", Type: "organization", Confidence: floatPtr(0.9), Aliases: []string{"OAI"}},
		{Name: "Sam Altman", Type: "person"},
	}

	merged := MergeEntities(entities)
	require.Len(t, merged, 2)

	org := merged[0]
	assert.Equal(t, "OpenAI", org.Name)
	assert.Equal(t, 3, org.Mentions)
	assert.Equal(t, 0.9, org.Confidence)
	assert.Contains(t, org.Aliases, "OpenAI")
	assert.Contains(t, org.Aliases, "openai")
	assert.Contains(t, org.Aliases, "OAI")

	person := merged[1]
	assert.Equal(t, "Sam Altman", person.Name)
	assert.Equal(t, 1, person.Mentions)
	assert.Equal(t, defaultEntityConfidence, person.Confidence)
}

func TestMergeEntitiesSkipsBlankNames(t *testing.T) {
	merged := MergeEntities([]record.CandidateEntity{
		{Name: "  ", Type: "person"},
		{Name: "Ada", Type: "person"},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "Ada", merged[0].Name)
}

func TestMergeEntitiesEmpty(t *testing.T) {
	assert.Nil(t, MergeEntities(nil))
}
