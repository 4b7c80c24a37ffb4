// internal/service/ingest/validator_test.go

package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwire/internal/domain/record"
)

func validCandidate() *record.Candidate {
	return &record.Candidate{
		Platform: "twitter",
		Category: "technology",
		Title:    "Chip makers rally on earnings",
		Summary:  "Semiconductor stocks climbed sharply after a strong earnings round.",
		SourceID: "tw-123",
		Language: "en",
		Region:   "US",
	}
}

func hasErrorContaining(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsCompleteCandidate(t *testing.T) {
	v := NewValidator()
	result := v.Validate(validCandidate())
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestValidateNilCandidate(t *testing.T) {
	v := NewValidator()
	result := v.Validate(nil)
	assert.False(t, result.Valid)
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Platform = ""
	c.Title = ""

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 2)
}

func TestValidateRejectsBadPlatformPattern(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Platform = "not a platform!"

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "platform"))
}

func TestValidateRejectsBadLanguageCode(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Language = "english"

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "language"))
}

func TestValidateRejectsOverlongTitle(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Title = strings.Repeat("x", 501)

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "title"))
}

func TestValidateRejectsBlankTitle(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Title = "   "

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "blank"))
}

func TestValidateRejectsInvalidURL(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.URL = "not a url"

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "url"))
}

func TestValidateRejectsUnknownEntityType(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Entities = []record.CandidateEntity{
		{Name: "Acme", Type: "alien"},
	}

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "entities"))
}

func TestValidateRejectsUnknownSentimentLabel(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Sentiment = &record.Sentiment{Label: "meh", Score: 0.5}

	result := v.Validate(c)
	assert.False(t, result.Valid)
	assert.True(t, hasErrorContaining(result.Errors, "sentiment"))
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	v := NewValidator()

	c := validCandidate()
	c.Entities = []record.CandidateEntity{
		{Name: "Acme", Type: "organization", Confidence: floatPtr(1.5)},
	}

	result := v.Validate(c)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}
