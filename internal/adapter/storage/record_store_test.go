// internal/adapter/storage/record_store_test.go

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwire/internal/domain/record"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 50, 12345} {
		cursor := encodeCursor(offset)
		decoded, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, offset, decoded)
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	offset, err := decodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}

func TestDecodeCursorInvalid(t *testing.T) {
	cases := []string{
		"not base64 at all!!!",
		"bm90LWEtY3Vyc29y", // valid base64, wrong prefix
		"djE6LTU=",         // v1:-5
		"djE6YWJj",         // v1:abc
	}
	for _, c := range cases {
		_, err := decodeCursor(c)
		assert.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", c)
	}
}

func TestCleanupCutoff(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	cutoff := cleanupCutoff(now, 90)
	assert.Equal(t, time.UTC, cutoff.Location())
	assert.Equal(t, now.UTC().AddDate(0, 0, -90), cutoff)
	assert.True(t, cutoff.Before(now.UTC()))

	// A shorter retention window keeps a later boundary.
	assert.True(t, cleanupCutoff(now, 1).After(cutoff))
}

func TestBuildSearchFilterEmptyQuery(t *testing.T) {
	where, args := buildSearchFilter(record.Query{})
	assert.Equal(t, "WHERE 1=1", where)
	assert.Empty(t, args)
}

func TestBuildSearchFilterAllFilters(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	q := record.Query{
		From:        &from,
		To:          &to,
		Platforms:   []string{"twitter", "reddit"},
		Categories:  []string{"technology"},
		MinQuality:  0.5,
		Keyword:     "chips",
		Entity:      "Nvidia",
		AnomalyType: "spike",
	}

	where, args := buildSearchFilter(q)

	assert.Contains(t, where, "timestamp >= $1")
	assert.Contains(t, where, "timestamp <= $2")
	assert.Contains(t, where, "platform = ANY($3)")
	assert.Contains(t, where, "category = ANY($4)")
	assert.Contains(t, where, "quality_score >= $5")
	assert.Contains(t, where, "title ILIKE $6 OR summary ILIKE $6")
	assert.Contains(t, where, "trend_entities")
	assert.Contains(t, where, "trend_anomalies")
	assert.Len(t, args, 8)
	assert.Equal(t, "%chips%", args[5])
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, "timestamp ASC, id ASC", orderClause(record.Query{}))
	assert.Equal(t, "timestamp DESC, id ASC", orderClause(record.Query{SortDesc: true}))
	assert.Equal(t, "engagement_count ASC, id ASC", orderClause(record.Query{SortBy: record.SortByEngagement}))
	assert.Equal(t, "quality_score DESC, id ASC", orderClause(record.Query{SortBy: record.SortByQuality, SortDesc: true}))
	assert.Equal(t, "freshness_score ASC, id ASC", orderClause(record.Query{SortBy: record.SortByFreshness}))
	// Unknown sort keys fall back to the timestamp column.
	assert.Equal(t, "timestamp ASC, id ASC", orderClause(record.Query{SortBy: "drop table"}))
}
