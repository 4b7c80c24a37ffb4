// internal/adapter/storage/record_store.go

package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trendwire/internal/domain/record"
)

// ErrNotFound is returned when a point lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrInvalidCursor is returned when a search cursor cannot be decoded. It is
// a caller error, not a storage failure.
var ErrInvalidCursor = errors.New("invalid cursor")

const pgUniqueViolation = "23505"

const recordColumns = `id, content_hash, similarity_hash, platform, category, language, region,
	title, summary, url, author, source_id, timestamp, ingested_at,
	engagement_count, view_count, share_count,
	quality_score, freshness_score, anomaly_score, metadata, raw_data`

const insertRecordSQL = `
	INSERT INTO trend_records (
		id, content_hash, similarity_hash, platform, category, language, region,
		title, summary, url, author, source_id, timestamp, ingested_at,
		engagement_count, view_count, share_count,
		quality_score, freshness_score, anomaly_score, metadata, raw_data
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17,
		$18, $19, $20, $21, $22
	)`

const insertEntitySQL = `
	INSERT INTO trend_entities (record_id, name, type, confidence, mentions, aliases, wikipedia_url, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const insertAnomalySQL = `
	INSERT INTO trend_anomalies (record_id, type, severity, confidence, description, parameters)
	VALUES ($1, $2, $3, $4, $5, $6)`

// RecordStore implements transactional persistence for trend records
type RecordStore struct {
	db            *pgxpool.Pool
	bulkBatchSize int
}

// NewRecordStore creates a new record store
func NewRecordStore(db *pgxpool.Pool, bulkBatchSize int) *RecordStore {
	if bulkBatchSize <= 0 {
		bulkBatchSize = 100
	}
	return &RecordStore{
		db:            db,
		bulkBatchSize: bulkBatchSize,
	}
}

// Save persists the record with its entities and anomalies in one
// transaction. The content hash is re-checked inside the transaction; a
// unique-constraint race with a concurrent writer resolves to a duplicate
// outcome, never a generic failure.
func (s *RecordStore) Save(ctx context.Context, rec *record.TrendRecord) (string, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID string
	err = tx.QueryRow(ctx, `SELECT id FROM trend_records WHERE content_hash = $1`, rec.ContentHash).Scan(&existingID)
	if err == nil {
		return existingID, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("error checking content hash: %w", err)
	}

	if err := insertRecordTx(ctx, tx, rec); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// A concurrent writer won the race between our check and our
			// insert; surface the canonical id.
			tx.Rollback(ctx)
			canonical, lookupErr := s.FindByContentHash(ctx, rec.ContentHash)
			if lookupErr != nil || canonical == nil {
				return "", false, fmt.Errorf("error resolving duplicate after unique violation: %w", err)
			}
			return canonical.ID, true, nil
		}
		return "", false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("error committing record: %w", err)
	}

	return rec.ID, false, nil
}

// insertRecordTx writes the record row and its child rows.
func insertRecordTx(ctx context.Context, tx pgx.Tx, rec *record.TrendRecord) error {
	metadataJSON, rawDataJSON, err := marshalBags(rec)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, insertRecordSQL,
		rec.ID, rec.ContentHash, rec.SimilarityHash, rec.Platform, rec.Category, rec.Language, rec.Region,
		rec.Title, rec.Summary, rec.URL, rec.Author, rec.SourceID, rec.Timestamp, rec.IngestedAt,
		rec.EngagementCount, rec.ViewCount, rec.ShareCount,
		rec.QualityScore, rec.FreshnessScore, rec.AnomalyScore, metadataJSON, rawDataJSON,
	)
	if err != nil {
		return fmt.Errorf("error inserting record: %w", err)
	}

	for i := range rec.Entities {
		if err := insertEntityTx(ctx, tx, rec.ID, &rec.Entities[i]); err != nil {
			return err
		}
	}
	for i := range rec.Anomalies {
		if err := insertAnomalyTx(ctx, tx, rec.ID, &rec.Anomalies[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertEntityTx(ctx context.Context, tx pgx.Tx, recordID string, e *record.TrendEntity) error {
	aliasesJSON, err := json.Marshal(e.Aliases)
	if err != nil {
		return fmt.Errorf("error marshaling aliases: %w", err)
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("error marshaling entity metadata: %w", err)
	}

	_, err = tx.Exec(ctx, insertEntitySQL,
		recordID, e.Name, string(e.Type), e.Confidence, e.Mentions, aliasesJSON, e.WikipediaURL, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("error inserting entity: %w", err)
	}
	return nil
}

func insertAnomalyTx(ctx context.Context, tx pgx.Tx, recordID string, a *record.AnomalyDetection) error {
	parametersJSON, err := json.Marshal(a.Parameters)
	if err != nil {
		return fmt.Errorf("error marshaling anomaly parameters: %w", err)
	}

	_, err = tx.Exec(ctx, insertAnomalySQL,
		recordID, string(a.Type), string(a.Severity), a.Confidence, a.Description, parametersJSON,
	)
	if err != nil {
		return fmt.Errorf("error inserting anomaly: %w", err)
	}
	return nil
}

// BulkStore batches inserts inside a single transaction, skipping records
// whose content hash is already present, and returns the ids actually
// persisted.
func (s *RecordStore) BulkStore(ctx context.Context, records []*record.TrendRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var persisted []string
	insertSQL := insertRecordSQL + ` ON CONFLICT (content_hash) DO NOTHING RETURNING id`

	for offset := 0; offset < len(records); offset += s.bulkBatchSize {
		end := offset + s.bulkBatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[offset:end]

		batch := &pgx.Batch{}
		for _, rec := range chunk {
			metadataJSON, rawDataJSON, err := marshalBags(rec)
			if err != nil {
				return nil, err
			}
			batch.Queue(insertSQL,
				rec.ID, rec.ContentHash, rec.SimilarityHash, rec.Platform, rec.Category, rec.Language, rec.Region,
				rec.Title, rec.Summary, rec.URL, rec.Author, rec.SourceID, rec.Timestamp, rec.IngestedAt,
				rec.EngagementCount, rec.ViewCount, rec.ShareCount,
				rec.QualityScore, rec.FreshnessScore, rec.AnomalyScore, metadataJSON, rawDataJSON,
			)
		}

		results := tx.SendBatch(ctx, batch)
		inserted := make([]*record.TrendRecord, 0, len(chunk))
		for _, rec := range chunk {
			var id string
			err := results.QueryRow().Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				continue // content hash already present
			}
			if err != nil {
				results.Close()
				return nil, fmt.Errorf("error bulk inserting record: %w", err)
			}
			inserted = append(inserted, rec)
			persisted = append(persisted, id)
		}
		if err := results.Close(); err != nil {
			return nil, fmt.Errorf("error closing batch: %w", err)
		}

		for _, rec := range inserted {
			for i := range rec.Entities {
				if err := insertEntityTx(ctx, tx, rec.ID, &rec.Entities[i]); err != nil {
					return nil, err
				}
			}
			for i := range rec.Anomalies {
				if err := insertAnomalyTx(ctx, tx, rec.ID, &rec.Anomalies[i]); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing bulk insert: %w", err)
	}

	return persisted, nil
}

// FindByID retrieves a record with its entities and anomalies.
func (s *RecordStore) FindByID(ctx context.Context, id string) (*record.TrendRecord, error) {
	rec, err := s.findOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if err := s.hydrate(ctx, []*record.TrendRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByContentHash retrieves the record with the given content hash, or nil.
func (s *RecordStore) FindByContentHash(ctx context.Context, contentHash string) (*record.TrendRecord, error) {
	return s.findOne(ctx, `WHERE content_hash = $1`, contentHash)
}

// FindBySimilarityHash retrieves near-duplicate candidates sharing a
// similarity bucket.
func (s *RecordStore) FindBySimilarityHash(ctx context.Context, similarityHash string, limit int) ([]record.TrendRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM trend_records WHERE similarity_hash = $1 ORDER BY ingested_at DESC LIMIT $2`, recordColumns)
	rows, err := s.db.Query(ctx, query, similarityHash, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying similarity candidates: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *RecordStore) findOne(ctx context.Context, where string, args ...interface{}) (*record.TrendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM trend_records %s`, recordColumns, where)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Search returns one page of hydrated records matching the query, the total
// match count and an opaque cursor for the next page.
func (s *RecordStore) Search(ctx context.Context, q record.Query) (*record.SearchResult, error) {
	where, args := buildSearchFilter(q)

	var total int64
	countQuery := `SELECT count(*) FROM trend_records ` + where
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("error counting records: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := decodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	argIndex := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM trend_records %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		recordColumns, where, orderClause(q), argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error searching records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	result := &record.SearchResult{Records: records, Total: total}
	if int64(offset+len(records)) < total {
		result.NextCursor = encodeCursor(offset + len(records))
	}

	refs := make([]*record.TrendRecord, len(result.Records))
	for i := range result.Records {
		refs[i] = &result.Records[i]
	}
	if err := s.hydrate(ctx, refs); err != nil {
		return nil, err
	}

	return result, nil
}

// buildSearchFilter builds the WHERE clause shared by Search and Analytics.
func buildSearchFilter(q record.Query) (string, []interface{}) {
	clauses := []string{"1=1"}
	var args []interface{}
	argIndex := 1

	if q.From != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, *q.From)
		argIndex++
	}
	if q.To != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", argIndex))
		args = append(args, *q.To)
		argIndex++
	}
	if len(q.Platforms) > 0 {
		clauses = append(clauses, fmt.Sprintf("platform = ANY($%d)", argIndex))
		args = append(args, q.Platforms)
		argIndex++
	}
	if len(q.Categories) > 0 {
		clauses = append(clauses, fmt.Sprintf("category = ANY($%d)", argIndex))
		args = append(args, q.Categories)
		argIndex++
	}
	if q.MinQuality > 0 {
		clauses = append(clauses, fmt.Sprintf("quality_score >= $%d", argIndex))
		args = append(args, q.MinQuality)
		argIndex++
	}
	if q.Keyword != "" {
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR summary ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+q.Keyword+"%")
		argIndex++
	}
	if q.Entity != "" {
		clauses = append(clauses, fmt.Sprintf(
			"id IN (SELECT record_id FROM trend_entities WHERE lower(name) = lower($%d))", argIndex))
		args = append(args, q.Entity)
		argIndex++
	}
	if q.AnomalyType != "" {
		clauses = append(clauses, fmt.Sprintf(
			"id IN (SELECT record_id FROM trend_anomalies WHERE type = $%d)", argIndex))
		args = append(args, q.AnomalyType)
		argIndex++
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// orderClause maps the query's sort request to whitelisted columns.
func orderClause(q record.Query) string {
	column := "timestamp"
	switch q.SortBy {
	case record.SortByEngagement:
		column = "engagement_count"
	case record.SortByQuality:
		column = "quality_score"
	case record.SortByFreshness:
		column = "freshness_score"
	case record.SortByTimestamp, "":
		column = "timestamp"
	}

	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s, id ASC", column, direction)
}

// Analytics aggregates counts, distributions, averages and freshness
// percentiles over the filtered record set.
func (s *RecordStore) Analytics(ctx context.Context, q record.Query) (*record.Analytics, error) {
	where, args := buildSearchFilter(q)

	analytics := &record.Analytics{
		Platforms:    make(map[string]int64),
		Categories:   make(map[string]int64),
		AnomalyTypes: make(map[string]int64),
	}

	aggQuery := fmt.Sprintf(`
		SELECT count(*), min(timestamp), max(timestamp),
			coalesce(avg(quality_score), 0), coalesce(avg(engagement_count), 0)
		FROM trend_records %s`, where)

	var from, to *time.Time
	err := s.db.QueryRow(ctx, aggQuery, args...).Scan(
		&analytics.Count, &from, &to, &analytics.AvgQuality, &analytics.AvgEngagement,
	)
	if err != nil {
		return nil, fmt.Errorf("error aggregating records: %w", err)
	}
	analytics.From = from
	analytics.To = to

	if analytics.Count == 0 {
		return analytics, nil
	}

	if err := s.scanDistribution(ctx, analytics.Platforms,
		fmt.Sprintf(`SELECT platform, count(*) FROM trend_records %s GROUP BY platform`, where), args); err != nil {
		return nil, err
	}
	if err := s.scanDistribution(ctx, analytics.Categories,
		fmt.Sprintf(`SELECT category, count(*) FROM trend_records %s GROUP BY category`, where), args); err != nil {
		return nil, err
	}
	if err := s.scanDistribution(ctx, analytics.AnomalyTypes,
		fmt.Sprintf(`SELECT type, count(*) FROM trend_anomalies
			WHERE record_id IN (SELECT id FROM trend_records %s) GROUP BY type`, where), args); err != nil {
		return nil, err
	}

	percentileQuery := fmt.Sprintf(`
		SELECT percentile_cont(ARRAY[0.5, 0.95, 0.99]) WITHIN GROUP (ORDER BY freshness_score)
		FROM trend_records %s`, where)

	var percentiles []float64
	if err := s.db.QueryRow(ctx, percentileQuery, args...).Scan(&percentiles); err != nil {
		return nil, fmt.Errorf("error computing freshness percentiles: %w", err)
	}
	if len(percentiles) == 3 {
		analytics.FreshnessP50 = percentiles[0]
		analytics.FreshnessP95 = percentiles[1]
		analytics.FreshnessP99 = percentiles[2]
	}

	return analytics, nil
}

func (s *RecordStore) scanDistribution(ctx context.Context, dest map[string]int64, query string, args []interface{}) error {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error querying distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("error scanning distribution: %w", err)
		}
		dest[key] = count
	}
	return rows.Err()
}

// Cleanup removes records older than the cutoff together with their entity
// and anomaly rows, and returns the number of records deleted.
func (s *RecordStore) Cleanup(ctx context.Context, maxAgeDays int) (int64, error) {
	cutoff := cleanupCutoff(time.Now(), maxAgeDays)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM trend_entities WHERE record_id IN (SELECT id FROM trend_records WHERE timestamp < $1)`, cutoff); err != nil {
		return 0, fmt.Errorf("error deleting entities: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM trend_anomalies WHERE record_id IN (SELECT id FROM trend_records WHERE timestamp < $1)`, cutoff); err != nil {
		return 0, fmt.Errorf("error deleting anomalies: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM trend_records WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing cleanup: %w", err)
	}

	return tag.RowsAffected(), nil
}

// cleanupCutoff computes the retention boundary in UTC.
func cleanupCutoff(now time.Time, maxAgeDays int) time.Time {
	return now.UTC().AddDate(0, 0, -maxAgeDays)
}

// hydrate attaches entities and anomalies to the given records.
func (s *RecordStore) hydrate(ctx context.Context, records []*record.TrendRecord) error {
	if len(records) == 0 {
		return nil
	}

	byID := make(map[string]*record.TrendRecord, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		ids = append(ids, rec.ID)
	}

	rows, err := s.db.Query(ctx, `
		SELECT record_id, name, type, confidence, mentions, aliases, wikipedia_url, metadata
		FROM trend_entities WHERE record_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("error querying entities: %w", err)
	}
	for rows.Next() {
		var recordID string
		var e record.TrendEntity
		var aliasesJSON, metadataJSON []byte
		if err := rows.Scan(&recordID, &e.Name, &e.Type, &e.Confidence, &e.Mentions, &aliasesJSON, &e.WikipediaURL, &metadataJSON); err != nil {
			rows.Close()
			return fmt.Errorf("error scanning entity: %w", err)
		}
		if err := unmarshalInto(aliasesJSON, &e.Aliases); err != nil {
			rows.Close()
			return err
		}
		if err := unmarshalInto(metadataJSON, &e.Metadata); err != nil {
			rows.Close()
			return err
		}
		if rec, ok := byID[recordID]; ok {
			rec.Entities = append(rec.Entities, e)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating entities: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT record_id, type, severity, confidence, description, parameters
		FROM trend_anomalies WHERE record_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("error querying anomalies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var recordID string
		var a record.AnomalyDetection
		var parametersJSON []byte
		if err := rows.Scan(&recordID, &a.Type, &a.Severity, &a.Confidence, &a.Description, &parametersJSON); err != nil {
			return fmt.Errorf("error scanning anomaly: %w", err)
		}
		if err := unmarshalInto(parametersJSON, &a.Parameters); err != nil {
			return err
		}
		if rec, ok := byID[recordID]; ok {
			rec.Anomalies = append(rec.Anomalies, a)
		}
	}
	return rows.Err()
}

func scanRecords(rows pgx.Rows) ([]record.TrendRecord, error) {
	var records []record.TrendRecord
	for rows.Next() {
		var rec record.TrendRecord
		var metadataJSON, rawDataJSON []byte

		err := rows.Scan(
			&rec.ID, &rec.ContentHash, &rec.SimilarityHash, &rec.Platform, &rec.Category, &rec.Language, &rec.Region,
			&rec.Title, &rec.Summary, &rec.URL, &rec.Author, &rec.SourceID, &rec.Timestamp, &rec.IngestedAt,
			&rec.EngagementCount, &rec.ViewCount, &rec.ShareCount,
			&rec.QualityScore, &rec.FreshnessScore, &rec.AnomalyScore, &metadataJSON, &rawDataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning record: %w", err)
		}

		if err := unmarshalInto(metadataJSON, &rec.Metadata); err != nil {
			return nil, err
		}
		if err := unmarshalInto(rawDataJSON, &rec.RawData); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func unmarshalInto(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("error unmarshaling column: %w", err)
	}
	return nil
}

func marshalBags(rec *record.TrendRecord) ([]byte, []byte, error) {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling metadata: %w", err)
	}
	rawDataJSON, err := json.Marshal(rec.RawData)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling raw data: %w", err)
	}
	return metadataJSON, rawDataJSON, nil
}

// Cursor encoding: an opaque base64 page offset.

const cursorPrefix = "v1:"

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	value := strings.TrimPrefix(string(raw), cursorPrefix)
	if value == string(raw) {
		return 0, ErrInvalidCursor
	}
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0, ErrInvalidCursor
	}
	return offset, nil
}
