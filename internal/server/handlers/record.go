// internal/server/handlers/record.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"trendwire/internal/adapter/storage"
	"trendwire/internal/domain/record"
)

// IngestService runs candidates through the ingestion pipeline.
type IngestService interface {
	Ingest(ctx context.Context, c *record.Candidate) *record.IngestResult
	IngestBatch(ctx context.Context, candidates []*record.Candidate) []*record.IngestResult
}

// RecordReader is the query surface of the record store.
type RecordReader interface {
	FindByID(ctx context.Context, id string) (*record.TrendRecord, error)
	Search(ctx context.Context, q record.Query) (*record.SearchResult, error)
	Analytics(ctx context.Context, q record.Query) (*record.Analytics, error)
}

// RecordHandler handles trend-record HTTP requests
type RecordHandler struct {
	ingest IngestService
	reader RecordReader
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(ingest IngestService, reader RecordReader) *RecordHandler {
	return &RecordHandler{
		ingest: ingest,
		reader: reader,
	}
}

// IngestRecord ingests a single candidate
func (h *RecordHandler) IngestRecord(w http.ResponseWriter, r *http.Request) {
	var candidate record.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	result := h.ingest.Ingest(r.Context(), &candidate)
	respondWithJSON(w, ingestStatusCode(result.Status), result)
}

// IngestBatch ingests a batch of candidates, preserving input order
func (h *RecordHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var candidates []*record.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if len(candidates) == 0 {
		respondWithError(w, http.StatusBadRequest, "Empty batch", nil)
		return
	}

	results := h.ingest.IngestBatch(r.Context(), candidates)
	respondWithJSON(w, http.StatusOK, results)
}

// GetRecord returns a stored record by ID
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing record ID", nil)
		return
	}

	rec, err := h.reader.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Record not found", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to get record", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

// SearchRecords returns a page of records matching the query parameters
func (h *RecordHandler) SearchRecords(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := h.reader.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			respondWithError(w, http.StatusBadRequest, "Invalid cursor", err)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to search records", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetAnalytics returns aggregate statistics for the filtered record set
func (h *RecordHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	analytics, err := h.reader.Analytics(r.Context(), query)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute analytics", err)
		return
	}

	respondWithJSON(w, http.StatusOK, analytics)
}

func parseQuery(r *http.Request) (record.Query, error) {
	params := r.URL.Query()
	var q record.Query

	if from := params.Get("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return q, errors.New("invalid 'from' timestamp")
		}
		q.From = &ts
	}
	if to := params.Get("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return q, errors.New("invalid 'to' timestamp")
		}
		q.To = &ts
	}

	if platforms := params.Get("platforms"); platforms != "" {
		q.Platforms = strings.Split(platforms, ",")
	}
	if categories := params.Get("categories"); categories != "" {
		q.Categories = strings.Split(categories, ",")
	}

	if minQuality := params.Get("min_quality"); minQuality != "" {
		value, err := strconv.ParseFloat(minQuality, 64)
		if err != nil {
			return q, errors.New("invalid 'min_quality' value")
		}
		q.MinQuality = value
	}

	q.Keyword = params.Get("keyword")
	q.Entity = params.Get("entity")
	q.AnomalyType = params.Get("anomaly_type")
	q.SortBy = params.Get("sort_by")
	q.SortDesc = params.Get("order") == "desc"
	q.Cursor = params.Get("cursor")

	if limit := params.Get("limit"); limit != "" {
		value, err := strconv.Atoi(limit)
		if err != nil || value < 0 {
			return q, errors.New("invalid 'limit' value")
		}
		q.Limit = value
	}

	return q, nil
}

func ingestStatusCode(status record.IngestStatus) int {
	switch status {
	case record.StatusIngested:
		return http.StatusCreated
	case record.StatusDuplicate:
		return http.StatusOK
	case record.StatusInvalid:
		return http.StatusBadRequest
	case record.StatusRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil && code < 500 {
		response["detail"] = err.Error()
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
