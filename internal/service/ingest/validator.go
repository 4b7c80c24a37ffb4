// internal/service/ingest/validator.go

package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"trendwire/internal/domain/record"
)

//go:embed trend_candidate.schema.json
var candidateSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// Validation is the outcome of validating one candidate. Every violated rule
// contributes one entry to Errors.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validator checks candidates against the trend candidate schema plus a few
// semantic rules the schema cannot express. It never mutates its input.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the candidate and returns every violation found.
func (v *Validator) Validate(c *record.Candidate) Validation {
	if c == nil {
		return Validation{Valid: false, Errors: []string{"candidate is nil"}}
	}

	var errs []string

	value, err := candidateAsValue(c)
	if err != nil {
		return Validation{Valid: false, Errors: []string{fmt.Sprintf("candidate is not encodable: %v", err)}}
	}

	schema, err := loadCandidateSchema()
	if err != nil {
		return Validation{Valid: false, Errors: []string{fmt.Sprintf("schema unavailable: %v", err)}}
	}

	if err := schema.Validate(value); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			errs = append(errs, flattenSchemaErrors(ve)...)
		} else {
			errs = append(errs, err.Error())
		}
	}

	errs = append(errs, v.semanticErrors(c)...)

	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// semanticErrors covers the rules the schema cannot express.
func (v *Validator) semanticErrors(c *record.Candidate) []string {
	var errs []string

	if strings.TrimSpace(c.Title) == "" && c.Title != "" {
		errs = append(errs, "title must not be blank")
	}
	if strings.TrimSpace(c.Summary) == "" && c.Summary != "" {
		errs = append(errs, "summary must not be blank")
	}
	if c.URL != "" {
		if _, err := url.ParseRequestURI(strings.TrimSpace(c.URL)); err != nil {
			errs = append(errs, fmt.Sprintf("url is not a valid URI: %v", err))
		}
	}
	for i, e := range c.Entities {
		if e.WikipediaURL == "" {
			continue
		}
		if _, err := url.ParseRequestURI(strings.TrimSpace(e.WikipediaURL)); err != nil {
			errs = append(errs, fmt.Sprintf("entities[%d].wikipedia_url is not a valid URI: %v", i, err))
		}
	}

	return errs
}

// candidateAsValue round-trips the candidate through JSON so the schema sees
// the wire representation.
func candidateAsValue(c *record.Candidate) (interface{}, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func loadCandidateSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("trend_candidate.schema.json", strings.NewReader(candidateSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("trend_candidate.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flattenSchemaErrors walks the cause tree and keeps the leaf violations,
// which carry the field-level messages.
func flattenSchemaErrors(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			return []string{ve.Message}
		}
		return []string{fmt.Sprintf("%s: %s", strings.ReplaceAll(loc, "/", "."), ve.Message)}
	}

	var errs []string
	for _, cause := range ve.Causes {
		errs = append(errs, flattenSchemaErrors(cause)...)
	}
	return errs
}
