package analysisschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed analysis.schema.json
var analysisSchemaJSON string

// Analysis is the validated shape of the LLM's entry analysis.
type Analysis struct {
	Rating   float64  `json:"rating"`
	Type     string   `json:"type"`
	Keywords []string `json:"keywords"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateAnalysisPayload checks an extracted LLM reply against the analysis
// schema and normalizes it: rating clamped to [0,100], type trimmed,
// keywords trimmed and deduplicated preserving order.
func ValidateAnalysisPayload(payload json.RawMessage) (*Analysis, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode analysis JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize analysis JSON: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal(normalized, &analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}

	if analysis.Rating < 0 {
		analysis.Rating = 0
	}
	if analysis.Rating > 100 {
		analysis.Rating = 100
	}
	analysis.Type = strings.TrimSpace(analysis.Type)
	if analysis.Type == "" {
		return nil, fmt.Errorf("analysis type is empty after trimming")
	}

	seen := make(map[string]struct{}, len(analysis.Keywords))
	keywords := make([]string, 0, len(analysis.Keywords))
	for _, kw := range analysis.Keywords {
		trimmed := strings.TrimSpace(kw)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		keywords = append(keywords, trimmed)
	}
	analysis.Keywords = keywords

	return &analysis, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("analysis.schema.json", strings.NewReader(analysisSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("analysis.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	return compiledSchema, compiledSchemaErr
}

func decodeStrictJSON(payload json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureEOF(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after JSON document")
	}
	return nil
}
