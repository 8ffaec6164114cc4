package extractionschema

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

//go:embed extraction_v1.schema.json
var extractionSchemaJSON string

// ExtractionResult is the validated shape of one extraction-service response.
type ExtractionResult struct {
	PayloadVersion string   `json:"payload_version"`
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Email          string   `json:"email,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Qualifications []string `json:"qualifications,omitempty"`
	Confidence     float64  `json:"confidence"`
	Model          string   `json:"model,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateExtractionPayload validates and decodes one extraction response.
func ValidateExtractionPayload(payload json.RawMessage) (*ExtractionResult, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode extraction JSON: %w", err)
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
		return nil, fmt.Errorf("normalize extraction JSON: %w", err)
	}

	var result ExtractionResult
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, fmt.Errorf("unmarshal extraction payload: %w", err)
	}

	if err := validateSemantics(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func validateSemantics(result *ExtractionResult) error {
	if strings.TrimSpace(result.FirstName) == "" &&
		strings.TrimSpace(result.LastName) == "" &&
		strings.TrimSpace(result.Phone) == "" &&
		strings.TrimSpace(result.Email) == "" {
		return fmt.Errorf("extraction payload contains no identity fields")
	}
	if email := strings.TrimSpace(result.Email); email != "" && !strings.Contains(email, "@") {
		return fmt.Errorf("extraction email %q is not valid", email)
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("extraction_v1.schema.json", strings.NewReader(extractionSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("extraction_v1.schema.json")
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

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}
