package extractionschema

import (
	"encoding/json"
	"testing"
)

func TestValidateExtractionPayload_Valid(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"payload_version": "v1",
		"first_name": "John",
		"last_name": "Smith",
		"phone": "+44 7911 123456",
		"email": "john.smith@example.com",
		"skills": ["forklift", "warehouse"],
		"confidence": 0.91,
		"model": "cv-extract-2"
	}`)

	result, err := ValidateExtractionPayload(payload)
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if result.FirstName != "John" || result.LastName != "Smith" {
		t.Fatalf("unexpected name: %q %q", result.FirstName, result.LastName)
	}
	if result.Confidence != 0.91 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
	if len(result.Skills) != 2 {
		t.Fatalf("unexpected skills: %v", result.Skills)
	}
}

func TestValidateExtractionPayload_MissingConfidence(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"payload_version": "v1", "first_name": "John"}`)
	if _, err := ValidateExtractionPayload(payload); err == nil {
		t.Fatalf("expected schema validation failure")
	}
}

func TestValidateExtractionPayload_NoIdentityFields(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"payload_version": "v1", "confidence": 0.8}`)
	if _, err := ValidateExtractionPayload(payload); err == nil {
		t.Fatalf("expected rejection of payload without identity fields")
	}
}

func TestValidateExtractionPayload_BadEmail(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"payload_version": "v1", "email": "nope", "confidence": 0.8}`)
	if _, err := ValidateExtractionPayload(payload); err == nil {
		t.Fatalf("expected rejection of malformed email")
	}
}

func TestValidateExtractionPayload_TrailingContent(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"payload_version": "v1", "confidence": 0.8}{"x":1}`)
	if _, err := ValidateExtractionPayload(payload); err == nil {
		t.Fatalf("expected rejection of trailing content")
	}
}
