package extract

import (
	"context"
	"errors"
)

// ErrLowConfidence marks a structurally valid extraction whose confidence
// fell below the configured floor. Callers treat it like any other extraction
// failure and fall back to the filename heuristic.
var ErrLowConfidence = errors.New("extraction confidence below threshold")

// Provider extracts structured candidate fields from CV text.
type Provider interface {
	Extract(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Request describes one CV to extract.
type Request struct {
	FileName string
	Text     string
}

// Result contains the extracted candidate fields and provider metadata.
type Result struct {
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	Skills         []string
	Qualifications []string
	Confidence     float64
	ProviderName   string
	LatencyMs      int64
}
