package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	extractionschema "horse.fit/intake/schema"
)

const maxExtractionResponseBytes = 1 << 20

// HTTPProvider calls a remote CV extraction endpoint that returns the
// extraction_v1 payload shape.
type HTTPProvider struct {
	endpointURL   string
	minConfidence float64
	client        *http.Client
}

// NewHTTPProvider builds a provider for the given endpoint. minConfidence is
// the floor below which a response is rejected as ErrLowConfidence.
func NewHTTPProvider(endpoint string, timeout time.Duration, minConfidence float64) *HTTPProvider {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HTTPProvider{
		endpointURL:   trimmed + "/v1/extract",
		minConfidence: minConfidence,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Name() string {
	return "remote"
}

type extractionRequest struct {
	FileName string `json:"file_name"`
	Text     string `json:"text"`
}

func (p *HTTPProvider) Extract(ctx context.Context, req Request) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("extraction provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("cv text is required")
	}

	body, err := json.Marshal(extractionRequest{
		FileName: strings.TrimSpace(req.FileName),
		Text:     text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send extraction request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractionResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction endpoint returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	validated, err := extractionschema.ValidateExtractionPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid extraction response: %w", err)
	}
	if validated.Confidence < p.minConfidence {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, validated.Confidence, p.minConfidence)
	}

	return &Result{
		FirstName:      strings.TrimSpace(validated.FirstName),
		LastName:       strings.TrimSpace(validated.LastName),
		Phone:          strings.TrimSpace(validated.Phone),
		Email:          strings.TrimSpace(validated.Email),
		Skills:         validated.Skills,
		Qualifications: validated.Qualifications,
		Confidence:     validated.Confidence,
		ProviderName:   p.Name(),
		LatencyMs:      time.Since(started).Milliseconds(),
	}, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
