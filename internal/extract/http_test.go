package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProvider_Extract(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/extract" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"payload_version": "v1",
			"first_name": "John",
			"last_name": "Smith",
			"phone": "07911 123456",
			"email": "john@example.com",
			"skills": ["forklift"],
			"confidence": 0.9
		}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, 5*time.Second, 0.55)
	result, err := provider.Extract(context.Background(), Request{FileName: "cv.pdf", Text: "John Smith ..."})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.FirstName != "John" || result.LastName != "Smith" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ProviderName != "remote" {
		t.Fatalf("unexpected provider name: %q", result.ProviderName)
	}
}

func TestHTTPProvider_LowConfidence(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"payload_version": "v1", "first_name": "John", "confidence": 0.2}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, 5*time.Second, 0.55)
	_, err := provider.Extract(context.Background(), Request{FileName: "cv.pdf", Text: "text"})
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
}

func TestHTTPProvider_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, 5*time.Second, 0.55)
	if _, err := provider.Extract(context.Background(), Request{FileName: "cv.pdf", Text: "text"}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestHTTPProvider_RequiresText(t *testing.T) {
	t.Parallel()

	provider := NewHTTPProvider("http://127.0.0.1:0", time.Second, 0.55)
	if _, err := provider.Extract(context.Background(), Request{FileName: "cv.pdf"}); err == nil {
		t.Fatalf("expected error for empty text")
	}
}
