package resolution

import (
	"errors"
	"fmt"
	"testing"

	"horse.fit/intake/internal/dedup"
)

func TestIsBlockedUnwrapsWrappedErrors(t *testing.T) {
	t.Parallel()

	blocked := &BlockedError{Report: dedup.Report{
		HasDuplicates:     true,
		Matches:           []dedup.Match{{Confidence: 100}},
		RecommendedAction: dedup.ActionBlock,
	}}
	wrapped := fmt.Errorf("create candidate: %w", blocked)

	got, ok := IsBlocked(wrapped)
	if !ok {
		t.Fatal("wrapped blocked error not detected")
	}
	if got.Report.RecommendedAction != dedup.ActionBlock {
		t.Fatalf("report action = %q", got.Report.RecommendedAction)
	}

	if _, ok := IsBlocked(errors.New("plain failure")); ok {
		t.Fatal("plain error reported as blocked")
	}
}
