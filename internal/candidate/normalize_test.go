package candidate

import (
	"fmt"
	"testing"
)

func TestNormalizePhone_StripsPunctuationAndSpacing(t *testing.T) {
	t.Parallel()

	if got := NormalizePhone("07911 123456"); got != "07911123456" {
		t.Fatalf("unexpected normalized phone: %q", got)
	}
	if got := NormalizePhone("(07911) 123-456"); got != "07911123456" {
		t.Fatalf("unexpected normalized phone: %q", got)
	}
}

func TestNormalizePhone_CollapsesCountryCodeVariants(t *testing.T) {
	t.Parallel()

	want := "07911123456"
	for _, raw := range []string{"+44 7911 123456", "0044 7911 123456", "447911123456"} {
		if got := NormalizePhone(raw); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizePhone_Empty(t *testing.T) {
	t.Parallel()

	if got := NormalizePhone("  n/a "); got != "" {
		t.Fatalf("expected empty normalization, got %q", got)
	}
}

func TestDuplicateKey_Deterministic(t *testing.T) {
	t.Parallel()

	a := DuplicateKey("John", "Smith", "07911 123456")
	b := DuplicateKey("  john ", "SMITH", "+44 7911 123456")
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}

func TestDuplicateKey_SensitiveToNameOrder(t *testing.T) {
	t.Parallel()

	forward := DuplicateKey("John", "Smith", "07911123456")
	reversed := DuplicateKey("Smith", "John", "07911123456")
	if forward == reversed {
		t.Fatalf("expected key to be sensitive to name order, both were %q", forward)
	}
}

func TestDuplicateKey_CollapsesInnerWhitespace(t *testing.T) {
	t.Parallel()

	a := DuplicateKey("Mary  Jane", "van  Dyke", "07911123456")
	b := DuplicateKey("mary jane", "Van Dyke", "07911123456")
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}

func TestDraftValidate(t *testing.T) {
	t.Parallel()

	valid := Draft{FirstName: "John", LastName: "Smith", Phone: "07911123456", JobID: "j1", BranchID: "b1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}

	// Contact details are optional: filename-derived bulk drafts carry only
	// a name.
	noContact := Draft{FirstName: "John", LastName: "Smith", JobID: "j1", BranchID: "b1"}
	if err := noContact.Validate(); err != nil {
		t.Fatalf("expected name-only draft to be valid, got %v", err)
	}

	badEmail := Draft{FirstName: "John", LastName: "Smith", Email: "not-an-email", JobID: "j1", BranchID: "b1"}
	if err := badEmail.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed email")
	}

	noBranch := Draft{FirstName: "John", LastName: "Smith", Phone: "07911123456", JobID: "j1"}
	if err := noBranch.Validate(); err == nil {
		t.Fatalf("expected validation error for missing branch context")
	}
}

func TestDraftValidate_ReturnsTypedError(t *testing.T) {
	t.Parallel()

	noName := Draft{JobID: "j1", BranchID: "b1"}
	err := noName.Validate()
	if err == nil {
		t.Fatalf("expected validation error for missing name")
	}
	if !IsValidationError(err) {
		t.Fatalf("expected a validation error, got %T: %v", err, err)
	}

	// Callers wrap before surfacing; the type must survive unwrapping.
	wrapped := fmt.Errorf("invalid draft: %w", err)
	if !IsValidationError(wrapped) {
		t.Fatalf("expected wrapped error to still match, got %v", wrapped)
	}

	if IsValidationError(fmt.Errorf("pool exhausted")) {
		t.Fatalf("unrelated error must not match")
	}
}
