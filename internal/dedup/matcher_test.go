package dedup

import (
	"testing"
	"time"

	"horse.fit/intake/internal/candidate"
)

var checkNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func summary(id int64, first, last, phone, email, branchID string) candidate.Summary {
	normalized := candidate.NormalizePhone(phone)
	return candidate.Summary{
		CandidateID:     id,
		FirstName:       first,
		LastName:        last,
		PhoneNormalized: normalized,
		Email:           email,
		DuplicateKey:    candidate.DuplicateKey(first, last, phone),
		JobID:           "job-1",
		BranchID:        branchID,
		CreatedAt:       checkNow.Add(-72 * time.Hour),
	}
}

func TestCheck_ExactKeyBlocks(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "John", LastName: "Smith", Phone: "07911 123456", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{summary(11, "John", "Smith", "07911123456", "", "b1")}

	report := Check(draft, existing, nil, checkNow)
	if !report.HasDuplicates {
		t.Fatalf("expected a duplicate report")
	}
	if report.RecommendedAction != ActionBlock {
		t.Fatalf("expected block, got %q", report.RecommendedAction)
	}
	match := report.Matches[0]
	if match.MatchType != MatchTypeExactKey || match.Confidence != 100 || match.Severity != SeverityHigh {
		t.Fatalf("unexpected match: %+v", match)
	}
	if match.DaysSinceApplied != 3 {
		t.Fatalf("expected 3 days since application, got %d", match.DaysSinceApplied)
	}
}

func TestCheck_SamePhoneDifferentName(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "Jonathan", LastName: "Smithe", Phone: "+44 7911 123456", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{summary(12, "John", "Smith", "07911 123456", "", "b1")}

	report := Check(draft, existing, nil, checkNow)
	if report.RecommendedAction != ActionWarn {
		t.Fatalf("expected warn, got %q", report.RecommendedAction)
	}
	match := report.Matches[0]
	if match.MatchType != MatchTypePhone || match.Severity != SeverityHigh {
		t.Fatalf("unexpected match: %+v", match)
	}
	if len(match.MatchedFields) != 1 || match.MatchedFields[0] != "phone" {
		t.Fatalf("unexpected matched fields: %v", match.MatchedFields)
	}
}

func TestCheck_EmailCaseInsensitive(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "Jane", LastName: "Doe", Email: "Jane.Doe@Example.com", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{summary(13, "Janet", "Dole", "07000111222", "jane.doe@example.com", "b2")}

	report := Check(draft, existing, nil, checkNow)
	if len(report.Matches) != 1 {
		t.Fatalf("expected one match, got %d", len(report.Matches))
	}
	if report.Matches[0].MatchType != MatchTypeEmail || report.Matches[0].Severity != SeverityHigh {
		t.Fatalf("unexpected match: %+v", report.Matches[0])
	}
}

func TestCheck_FuzzyNameNeedsPartialContactOverlap(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "Jon", LastName: "Smith", Phone: "07999 123456", JobID: "job-1", BranchID: "b1"}

	// Same name shape but no shared contact signal: not a match.
	noOverlap := []candidate.Summary{summary(14, "John", "Smith", "07000 999888", "", "b1")}
	if report := Check(draft, noOverlap, nil, checkNow); report.HasDuplicates {
		t.Fatalf("expected no match without contact overlap, got %+v", report.Matches)
	}

	// Shared six-digit phone suffix qualifies as a partial overlap.
	withOverlap := []candidate.Summary{summary(15, "John", "Smith", "07888 123456", "", "b1")}
	report := Check(draft, withOverlap, nil, checkNow)
	if len(report.Matches) != 1 {
		t.Fatalf("expected one fuzzy match, got %d", len(report.Matches))
	}
	match := report.Matches[0]
	if match.MatchType != MatchTypeFuzzyName || match.Severity != SeverityMedium {
		t.Fatalf("unexpected match: %+v", match)
	}
	if report.RecommendedAction != ActionWarn {
		t.Fatalf("expected warn, got %q", report.RecommendedAction)
	}
}

func TestCheck_DifferentBranchLowersConfidence(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "Jon", LastName: "Smith", Phone: "07999 123456", JobID: "job-2", BranchID: "b9"}
	sameBranch := Check(draft, []candidate.Summary{summary(16, "John", "Smith", "07888 123456", "", "b9")}, nil, checkNow)
	otherBranch := Check(draft, []candidate.Summary{summary(16, "John", "Smith", "07888 123456", "", "b1")}, nil, checkNow)

	if len(sameBranch.Matches) != 1 || len(otherBranch.Matches) != 1 {
		t.Fatalf("expected one match in each report")
	}
	if sameBranch.Matches[0].Confidence <= otherBranch.Matches[0].Confidence {
		t.Fatalf("expected same-branch confidence (%d) above different-branch confidence (%d)",
			sameBranch.Matches[0].Confidence, otherBranch.Matches[0].Confidence)
	}
	if !sameBranch.Matches[0].SameBranchContext || otherBranch.Matches[0].SameBranchContext {
		t.Fatalf("branch context flags are wrong")
	}
}

func TestCheck_ExclusionSetSkipsDismissed(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "John", LastName: "Smith", Phone: "07911123456", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{summary(17, "John", "Smith", "07911123456", "", "b1")}

	exclude := map[int64]struct{}{17: {}}
	report := Check(draft, existing, exclude, checkNow)
	if report.HasDuplicates {
		t.Fatalf("expected dismissed record to be excluded, got %+v", report.Matches)
	}
	if report.RecommendedAction != ActionAllow {
		t.Fatalf("expected allow, got %q", report.RecommendedAction)
	}
}

func TestCheck_RanksStrongestFirst(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "John", LastName: "Smith", Phone: "07911 123456", Email: "john.smith@example.com", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{
		summary(21, "Johnny", "Smith", "07888 123456", "john.smith@other.org", "b1"),
		summary(22, "John", "Smith", "07911 123456", "", "b1"),
		summary(23, "Jon", "Smyth", "07000 000000", "john.smith@example.com", "b2"),
	}

	report := Check(draft, existing, nil, checkNow)
	if report.RecommendedAction != ActionBlock {
		t.Fatalf("expected block, got %q", report.RecommendedAction)
	}
	if len(report.Matches) < 2 {
		t.Fatalf("expected multiple matches, got %d", len(report.Matches))
	}
	if report.Matches[0].Candidate.CandidateID != 22 {
		t.Fatalf("expected exact-key match ranked first, got candidate %d", report.Matches[0].Candidate.CandidateID)
	}
	for i := 1; i < len(report.Matches); i++ {
		if report.Matches[i-1].Confidence < report.Matches[i].Confidence {
			t.Fatalf("matches are not sorted by confidence: %+v", report.Matches)
		}
	}
}

func TestCheck_NoSignalAllows(t *testing.T) {
	t.Parallel()

	draft := candidate.Draft{FirstName: "Alice", LastName: "Jones", Phone: "07123 456789", JobID: "job-1", BranchID: "b1"}
	existing := []candidate.Summary{summary(31, "Bob", "Brown", "07999 888777", "bob@example.com", "b1")}

	report := Check(draft, existing, nil, checkNow)
	if report.HasDuplicates || report.RecommendedAction != ActionAllow {
		t.Fatalf("expected clean report, got %+v", report)
	}
}
