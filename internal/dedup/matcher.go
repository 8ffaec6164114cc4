package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"horse.fit/intake/internal/candidate"
)

// Match rule strengths, strongest first. Exact duplicate-key equality is the
// only signal strong enough to block creation outright; everything else
// surfaces as a warning for the operator to resolve.
const (
	MatchTypeExactKey  = "exact_key"
	MatchTypePhone     = "phone"
	MatchTypeEmail     = "email"
	MatchTypeFuzzyName = "fuzzy_name"

	SeverityHigh   = "high"
	SeverityMedium = "medium"

	ActionBlock = "block"
	ActionWarn  = "warn"
	ActionAllow = "allow"
)

// Confidence scores and fuzzy thresholds. The upstream system kept these in a
// shared library; the values here were validated against the unit fixtures in
// matcher_test.go.
const (
	confidenceExactKey  = 100
	confidencePhone     = 92
	confidenceEmail     = 88
	confidenceFuzzyBase = 55

	fuzzyNameThreshold    = 0.82
	phoneSuffixOverlapLen = 6
	contextCorroboration  = 12
	branchMitigation      = 10
	maxFuzzyConfidence    = 79
	minReportedConfidence = 35
)

// Match is one qualifying comparison between a draft and an existing record.
type Match struct {
	Candidate         candidate.Summary `json:"candidate"`
	MatchType         string            `json:"match_type"`
	Confidence        int               `json:"confidence"`
	Severity          string            `json:"severity"`
	MatchedFields     []string          `json:"matched_fields"`
	Scenario          string            `json:"scenario"`
	DaysSinceApplied  int               `json:"days_since_applied"`
	SameBranchContext bool              `json:"same_branch_context"`
}

// Report aggregates all matches for one draft.
type Report struct {
	HasDuplicates     bool    `json:"has_duplicates"`
	Matches           []Match `json:"matches"`
	RecommendedAction string  `json:"recommended_action"`
}

// Check compares a draft against the existing record set and returns ranked
// matches. It is pure: no store access, no side effects. Records whose ids
// appear in exclude (session dismissals plus persisted not-duplicate pairs)
// are skipped.
func Check(draft candidate.Draft, existing []candidate.Summary, exclude map[int64]struct{}, now time.Time) Report {
	draftKey := draft.DuplicateKey()
	draftPhone := candidate.NormalizePhone(draft.Phone)
	draftEmail := normalizeEmail(draft.Email)
	draftName := normalizedFullName(draft.FirstName, draft.LastName)

	matches := make([]Match, 0, 4)
	for _, record := range existing {
		if _, skipped := exclude[record.CandidateID]; skipped {
			continue
		}
		if match, ok := compare(draft, draftKey, draftPhone, draftEmail, draftName, record, now); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Candidate.CandidateID < matches[j].Candidate.CandidateID
	})

	return Report{
		HasDuplicates:     len(matches) > 0,
		Matches:           matches,
		RecommendedAction: recommendedAction(matches),
	}
}

func compare(draft candidate.Draft, draftKey, draftPhone, draftEmail, draftName string, record candidate.Summary, now time.Time) (Match, bool) {
	sameBranch := record.BranchID != "" && record.BranchID == strings.TrimSpace(draft.BranchID)
	days := daysSince(record.CreatedAt, now)

	base := Match{
		Candidate:         record,
		DaysSinceApplied:  days,
		SameBranchContext: sameBranch,
	}

	if draftKey != "" && record.DuplicateKey != "" && draftKey == record.DuplicateKey {
		base.MatchType = MatchTypeExactKey
		base.Confidence = confidenceExactKey
		base.Severity = SeverityHigh
		base.MatchedFields = []string{"firstName", "lastName", "phone"}
		base.Scenario = "identical name and phone number already on file"
		return base, true
	}

	recordName := normalizedFullName(record.FirstName, record.LastName)

	if draftPhone != "" && draftPhone == record.PhoneNormalized {
		base.MatchType = MatchTypePhone
		base.Confidence = confidencePhone
		base.Severity = SeverityHigh
		base.MatchedFields = []string{"phone"}
		base.Scenario = fmt.Sprintf("same phone number as %s (possible name variant)", record.FullName())
		return base, true
	}

	if draftEmail != "" && draftEmail == normalizeEmail(record.Email) {
		base.MatchType = MatchTypeEmail
		base.Confidence = confidenceEmail
		base.Severity = SeverityHigh
		base.MatchedFields = []string{"email"}
		base.Scenario = fmt.Sprintf("same email address as %s", record.FullName())
		return base, true
	}

	similarity := nameSimilarity(draftName, recordName)
	if similarity < fuzzyNameThreshold {
		return Match{}, false
	}

	matchedFields := []string{"name"}
	partialSignal := false
	if phoneSuffixOverlap(draftPhone, record.PhoneNormalized) {
		matchedFields = append(matchedFields, "phone")
		partialSignal = true
	}
	if emailLocalPartOverlap(draftEmail, normalizeEmail(record.Email)) {
		matchedFields = append(matchedFields, "email")
		partialSignal = true
	}
	if !partialSignal {
		return Match{}, false
	}

	confidence := confidenceFuzzyBase + int(similarity*10)
	scenario := "similar name with partially matching contact details"
	if sameBranch {
		confidence += contextCorroboration
		scenario = "similar name and contact details at the same branch"
	} else if record.BranchID != "" {
		// A different branch suggests a legitimate re-application rather
		// than a duplicate data entry.
		confidence -= branchMitigation
		scenario = "similar name and contact details, applying to a different branch"
	}
	if confidence > maxFuzzyConfidence {
		confidence = maxFuzzyConfidence
	}
	if confidence < minReportedConfidence {
		return Match{}, false
	}

	base.MatchType = MatchTypeFuzzyName
	base.Confidence = confidence
	base.Severity = SeverityMedium
	base.MatchedFields = matchedFields
	base.Scenario = scenario
	return base, true
}

func recommendedAction(matches []Match) string {
	if len(matches) == 0 {
		return ActionAllow
	}
	for _, match := range matches {
		if match.MatchType == MatchTypeExactKey {
			return ActionBlock
		}
	}
	return ActionWarn
}

func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(distance)/float64(longest)
}

func phoneSuffixOverlap(a, b string) bool {
	if len(a) < phoneSuffixOverlapLen || len(b) < phoneSuffixOverlapLen {
		return false
	}
	return a[len(a)-phoneSuffixOverlapLen:] == b[len(b)-phoneSuffixOverlapLen:]
}

func emailLocalPartOverlap(a, b string) bool {
	localA, _, okA := strings.Cut(a, "@")
	localB, _, okB := strings.Cut(b, "@")
	if !okA || !okB || localA == "" {
		return false
	}
	return localA == localB
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizedFullName(first, last string) string {
	return strings.Join(strings.Fields(strings.ToLower(first+" "+last)), " ")
}

func daysSince(then, now time.Time) int {
	if then.IsZero() || now.Before(then) {
		return 0
	}
	return int(now.Sub(then).Hours() / 24)
}
