package candidate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DuplicateStatus marks a record's role within a duplicate cluster.
const (
	StatusNone     = "none"
	StatusPrimary  = "primary"
	StatusLinked   = "linked"
	StatusReviewed = "reviewed"
)

// Draft holds the fields of a candidate submission before it is persisted.
type Draft struct {
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	JobID          string
	JobTitle       string
	BranchID       string
	BranchName     string
	Skills         []string
	Qualifications []string
	CVObjectKey    string
	CVFileName     string
	CVLanguage     string
}

// Summary is the read model the matcher compares a draft against.
type Summary struct {
	CandidateID     int64
	CandidateUUID   string
	FirstName       string
	LastName        string
	PhoneNormalized string
	Email           string
	DuplicateKey    string
	JobID           string
	JobTitle        string
	BranchID        string
	BranchName      string
	DuplicateStatus string
	NotDuplicateOf  []int64
	CreatedAt       time.Time
}

// ApplicationEntry is one append-only application history item.
type ApplicationEntry struct {
	CandidateID int64     `json:"candidate_id"`
	JobID       string    `json:"job_id"`
	JobTitle    string    `json:"job_title"`
	BranchID    string    `json:"branch_id"`
	BranchName  string    `json:"branch_name"`
	AppliedAt   time.Time `json:"applied_at"`
	Status      string    `json:"status"`
}

// ValidationError marks a malformed draft, rejected before any store write.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err wraps a draft validation failure.
func IsValidationError(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// Validate rejects malformed drafts before any store write.
func (d *Draft) Validate() error {
	if d == nil {
		return &ValidationError{Reason: "draft is nil"}
	}
	if strings.TrimSpace(d.FirstName) == "" && strings.TrimSpace(d.LastName) == "" {
		return &ValidationError{Reason: "candidate name is required"}
	}
	if email := strings.TrimSpace(d.Email); email != "" && !strings.Contains(email, "@") {
		return &ValidationError{Reason: fmt.Sprintf("email %q is not valid", email)}
	}
	if strings.TrimSpace(d.JobID) == "" {
		return &ValidationError{Reason: "job context is required"}
	}
	if strings.TrimSpace(d.BranchID) == "" {
		return &ValidationError{Reason: "branch context is required"}
	}
	return nil
}

// DuplicateKey returns the draft's dedup fingerprint.
func (d *Draft) DuplicateKey() string {
	return DuplicateKey(d.FirstName, d.LastName, d.Phone)
}

// FullName joins the trimmed name parts for display.
func (d *Draft) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))
}

// FullName joins the trimmed name parts for display.
func (s *Summary) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}
