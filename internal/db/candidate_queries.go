package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"horse.fit/intake/internal/candidate"
)

const summaryQueryLimit = 5000

// CandidateRecord is the fully decoded read model for one candidate row.
type CandidateRecord struct {
	CandidateID         int64                        `json:"candidate_id"`
	CandidateUUID       string                       `json:"candidate_uuid"`
	FirstName           string                       `json:"first_name"`
	LastName            string                       `json:"last_name"`
	PhoneRaw            string                       `json:"phone_raw"`
	PhoneNormalized     string                       `json:"phone_normalized"`
	Email               string                       `json:"email"`
	DuplicateKey        string                       `json:"duplicate_key"`
	JobID               string                       `json:"job_id"`
	JobTitle            string                       `json:"job_title"`
	BranchID            string                       `json:"branch_id"`
	BranchName          string                       `json:"branch_name"`
	Skills              []string                     `json:"skills"`
	Qualifications      []string                     `json:"qualifications"`
	CVObjectKey         *string                      `json:"cv_object_key,omitempty"`
	CVFileName          *string                      `json:"cv_file_name,omitempty"`
	CVLanguage          *string                      `json:"cv_language,omitempty"`
	DuplicateStatus     string                       `json:"duplicate_status"`
	PrimaryRecordID     *int64                       `json:"primary_record_id,omitempty"`
	LinkedCandidateIDs  []int64                      `json:"linked_candidate_ids"`
	NotDuplicateOf      []int64                      `json:"not_duplicate_of"`
	ApplicationHistory  []candidate.ApplicationEntry `json:"application_history"`
	DuplicateReviewedAt *time.Time                   `json:"duplicate_reviewed_at,omitempty"`
	DuplicateReviewedBy *string                      `json:"duplicate_reviewed_by,omitempty"`
	Version             int64                        `json:"version"`
	CreatedAt           time.Time                    `json:"created_at"`
	UpdatedAt           time.Time                    `json:"updated_at"`
}

// CandidateListItem is the compact row used by list commands and endpoints.
type CandidateListItem struct {
	CandidateID     int64     `json:"candidate_id"`
	CandidateUUID   string    `json:"candidate_uuid"`
	FullName        string    `json:"full_name"`
	PhoneNormalized string    `json:"phone_normalized,omitempty"`
	Email           string    `json:"email,omitempty"`
	JobTitle        string    `json:"job_title"`
	BranchName      string    `json:"branch_name"`
	DuplicateStatus string    `json:"duplicate_status"`
	PrimaryRecordID *int64    `json:"primary_record_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CandidateListOptions controls candidate listing queries.
type CandidateListOptions struct {
	BranchID        string
	JobID           string
	DuplicateStatus string
	Limit           int
	Offset          int
}

const candidateSummaryColumns = `
	c.candidate_id,
	c.candidate_uuid::text,
	c.first_name,
	c.last_name,
	c.phone_normalized,
	c.email,
	c.duplicate_key,
	c.job_id,
	c.job_title,
	c.branch_id,
	c.branch_name,
	c.duplicate_status,
	c.not_duplicate_of,
	c.created_at
`

// ListCandidateSummaries returns the comparison set the matcher runs against:
// every non-deleted candidate, newest first.
func (p *Pool) ListCandidateSummaries(ctx context.Context) ([]candidate.Summary, error) {
	q := `
SELECT` + candidateSummaryColumns + `
FROM intake.candidates c
WHERE c.deleted_at IS NULL
ORDER BY c.created_at DESC, c.candidate_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, summaryQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query candidate summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]candidate.Summary, 0, 64)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate summaries: %w", err)
	}
	return summaries, nil
}

func scanSummary(row rowScanner) (candidate.Summary, error) {
	var summary candidate.Summary
	var notDuplicateOf []byte
	if err := row.Scan(
		&summary.CandidateID,
		&summary.CandidateUUID,
		&summary.FirstName,
		&summary.LastName,
		&summary.PhoneNormalized,
		&summary.Email,
		&summary.DuplicateKey,
		&summary.JobID,
		&summary.JobTitle,
		&summary.BranchID,
		&summary.BranchName,
		&summary.DuplicateStatus,
		&notDuplicateOf,
		&summary.CreatedAt,
	); err != nil {
		return candidate.Summary{}, fmt.Errorf("scan candidate summary: %w", err)
	}

	ids, err := DecodeIDArray(notDuplicateOf)
	if err != nil {
		return candidate.Summary{}, err
	}
	summary.NotDuplicateOf = ids
	return summary, nil
}

const candidateRecordColumns = `
	c.candidate_id,
	c.candidate_uuid::text,
	c.first_name,
	c.last_name,
	c.phone_raw,
	c.phone_normalized,
	c.email,
	c.duplicate_key,
	c.job_id,
	c.job_title,
	c.branch_id,
	c.branch_name,
	c.skills,
	c.qualifications,
	c.cv_object_key,
	c.cv_file_name,
	c.cv_language,
	c.duplicate_status,
	c.primary_record_id,
	c.linked_candidate_ids,
	c.not_duplicate_of,
	c.application_history,
	c.duplicate_reviewed_at,
	c.duplicate_reviewed_by,
	c.version,
	c.created_at,
	c.updated_at
`

// GetCandidate loads one non-deleted candidate with all arrays decoded.
func (p *Pool) GetCandidate(ctx context.Context, candidateID int64) (*CandidateRecord, error) {
	q := `
SELECT` + candidateRecordColumns + `
FROM intake.candidates c
WHERE c.candidate_id = $1
  AND c.deleted_at IS NULL
`
	return scanCandidateRecord(p.QueryRow(ctx, q, candidateID))
}

// GetCandidateTx is GetCandidate inside an open transaction, with FOR UPDATE
// so concurrent resolution flows serialize on the row.
func GetCandidateTx(ctx context.Context, tx Tx, candidateID int64) (*CandidateRecord, error) {
	q := `
SELECT` + candidateRecordColumns + `
FROM intake.candidates c
WHERE c.candidate_id = $1
  AND c.deleted_at IS NULL
FOR UPDATE
`
	return scanCandidateRecord(tx.QueryRow(ctx, q, candidateID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidateRecord(row rowScanner) (*CandidateRecord, error) {
	var record CandidateRecord
	var skills, qualifications, linkedIDs, notDuplicateOf, history []byte
	if err := row.Scan(
		&record.CandidateID,
		&record.CandidateUUID,
		&record.FirstName,
		&record.LastName,
		&record.PhoneRaw,
		&record.PhoneNormalized,
		&record.Email,
		&record.DuplicateKey,
		&record.JobID,
		&record.JobTitle,
		&record.BranchID,
		&record.BranchName,
		&skills,
		&qualifications,
		&record.CVObjectKey,
		&record.CVFileName,
		&record.CVLanguage,
		&record.DuplicateStatus,
		&record.PrimaryRecordID,
		&linkedIDs,
		&notDuplicateOf,
		&history,
		&record.DuplicateReviewedAt,
		&record.DuplicateReviewedBy,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}

	var err error
	if record.Skills, err = DecodeStringArray(skills); err != nil {
		return nil, err
	}
	if record.Qualifications, err = DecodeStringArray(qualifications); err != nil {
		return nil, err
	}
	if record.LinkedCandidateIDs, err = DecodeIDArray(linkedIDs); err != nil {
		return nil, err
	}
	if record.NotDuplicateOf, err = DecodeIDArray(notDuplicateOf); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &record.ApplicationHistory); err != nil {
			return nil, fmt.Errorf("decode application history: %w", err)
		}
	}
	if record.ApplicationHistory == nil {
		record.ApplicationHistory = []candidate.ApplicationEntry{}
	}
	return &record, nil
}

// ListCandidates lists candidates for CLI and API browsing.
func (p *Pool) ListCandidates(ctx context.Context, opts CandidateListOptions) ([]CandidateListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	c.candidate_id,
	c.candidate_uuid::text,
	trim(c.first_name || ' ' || c.last_name),
	c.phone_normalized,
	c.email,
	c.job_title,
	c.branch_name,
	c.duplicate_status,
	c.primary_record_id,
	c.created_at
FROM intake.candidates c
WHERE c.deleted_at IS NULL
  AND ($1 = '' OR c.branch_id = $1)
  AND ($2 = '' OR c.job_id = $2)
  AND ($3 = '' OR c.duplicate_status::text = $3)
ORDER BY c.created_at DESC, c.candidate_id DESC
LIMIT $4
OFFSET $5
`

	rows, err := p.Query(ctx, q, opts.BranchID, opts.JobID, opts.DuplicateStatus, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateListItem, 0, opts.Limit)
	for rows.Next() {
		var item CandidateListItem
		if err := rows.Scan(
			&item.CandidateID,
			&item.CandidateUUID,
			&item.FullName,
			&item.PhoneNormalized,
			&item.Email,
			&item.JobTitle,
			&item.BranchName,
			&item.DuplicateStatus,
			&item.PrimaryRecordID,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return items, nil
}

// ListClusterMembers returns the linked members attached to one primary.
func (p *Pool) ListClusterMembers(ctx context.Context, primaryID int64) ([]CandidateListItem, error) {
	const q = `
SELECT
	c.candidate_id,
	c.candidate_uuid::text,
	trim(c.first_name || ' ' || c.last_name),
	c.phone_normalized,
	c.email,
	c.job_title,
	c.branch_name,
	c.duplicate_status,
	c.primary_record_id,
	c.created_at
FROM intake.candidates c
WHERE c.deleted_at IS NULL
  AND c.primary_record_id = $1
ORDER BY c.created_at ASC, c.candidate_id ASC
`

	rows, err := p.Query(ctx, q, primaryID)
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateListItem, 0, 4)
	for rows.Next() {
		var item CandidateListItem
		if err := rows.Scan(
			&item.CandidateID,
			&item.CandidateUUID,
			&item.FullName,
			&item.PhoneNormalized,
			&item.Email,
			&item.JobTitle,
			&item.BranchName,
			&item.DuplicateStatus,
			&item.PrimaryRecordID,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", err)
	}
	return items, nil
}

// CountCandidates reports the number of live candidate rows.
func (p *Pool) CountCandidates(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM intake.candidates WHERE deleted_at IS NULL`

	var count int64
	if err := p.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return count, nil
}
