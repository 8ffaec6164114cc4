package resolution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/intake/internal/audit"
	"horse.fit/intake/internal/blob"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/dedup"
	"horse.fit/intake/internal/globaltime"
)

const dismissalStampTimeout = 10 * time.Second

// Service owns every write path that creates or mutates candidate records.
// The matcher itself stays pure; this service fetches the comparison set,
// invokes it, and executes the chosen resolution.
type Service struct {
	pool   *db.Pool
	blobs  *blob.Store
	audit  *audit.Recorder
	logger zerolog.Logger
}

func NewService(pool *db.Pool, blobs *blob.Store, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		blobs:  blobs,
		audit:  recorder,
		logger: logger,
	}
}

// CheckRequest describes one duplicate check.
type CheckRequest struct {
	Draft candidate.Draft

	// SelfID identifies the already-persisted record the draft corresponds
	// to, when re-checking after creation or during edit. The record itself
	// and its recorded not-duplicate pairs are excluded from matching.
	SelfID *int64

	// Session carries dismissals accumulated earlier in this flow.
	Session *Session
}

// CheckDuplicates runs the matcher against all live candidates minus the
// request's exclusions. Read-only.
func (s *Service) CheckDuplicates(ctx context.Context, req CheckRequest) (dedup.Report, error) {
	if err := req.Draft.Validate(); err != nil {
		return dedup.Report{}, fmt.Errorf("invalid draft: %w", err)
	}

	exclude := make(map[int64]struct{})
	for _, id := range req.Session.IDs() {
		exclude[id] = struct{}{}
	}
	if req.SelfID != nil {
		exclude[*req.SelfID] = struct{}{}
		self, err := s.pool.GetCandidate(ctx, *req.SelfID)
		if err != nil && !db.IsNoRows(err) {
			return dedup.Report{}, fmt.Errorf("load self record: %w", err)
		}
		if self != nil {
			for _, id := range self.NotDuplicateOf {
				exclude[id] = struct{}{}
			}
		}
	}

	summaries, err := s.pool.ListCandidateSummaries(ctx)
	if err != nil {
		return dedup.Report{}, fmt.Errorf("load candidate summaries: %w", err)
	}

	// Symmetry may still be settling: a record that lists SelfID in its own
	// not_duplicate_of is excluded even if the reverse edge is not yet
	// written.
	if req.SelfID != nil {
		for _, summary := range summaries {
			for _, id := range summary.NotDuplicateOf {
				if id == *req.SelfID {
					exclude[summary.CandidateID] = struct{}{}
					break
				}
			}
		}
	}

	return dedup.Check(req.Draft, summaries, exclude, globaltime.UTC()), nil
}

// CreateOptions controls candidate creation.
type CreateOptions struct {
	Actor string

	// Override permits creation despite a block recommendation. Required
	// when the matcher found an exact duplicate key.
	Override bool

	// SkipCheck creates without running the matcher; used when the caller
	// already ran it in this flow.
	SkipCheck bool

	Session *Session
}

// CreateCandidate validates the draft, enforces duplicate blocking, inserts
// the record, and completes dismissal symmetry for any ids the session
// accumulated.
func (s *Service) CreateCandidate(ctx context.Context, draft candidate.Draft, opts CreateOptions) (*db.CandidateRecord, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid draft: %w", err)
	}

	if !opts.SkipCheck {
		report, err := s.CheckDuplicates(ctx, CheckRequest{Draft: draft, Session: opts.Session})
		if err != nil {
			return nil, err
		}
		if report.RecommendedAction == dedup.ActionBlock && !opts.Override {
			return nil, &BlockedError{Report: report}
		}
	}

	candidateID, err := s.insertCandidate(ctx, s.pool, draft, candidate.StatusNone, nil, opts.Session.IDs())
	if err != nil {
		return nil, err
	}
	record, err := s.pool.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("reload created candidate: %w", err)
	}

	s.completeDismissalSymmetry(ctx, record.CandidateID, opts.Session.IDs(), opts.Actor)

	s.audit.RecordBestEffort(ctx, audit.Entry{
		EntityID:    record.CandidateID,
		Action:      audit.ActionCreated,
		Description: fmt.Sprintf("candidate %s created for %s", record.CandidateUUID, draft.JobTitle),
		NewValue:    record,
		Actor:       opts.Actor,
	})

	s.logger.Info().
		Int64("candidate_id", record.CandidateID).
		Str("duplicate_key", record.DuplicateKey).
		Int("dismissals", opts.Session.Len()).
		Msg("candidate created")

	return record, nil
}

// querier is satisfied by both *db.Pool and db.Tx, so the same insert path
// serves plain creation and the transactional link write.
type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) *db.Row
	Exec(ctx context.Context, query string, args ...any) (db.CommandTag, error)
}

// insertCandidate persists a draft as a new row. The application history
// starts with the record's own application entry.
func (s *Service) insertCandidate(ctx context.Context, q querier, draft candidate.Draft, status string, primaryID *int64, notDuplicateOf []int64) (int64, error) {
	now := globaltime.UTC()

	skills, err := db.EncodeStringArray(dedupeStrings(draft.Skills))
	if err != nil {
		return 0, err
	}
	qualifications, err := db.EncodeStringArray(dedupeStrings(draft.Qualifications))
	if err != nil {
		return 0, err
	}
	exclusions, err := db.EncodeIDArray(notDuplicateOf)
	if err != nil {
		return 0, err
	}
	linkedIDs := []int64{}
	if primaryID != nil {
		linkedIDs = []int64{*primaryID}
	}
	linked, err := db.EncodeIDArray(linkedIDs)
	if err != nil {
		return 0, err
	}

	const insertSQL = `
INSERT INTO intake.candidates (
	first_name, last_name, phone_raw, phone_normalized, email, duplicate_key,
	job_id, job_title, branch_id, branch_name,
	skills, qualifications, cv_object_key, cv_file_name, cv_language,
	duplicate_status, primary_record_id, linked_candidate_ids, not_duplicate_of,
	application_history, version, created_at, updated_at
)
VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10,
	$11, $12, $13, $14, $15,
	$16, $17, $18, $19,
	'[]', 1, $20, $20
)
RETURNING candidate_id
`

	var candidateID int64
	if err := q.QueryRow(ctx, insertSQL,
		strings.TrimSpace(draft.FirstName),
		strings.TrimSpace(draft.LastName),
		strings.TrimSpace(draft.Phone),
		candidate.NormalizePhone(draft.Phone),
		strings.TrimSpace(draft.Email),
		draft.DuplicateKey(),
		strings.TrimSpace(draft.JobID),
		strings.TrimSpace(draft.JobTitle),
		strings.TrimSpace(draft.BranchID),
		strings.TrimSpace(draft.BranchName),
		string(skills),
		string(qualifications),
		nullableString(draft.CVObjectKey),
		nullableString(draft.CVFileName),
		nullableString(draft.CVLanguage),
		status,
		primaryID,
		string(linked),
		string(exclusions),
		now,
	).Scan(&candidateID); err != nil {
		return 0, fmt.Errorf("insert candidate: %w", err)
	}

	// The history entry references the record's own id, which only exists
	// after the insert.
	entry := candidate.ApplicationEntry{
		CandidateID: candidateID,
		JobID:       strings.TrimSpace(draft.JobID),
		JobTitle:    strings.TrimSpace(draft.JobTitle),
		BranchID:    strings.TrimSpace(draft.BranchID),
		BranchName:  strings.TrimSpace(draft.BranchName),
		AppliedAt:   now,
		Status:      "applied",
	}
	if err := appendHistory(ctx, q, candidateID, entry, now); err != nil {
		return 0, err
	}

	return candidateID, nil
}

// completeDismissalSymmetry writes the reverse not-duplicate edge onto each
// record dismissed during the session, now that the new id exists. Failures
// are logged, not fatal: symmetry settles on the next resolution touching the
// pair.
func (s *Service) completeDismissalSymmetry(ctx context.Context, newID int64, dismissedIDs []int64, actor string) {
	now := globaltime.UTC()
	for _, existingID := range dismissedIDs {
		if err := appendNotDuplicateOf(ctx, s.pool, existingID, newID, now); err != nil {
			s.logger.Warn().
				Err(err).
				Int64("candidate_id", existingID).
				Int64("not_duplicate_of", newID).
				Msg("failed to complete dismissal symmetry")
			continue
		}
		s.audit.RecordBestEffort(ctx, audit.Entry{
			EntityID:    existingID,
			Action:      audit.ActionNotDuplicate,
			Description: fmt.Sprintf("marked not a duplicate of candidate %d", newID),
			NewValue:    map[string]int64{"not_duplicate_of": newID},
			Actor:       actor,
		})
	}
}

// appendNotDuplicateOf appends one id to a record's not_duplicate_of list.
// The containment guard makes the append idempotent inside one statement, so
// concurrent resolutions cannot drop each other's entries.
func appendNotDuplicateOf(ctx context.Context, q querier, candidateID, otherID int64, now time.Time) error {
	const updateSQL = `
UPDATE intake.candidates
SET not_duplicate_of = CASE
		WHEN not_duplicate_of @> to_jsonb($2::bigint) THEN not_duplicate_of
		ELSE not_duplicate_of || to_jsonb($2::bigint)
	END,
	version = version + 1,
	updated_at = $3
WHERE candidate_id = $1
  AND deleted_at IS NULL
`
	tag, err := q.Exec(ctx, updateSQL, candidateID, otherID, now)
	if err != nil {
		return fmt.Errorf("append not_duplicate_of: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

func appendHistory(ctx context.Context, q querier, candidateID int64, entry candidate.ApplicationEntry, now time.Time) error {
	raw, err := db.EncodeHistoryEntry(entry)
	if err != nil {
		return err
	}

	const updateSQL = `
UPDATE intake.candidates
SET application_history = application_history || $2::jsonb,
	updated_at = $3
WHERE candidate_id = $1
  AND deleted_at IS NULL
`
	tag, err := q.Exec(ctx, updateSQL, candidateID, string(raw), now)
	if err != nil {
		return fmt.Errorf("append application history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
