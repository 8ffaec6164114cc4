package resolution

import (
	"context"
	"fmt"

	"horse.fit/intake/internal/audit"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

// LinkRequest creates a draft as a linked record under an existing primary.
type LinkRequest struct {
	PrimaryID int64
	Draft     candidate.Draft
	Actor     string
	Session   *Session
}

// Link inserts the draft as a linked record and promotes the target to
// primary, all in one transaction. Either both records reflect the link or
// neither does.
func (s *Service) Link(ctx context.Context, req LinkRequest) (*db.CandidateRecord, error) {
	if err := req.Draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid draft: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin link tx: %w", err)
	}
	defer tx.Rollback(ctx)

	primary, err := GetCandidateForUpdate(ctx, tx, req.PrimaryID)
	if err != nil {
		return nil, err
	}

	linkedID, err := s.insertCandidate(ctx, tx, req.Draft, candidate.StatusLinked, &primary.CandidateID, req.Session.IDs())
	if err != nil {
		return nil, err
	}

	if err := promotePrimary(ctx, tx, primary, linkedID); err != nil {
		return nil, err
	}

	if err := s.audit.RecordTx(ctx, tx, audit.Entry{
		EntityID:    linkedID,
		Action:      audit.ActionCreated,
		Description: fmt.Sprintf("created as linked record under candidate %d", primary.CandidateID),
		Actor:       req.Actor,
	}); err != nil {
		return nil, err
	}
	if err := s.audit.RecordTx(ctx, tx, audit.Entry{
		EntityID:    primary.CandidateID,
		Action:      audit.ActionLinked,
		Description: fmt.Sprintf("candidate %d linked as duplicate application", linkedID),
		NewValue:    map[string]int64{"linked_candidate_id": linkedID},
		Actor:       req.Actor,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit link tx: %w", err)
	}

	s.completeDismissalSymmetry(ctx, linkedID, req.Session.IDs(), req.Actor)

	record, err := s.pool.GetCandidate(ctx, linkedID)
	if err != nil {
		return nil, fmt.Errorf("reload linked candidate: %w", err)
	}

	s.logger.Info().
		Int64("candidate_id", linkedID).
		Int64("primary_id", primary.CandidateID).
		Msg("candidate linked")

	return record, nil
}

// attachExisting re-points an already-persisted record at a primary. Used
// when a merge chose to keep the secondary row.
func (s *Service) attachExisting(ctx context.Context, primaryID, secondaryID int64) error {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin attach tx: %w", err)
	}
	defer tx.Rollback(ctx)

	primary, err := GetCandidateForUpdate(ctx, tx, primaryID)
	if err != nil {
		return err
	}

	now := globaltime.UTC()
	const q = `
UPDATE intake.candidates
SET duplicate_status = 'linked',
	primary_record_id = $2,
	version = version + 1,
	updated_at = $3
WHERE candidate_id = $1
  AND deleted_at IS NULL
`
	tag, err := tx.Exec(ctx, q, secondaryID, primaryID, now)
	if err != nil {
		return fmt.Errorf("attach secondary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}

	if err := promotePrimary(ctx, tx, primary, secondaryID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attach tx: %w", err)
	}
	return nil
}

// GetCandidateForUpdate loads a live candidate under a row lock, mapping a
// miss to ErrCandidateNotFound.
func GetCandidateForUpdate(ctx context.Context, tx db.Tx, candidateID int64) (*db.CandidateRecord, error) {
	record, err := db.GetCandidateTx(ctx, tx, candidateID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("load primary for update: %w", err)
	}
	return record, nil
}

// promotePrimary stamps the target as a primary and records the new linked
// id. The version check guards against a concurrent write between the locked
// read and this update.
func promotePrimary(ctx context.Context, tx db.Tx, primary *db.CandidateRecord, linkedID int64) error {
	now := globaltime.UTC()

	history := "application_history"
	args := []any{primary.CandidateID, primary.Version, linkedID, now}
	if len(primary.ApplicationHistory) == 0 {
		// Records created before linking was introduced carry no history.
		// The primary's own application entry is backfilled once, so the
		// cluster's history starts at the original application.
		entry := candidate.ApplicationEntry{
			CandidateID: primary.CandidateID,
			JobID:       primary.JobID,
			JobTitle:    primary.JobTitle,
			BranchID:    primary.BranchID,
			BranchName:  primary.BranchName,
			AppliedAt:   primary.CreatedAt,
			Status:      "applied",
		}
		raw, err := db.EncodeHistoryEntry(entry)
		if err != nil {
			return err
		}
		history = "application_history || $5::jsonb"
		args = append(args, string(raw))
	}

	q := fmt.Sprintf(`
UPDATE intake.candidates
SET duplicate_status = 'primary',
	linked_candidate_ids = CASE
		WHEN linked_candidate_ids @> to_jsonb($3::bigint) THEN linked_candidate_ids
		ELSE linked_candidate_ids || to_jsonb($3::bigint)
	END,
	application_history = %s,
	version = version + 1,
	updated_at = $4
WHERE candidate_id = $1
  AND version = $2
  AND deleted_at IS NULL
`, history)

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("promote primary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
