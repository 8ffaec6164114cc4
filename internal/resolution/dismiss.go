package resolution

import (
	"context"
	"fmt"

	"horse.fit/intake/internal/audit"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

// DismissMatch records that the operator reviewed a flagged match and judged
// it not a duplicate. The exclusion takes effect in the session immediately;
// the reviewed stamp is written in the background because the draft side of
// the pair has no id yet.
func (s *Service) DismissMatch(session *Session, candidateID int64, actor string) {
	session.Dismiss(candidateID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dismissalStampTimeout)
		defer cancel()
		if err := s.stampReviewed(ctx, candidateID, actor); err != nil {
			s.logger.Warn().
				Err(err).
				Int64("candidate_id", candidateID).
				Msg("failed to stamp dismissal review")
		}
	}()
}

func (s *Service) stampReviewed(ctx context.Context, candidateID int64, actor string) error {
	now := globaltime.UTC()
	const q = `
UPDATE intake.candidates
SET duplicate_status = CASE
		WHEN duplicate_status = 'none' THEN 'reviewed'::intake.duplicate_status
		ELSE duplicate_status
	END,
	duplicate_reviewed_at = $2,
	duplicate_reviewed_by = $3,
	updated_at = $2
WHERE candidate_id = $1
  AND deleted_at IS NULL
`
	tag, err := s.pool.Exec(ctx, q, candidateID, now, actor)
	if err != nil {
		return fmt.Errorf("stamp review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

// MarkNotDuplicate records a permanent symmetric exclusion between two
// existing records. Both edges commit together; the pair never reappears in
// duplicate reports for either side.
func (s *Service) MarkNotDuplicate(ctx context.Context, aID, bID int64, actor string) error {
	if aID == bID {
		return fmt.Errorf("cannot mark a candidate as not a duplicate of itself")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin not-duplicate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := globaltime.UTC()
	if err := appendNotDuplicateOf(ctx, tx, aID, bID, now); err != nil {
		return err
	}
	if err := appendNotDuplicateOf(ctx, tx, bID, aID, now); err != nil {
		return err
	}

	for _, pair := range [][2]int64{{aID, bID}, {bID, aID}} {
		if err := s.audit.RecordTx(ctx, tx, audit.Entry{
			EntityID:    pair[0],
			Action:      audit.ActionNotDuplicate,
			Description: fmt.Sprintf("marked not a duplicate of candidate %d", pair[1]),
			NewValue:    map[string]int64{"not_duplicate_of": pair[1]},
			Actor:       actor,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit not-duplicate tx: %w", err)
	}

	s.logger.Info().
		Int64("candidate_a", aID).
		Int64("candidate_b", bID).
		Msg("not-duplicate pair recorded")

	// A reviewed stamp on both sides keeps the pair visibly resolved.
	for _, id := range []int64{aID, bID} {
		if err := s.stampReviewed(ctx, id, actor); err != nil {
			s.logger.Warn().Err(err).Int64("candidate_id", id).Msg("failed to stamp review after not-duplicate")
		}
	}
	return nil
}
