package resolution

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/intake/internal/audit"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

// MergeRequest folds a draft's data into an existing primary record.
type MergeRequest struct {
	PrimaryID int64
	Draft     candidate.Draft
	Actor     string

	// SecondaryID is the already-persisted record being absorbed, when the
	// merge resolves two existing rows rather than an unsaved draft. In the
	// bulk flow it stays nil: the duplicate item was never created.
	SecondaryID *int64

	// DeleteSecondary removes the secondary after the merge write commits.
	// When false the secondary is re-pointed at the primary as a linked
	// record instead.
	DeleteSecondary bool
}

// mergePlan is the computed outcome of folding a draft into a primary.
type mergePlan struct {
	FirstName      string
	LastName       string
	PhoneRaw       string
	Email          string
	JobTitle       string
	Skills         []string
	Qualifications []string
	CVObjectKey    *string
	CVFileName     *string
	CVLanguage     *string
	ChangedFields  []string
}

// buildMergePlan applies the fill-empty / union rules. Scalars only fill
// holes: a populated primary field is never overwritten. Arrays union with
// case-insensitive de-duplication. The CV attachment is adopted only when
// the primary has none.
func buildMergePlan(primary *db.CandidateRecord, draft candidate.Draft) mergePlan {
	plan := mergePlan{
		FirstName:   primary.FirstName,
		LastName:    primary.LastName,
		PhoneRaw:    primary.PhoneRaw,
		Email:       primary.Email,
		JobTitle:    primary.JobTitle,
		CVObjectKey: primary.CVObjectKey,
		CVFileName:  primary.CVFileName,
		CVLanguage:  primary.CVLanguage,
	}

	fillScalar(&plan.FirstName, draft.FirstName, "firstName", &plan.ChangedFields)
	fillScalar(&plan.LastName, draft.LastName, "lastName", &plan.ChangedFields)
	fillScalar(&plan.PhoneRaw, draft.Phone, "phone", &plan.ChangedFields)
	fillScalar(&plan.Email, draft.Email, "email", &plan.ChangedFields)
	fillScalar(&plan.JobTitle, draft.JobTitle, "jobTitle", &plan.ChangedFields)

	plan.Skills = unionStrings(primary.Skills, draft.Skills)
	if len(plan.Skills) != len(primary.Skills) {
		plan.ChangedFields = append(plan.ChangedFields, "skills")
	}
	plan.Qualifications = unionStrings(primary.Qualifications, draft.Qualifications)
	if len(plan.Qualifications) != len(primary.Qualifications) {
		plan.ChangedFields = append(plan.ChangedFields, "qualifications")
	}

	if primary.CVObjectKey == nil && strings.TrimSpace(draft.CVObjectKey) != "" {
		plan.CVObjectKey = nullableString(draft.CVObjectKey)
		plan.CVFileName = nullableString(draft.CVFileName)
		plan.CVLanguage = nullableString(draft.CVLanguage)
		plan.ChangedFields = append(plan.ChangedFields, "cv")
	}

	return plan
}

// Merge executes the merge write. It always re-stamps the primary's
// duplicate status and review metadata, even when no field changed.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (*db.CandidateRecord, error) {
	primary, err := s.pool.GetCandidate(ctx, req.PrimaryID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("load primary: %w", err)
	}

	plan := buildMergePlan(primary, req.Draft)
	now := globaltime.UTC()

	skills, err := db.EncodeStringArray(plan.Skills)
	if err != nil {
		return nil, err
	}
	qualifications, err := db.EncodeStringArray(plan.Qualifications)
	if err != nil {
		return nil, err
	}

	const q = `
UPDATE intake.candidates
SET first_name = $3,
	last_name = $4,
	phone_raw = $5,
	phone_normalized = $6,
	email = $7,
	duplicate_key = $8,
	job_title = $9,
	skills = $10,
	qualifications = $11,
	cv_object_key = $12,
	cv_file_name = $13,
	cv_language = $14,
	duplicate_status = 'primary',
	duplicate_reviewed_at = $15,
	duplicate_reviewed_by = $16,
	version = version + 1,
	updated_at = $15
WHERE candidate_id = $1
  AND version = $2
  AND deleted_at IS NULL
`

	tag, err := s.pool.Exec(ctx, q,
		primary.CandidateID,
		primary.Version,
		plan.FirstName,
		plan.LastName,
		plan.PhoneRaw,
		candidate.NormalizePhone(plan.PhoneRaw),
		plan.Email,
		candidate.DuplicateKey(plan.FirstName, plan.LastName, plan.PhoneRaw),
		plan.JobTitle,
		string(skills),
		string(qualifications),
		plan.CVObjectKey,
		plan.CVFileName,
		plan.CVLanguage,
		now,
		strings.TrimSpace(req.Actor),
	)
	if err != nil {
		return nil, fmt.Errorf("merge write: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrVersionConflict
	}

	merged, err := s.pool.GetCandidate(ctx, primary.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("reload merged primary: %w", err)
	}

	s.audit.RecordBestEffort(ctx, audit.Entry{
		EntityID:      primary.CandidateID,
		Action:        audit.ActionMerged,
		Description:   fmt.Sprintf("merged duplicate submission into candidate %s (fields: %s)", primary.CandidateUUID, strings.Join(plan.ChangedFields, ", ")),
		PreviousValue: primary,
		NewValue:      merged,
		Actor:         req.Actor,
	})

	// The secondary is touched only after the merge write committed; losing
	// it on a partial failure would lose duplicate content.
	if req.SecondaryID != nil {
		s.settleSecondary(ctx, merged, *req.SecondaryID, req.DeleteSecondary, req.Actor)
		merged, err = s.pool.GetCandidate(ctx, primary.CandidateID)
		if err != nil {
			return nil, fmt.Errorf("reload merged primary: %w", err)
		}
	}

	s.logger.Info().
		Int64("candidate_id", merged.CandidateID).
		Strs("changed_fields", plan.ChangedFields).
		Msg("merge completed")

	return merged, nil
}

// settleSecondary deletes or re-links the absorbed record. A failed delete
// downgrades to a link so the record is never left orphaned.
func (s *Service) settleSecondary(ctx context.Context, primary *db.CandidateRecord, secondaryID int64, deleteSecondary bool, actor string) {
	if deleteSecondary {
		err := s.deleteSecondary(ctx, primary, secondaryID, actor)
		if err == nil {
			return
		}
		s.logger.Warn().
			Err(err).
			Int64("secondary_id", secondaryID).
			Msg("secondary delete failed, leaving it linked instead")
	}

	if err := s.attachExisting(ctx, primary.CandidateID, secondaryID); err != nil {
		s.logger.Error().
			Err(err).
			Int64("primary_id", primary.CandidateID).
			Int64("secondary_id", secondaryID).
			Msg("failed to link secondary after merge")
	}
}

func (s *Service) deleteSecondary(ctx context.Context, primary *db.CandidateRecord, secondaryID int64, actor string) error {
	secondary, err := s.pool.GetCandidate(ctx, secondaryID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil
		}
		return fmt.Errorf("load secondary: %w", err)
	}

	now := globaltime.UTC()
	const q = `
UPDATE intake.candidates
SET deleted_at = $2, updated_at = $2
WHERE candidate_id = $1
  AND deleted_at IS NULL
`
	if _, err := s.pool.Exec(ctx, q, secondaryID, now); err != nil {
		return fmt.Errorf("delete secondary: %w", err)
	}

	// The CV blob is removed only when the primary does not reference it.
	if secondary.CVObjectKey != nil && (primary.CVObjectKey == nil || *primary.CVObjectKey != *secondary.CVObjectKey) {
		if err := s.blobs.Delete(*secondary.CVObjectKey); err != nil {
			s.logger.Warn().Err(err).Str("cv_object_key", *secondary.CVObjectKey).Msg("failed to delete secondary cv blob")
		}
	}

	s.audit.RecordBestEffort(ctx, audit.Entry{
		EntityID:      secondaryID,
		Action:        audit.ActionDeleted,
		Description:   fmt.Sprintf("deleted after merge into candidate %d", primary.CandidateID),
		PreviousValue: secondary,
		Actor:         actor,
	})
	return nil
}

func fillScalar(target *string, value, fieldName string, changed *[]string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return
	}
	*target = trimmed
	*changed = append(*changed, fieldName)
}

func unionStrings(existing, incoming []string) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, value := range existing {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	for _, value := range incoming {
		trimmed := strings.TrimSpace(value)
		key := strings.ToLower(trimmed)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
