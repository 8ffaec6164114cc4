package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/resolution"
)

type draftPayload struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email"`
	JobID          string   `json:"job_id"`
	JobTitle       string   `json:"job_title"`
	BranchID       string   `json:"branch_id"`
	BranchName     string   `json:"branch_name"`
	Skills         []string `json:"skills"`
	Qualifications []string `json:"qualifications"`
}

func (p draftPayload) toDraft() candidate.Draft {
	return candidate.Draft{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Phone:          p.Phone,
		Email:          p.Email,
		JobID:          p.JobID,
		JobTitle:       p.JobTitle,
		BranchID:       p.BranchID,
		BranchName:     p.BranchName,
		Skills:         p.Skills,
		Qualifications: p.Qualifications,
	}
}

type checkRequest struct {
	Draft        draftPayload `json:"draft"`
	SelfID       *int64       `json:"self_id,omitempty"`
	DismissedIDs []int64      `json:"dismissed_ids,omitempty"`
}

type createRequest struct {
	Draft        draftPayload `json:"draft"`
	Override     bool         `json:"override,omitempty"`
	DismissedIDs []int64      `json:"dismissed_ids,omitempty"`
}

type mergeRequest struct {
	Draft           draftPayload `json:"draft"`
	SecondaryID     *int64       `json:"secondary_id,omitempty"`
	DeleteSecondary bool         `json:"delete_secondary,omitempty"`
}

type linkRequest struct {
	Draft        draftPayload `json:"draft"`
	DismissedIDs []int64      `json:"dismissed_ids,omitempty"`
}

type notDuplicateRequest struct {
	CandidateA int64 `json:"candidate_a"`
	CandidateB int64 `json:"candidate_b"`
}

func sessionFromIDs(ids []int64) *resolution.Session {
	session := resolution.NewSession()
	for _, id := range ids {
		session.Dismiss(id)
	}
	return session
}

func (s *Server) handleCheckDuplicates(c echo.Context) error {
	var req checkRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	report, err := s.resolutions.CheckDuplicates(c.Request().Context(), resolution.CheckRequest{
		Draft:   req.Draft.toDraft(),
		SelfID:  req.SelfID,
		Session: sessionFromIDs(req.DismissedIDs),
	})
	if err != nil {
		if candidate.IsValidationError(err) {
			return failValidation(c, map[string]string{"draft": err.Error()})
		}
		s.logger.Error().Err(err).Msg("duplicate check failed")
		return internalError(c, "Failed to check duplicates")
	}

	return success(c, report)
}

func (s *Server) handleCreateCandidate(c echo.Context) error {
	principal, _ := principalFromContext(c)

	var req createRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	record, err := s.resolutions.CreateCandidate(c.Request().Context(), req.Draft.toDraft(), resolution.CreateOptions{
		Actor:    principal.Username,
		Override: req.Override,
		Session:  sessionFromIDs(req.DismissedIDs),
	})
	if err != nil {
		if blocked, ok := resolution.IsBlocked(err); ok {
			return fail(c, http.StatusConflict, "Creation blocked by duplicate match", map[string]any{
				"report": blocked.Report,
			})
		}
		if candidate.IsValidationError(err) {
			return failValidation(c, map[string]string{"draft": err.Error()})
		}
		s.logger.Error().Err(err).Msg("create candidate failed")
		return internalError(c, "Failed to create candidate")
	}

	return successWithStatus(c, http.StatusCreated, map[string]any{"candidate": record})
}

func (s *Server) handleMerge(c echo.Context) error {
	principal, _ := principalFromContext(c)

	primaryID, err := parseID(c.Param("candidate_id"))
	if err != nil {
		return failValidation(c, map[string]string{"candidate_id": err.Error()})
	}

	var req mergeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	record, err := s.resolutions.Merge(c.Request().Context(), resolution.MergeRequest{
		PrimaryID:       primaryID,
		Draft:           req.Draft.toDraft(),
		Actor:           principal.Username,
		SecondaryID:     req.SecondaryID,
		DeleteSecondary: req.DeleteSecondary,
	})
	if err != nil {
		return s.resolutionError(c, err, "merge failed")
	}

	return success(c, map[string]any{"candidate": record})
}

func (s *Server) handleLink(c echo.Context) error {
	principal, _ := principalFromContext(c)

	primaryID, err := parseID(c.Param("candidate_id"))
	if err != nil {
		return failValidation(c, map[string]string{"candidate_id": err.Error()})
	}

	var req linkRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	record, err := s.resolutions.Link(c.Request().Context(), resolution.LinkRequest{
		PrimaryID: primaryID,
		Draft:     req.Draft.toDraft(),
		Actor:     principal.Username,
		Session:   sessionFromIDs(req.DismissedIDs),
	})
	if err != nil {
		return s.resolutionError(c, err, "link failed")
	}

	return successWithStatus(c, http.StatusCreated, map[string]any{"candidate": record})
}

func (s *Server) handleNotDuplicate(c echo.Context) error {
	principal, _ := principalFromContext(c)

	var req notDuplicateRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if req.CandidateA <= 0 || req.CandidateB <= 0 {
		return failValidation(c, map[string]string{
			"candidate_a": "is required",
			"candidate_b": "is required",
		})
	}
	if req.CandidateA == req.CandidateB {
		return failValidation(c, map[string]string{"candidate_b": "must differ from candidate_a"})
	}

	if err := s.resolutions.MarkNotDuplicate(c.Request().Context(), req.CandidateA, req.CandidateB, principal.Username); err != nil {
		return s.resolutionError(c, err, "mark not-duplicate failed")
	}

	return success(c, map[string]any{"marked": true})
}

func (s *Server) resolutionError(c echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, resolution.ErrCandidateNotFound):
		return failNotFound(c, "Candidate not found")
	case errors.Is(err, resolution.ErrVersionConflict):
		return fail(c, http.StatusConflict, "Candidate was modified concurrently, reload and retry", nil)
	case candidate.IsValidationError(err):
		return failValidation(c, map[string]string{"draft": err.Error()})
	default:
		s.logger.Error().Err(err).Msg(logMessage)
		return internalError(c, "Request failed")
	}
}

func (s *Server) handleListCandidates(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	offset, err := parsePositiveInt(c.QueryParam("offset"), 0, 0, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"offset": err.Error()})
	}

	opts := db.CandidateListOptions{
		BranchID:        strings.TrimSpace(c.QueryParam("branch_id")),
		JobID:           strings.TrimSpace(c.QueryParam("job_id")),
		DuplicateStatus: strings.TrimSpace(strings.ToLower(c.QueryParam("status"))),
		Limit:           limit,
		Offset:          offset,
	}

	items, err := s.pool.ListCandidates(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list candidates failed")
		return internalError(c, "Failed to load candidates")
	}

	return success(c, map[string]any{
		"items": items,
		"filters": map[string]any{
			"branch_id": opts.BranchID,
			"job_id":    opts.JobID,
			"status":    opts.DuplicateStatus,
		},
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleCandidateDetail(c echo.Context) error {
	candidateID, err := parseID(c.Param("candidate_id"))
	if err != nil {
		return failValidation(c, map[string]string{"candidate_id": err.Error()})
	}

	record, err := s.pool.GetCandidate(c.Request().Context(), candidateID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Candidate not found")
		}
		s.logger.Error().Err(err).Int64("candidate_id", candidateID).Msg("load candidate failed")
		return internalError(c, "Failed to load candidate")
	}

	// For a primary record the cluster view lists its linked members; for a
	// linked record it lists its siblings under the shared primary.
	clusterRoot := record.CandidateID
	if record.PrimaryRecordID != nil {
		clusterRoot = *record.PrimaryRecordID
	}
	members, err := s.pool.ListClusterMembers(c.Request().Context(), clusterRoot)
	if err != nil {
		s.logger.Error().Err(err).Int64("candidate_id", candidateID).Msg("load cluster members failed")
		return internalError(c, "Failed to load candidate")
	}

	response := map[string]any{
		"candidate": record,
		"cluster":   members,
	}
	if record.CVObjectKey != nil {
		response["cv_url"] = "/api/v1" + s.blobs.URLPath(*record.CVObjectKey)
	}
	return success(c, response)
}

func (s *Server) handleCandidateActivity(c echo.Context) error {
	candidateID, err := parseID(c.Param("candidate_id"))
	if err != nil {
		return failValidation(c, map[string]string{"candidate_id": err.Error()})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), 50, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	entries, err := s.pool.ListActivityForEntity(c.Request().Context(), candidateID, limit)
	if err != nil {
		s.logger.Error().Err(err).Int64("candidate_id", candidateID).Msg("list activity failed")
		return internalError(c, "Failed to load activity")
	}

	return success(c, map[string]any{"items": entries})
}

type statsResponse struct {
	Candidates        int64            `json:"candidates"`
	ByDuplicateStatus map[string]int64 `json:"by_duplicate_status"`
	Batches           int64            `json:"batches"`
	RunningBatches    int64            `json:"running_batches"`
	ItemsByStatus     map[string]int64 `json:"items_by_status"`
	LastCandidateAt   *time.Time       `json:"last_candidate_at,omitempty"`
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.queryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) queryStats(ctx context.Context) (*statsResponse, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM intake.candidates WHERE deleted_at IS NULL) AS candidates,
	(SELECT COUNT(*) FROM intake.batches) AS batches,
	(SELECT COUNT(*) FROM intake.batches WHERE status = 'running') AS running_batches,
	(SELECT MAX(created_at) FROM intake.candidates WHERE deleted_at IS NULL) AS last_candidate_at
`

	var stats statsResponse
	if err := s.pool.QueryRow(ctx, q).Scan(
		&stats.Candidates,
		&stats.Batches,
		&stats.RunningBatches,
		&stats.LastCandidateAt,
	); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	const statusQuery = `
SELECT duplicate_status::text, COUNT(*)::BIGINT
FROM intake.candidates
WHERE deleted_at IS NULL
GROUP BY duplicate_status
ORDER BY duplicate_status
`
	rows, err := s.pool.Query(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	stats.ByDuplicateStatus = map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByDuplicateStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	const itemsQuery = `
SELECT status::text, COUNT(*)::BIGINT
FROM intake.batch_items
GROUP BY status
ORDER BY status
`
	itemRows, err := s.pool.Query(ctx, itemsQuery)
	if err != nil {
		return nil, fmt.Errorf("query item counts: %w", err)
	}
	defer itemRows.Close()

	stats.ItemsByStatus = map[string]int64{}
	for itemRows.Next() {
		var status string
		var count int64
		if err := itemRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan item count: %w", err)
		}
		stats.ItemsByStatus[status] = count
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item counts: %w", err)
	}

	return &stats, nil
}
