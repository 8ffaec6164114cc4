package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/intake/internal/bulk"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/resolution"
)

// handleCreateBatch accepts a multipart upload of CV files plus the shared
// job/branch context, registers the batch, and processes it in the
// background. The response carries the batch id for polling.
func (s *Server) handleCreateBatch(c echo.Context) error {
	principal, _ := principalFromContext(c)

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadBody)
	form, err := c.MultipartForm()
	if err != nil {
		return failValidation(c, map[string]string{"body": "multipart form is required"})
	}

	req := bulk.Request{
		JobID:      strings.TrimSpace(c.FormValue("job_id")),
		JobTitle:   strings.TrimSpace(c.FormValue("job_title")),
		BranchID:   strings.TrimSpace(c.FormValue("branch_id")),
		BranchName: strings.TrimSpace(c.FormValue("branch_name")),
		Actor:      principal.Username,
	}
	if req.JobID == "" || req.BranchID == "" {
		return failValidation(c, map[string]string{
			"job_id":    "is required",
			"branch_id": "is required",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return failValidation(c, map[string]string{"files": "at least one file is required"})
	}

	// Files are buffered up front: the multipart temp files vanish when the
	// request finishes, while processing continues after the response.
	uploads := make([]bulk.Upload, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return failValidation(c, map[string]string{"files": "could not read " + header.Filename})
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return failValidation(c, map[string]string{"files": "could not read " + header.Filename})
		}
		uploads = append(uploads, bulk.Upload{
			FileName: header.Filename,
			Content:  bytes.NewReader(content),
		})
	}

	batchID, itemIDs, err := s.coordinator.Prepare(c.Request().Context(), req, uploads)
	if err != nil {
		s.logger.Error().Err(err).Msg("prepare batch failed")
		return internalError(c, "Failed to create batch")
	}

	go func() {
		if _, err := s.coordinator.Process(s.baseCtx, req, batchID, itemIDs, uploads); err != nil {
			s.logger.Error().Err(err).Int64("batch_id", batchID).Msg("batch processing failed")
		}
	}()

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"batch_id":   batchID,
		"item_count": len(uploads),
	})
}

func (s *Server) handleListBatches(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	batches, err := s.pool.ListBatches(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list batches failed")
		return internalError(c, "Failed to load batches")
	}

	return success(c, map[string]any{"items": batches})
}

func (s *Server) handleBatchDetail(c echo.Context) error {
	batchID, err := parseID(c.Param("batch_id"))
	if err != nil {
		return failValidation(c, map[string]string{"batch_id": err.Error()})
	}

	batch, err := s.pool.GetBatch(c.Request().Context(), batchID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Batch not found")
		}
		s.logger.Error().Err(err).Int64("batch_id", batchID).Msg("load batch failed")
		return internalError(c, "Failed to load batch")
	}

	items, err := s.pool.ListBatchItems(c.Request().Context(), batchID)
	if err != nil {
		s.logger.Error().Err(err).Int64("batch_id", batchID).Msg("load batch items failed")
		return internalError(c, "Failed to load batch")
	}

	return success(c, map[string]any{
		"batch": batch,
		"items": items,
	})
}

func (s *Server) handleRetryItem(c echo.Context) error {
	batchID, err := parseID(c.Param("batch_id"))
	if err != nil {
		return failValidation(c, map[string]string{"batch_id": err.Error()})
	}
	itemID, err := parseID(c.Param("item_id"))
	if err != nil {
		return failValidation(c, map[string]string{"item_id": err.Error()})
	}

	item, err := s.coordinator.RetryItem(c.Request().Context(), itemID)
	if err != nil {
		return s.itemError(c, err, "retry item failed")
	}
	if item.BatchID != batchID {
		return failNotFound(c, "Batch item not found")
	}

	return success(c, map[string]any{"item": item})
}

type resolveItemRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleResolveItem(c echo.Context) error {
	principal, _ := principalFromContext(c)

	batchID, err := parseID(c.Param("batch_id"))
	if err != nil {
		return failValidation(c, map[string]string{"batch_id": err.Error()})
	}
	itemID, err := parseID(c.Param("item_id"))
	if err != nil {
		return failValidation(c, map[string]string{"item_id": err.Error()})
	}

	var req resolveItemRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	decision := strings.TrimSpace(strings.ToLower(req.Decision))
	switch decision {
	case resolution.DecisionMerge, resolution.DecisionLink, resolution.DecisionAddAnyway:
	default:
		return failValidation(c, map[string]string{"decision": "must be merge, link, or add_anyway"})
	}

	item, err := s.coordinator.ResolveDuplicate(c.Request().Context(), itemID, decision, principal.Username)
	if err != nil {
		return s.itemError(c, err, "resolve duplicate item failed")
	}
	if item.BatchID != batchID {
		return failNotFound(c, "Batch item not found")
	}

	return success(c, map[string]any{"item": item})
}

func (s *Server) itemError(c echo.Context, err error, logMessage string) error {
	message := err.Error()
	switch {
	case strings.Contains(message, "not found"):
		return failNotFound(c, "Batch item not found")
	case strings.Contains(message, "only errored items") ||
		strings.Contains(message, "not awaiting duplicate resolution") ||
		strings.Contains(message, "no stored file"):
		return fail(c, http.StatusConflict, message, nil)
	default:
		s.logger.Error().Err(err).Msg(logMessage)
		return internalError(c, "Request failed")
	}
}
