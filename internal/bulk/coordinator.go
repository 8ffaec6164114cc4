package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/intake/internal/blob"
	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/cvtext"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/dedup"
	"horse.fit/intake/internal/extract"
	"horse.fit/intake/internal/globaltime"
	"horse.fit/intake/internal/langdetect"
	"horse.fit/intake/internal/resolution"
)

// Batch statuses.
const (
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchCancelled = "cancelled"
)

// Item statuses. Terminal ones are success, error, and duplicate.
const (
	ItemPending   = "pending"
	ItemUploading = "uploading"
	ItemParsing   = "parsing"
	ItemCreating  = "creating"
	ItemSuccess   = "success"
	ItemError     = "error"
	ItemDuplicate = "duplicate"
)

const extractedByFilename = "filename"

// Request carries the job and branch context shared by every CV in a batch.
type Request struct {
	JobID      string
	JobTitle   string
	BranchID   string
	BranchName string
	Actor      string
}

// Upload is one CV file submitted to a batch.
type Upload struct {
	FileName string
	Content  io.Reader
}

// batchStore is the slice of the database layer the coordinator writes
// through. *db.Pool satisfies it.
type batchStore interface {
	InsertBatch(ctx context.Context, batchUUID, jobID, jobTitle, branchID, branchName, createdBy string, itemCount int, at time.Time) (int64, error)
	InsertItem(ctx context.Context, itemUUID string, batchID int64, position int, fileName string, at time.Time) (int64, error)
	UpdateItem(ctx context.Context, itemID int64, update db.ItemUpdate, at time.Time) error
	FinishBatch(ctx context.Context, batchID int64, status string, at time.Time) error
	GetBatch(ctx context.Context, batchID int64) (*db.BatchSummary, error)
	GetItem(ctx context.Context, itemID int64) (*db.ItemRow, error)
}

// resolutionService is the slice of the resolution layer the coordinator
// drives per item. *resolution.Service satisfies it.
type resolutionService interface {
	CheckDuplicates(ctx context.Context, req resolution.CheckRequest) (dedup.Report, error)
	CreateCandidate(ctx context.Context, draft candidate.Draft, opts resolution.CreateOptions) (*db.CandidateRecord, error)
	Merge(ctx context.Context, req resolution.MergeRequest) (*db.CandidateRecord, error)
	Link(ctx context.Context, req resolution.LinkRequest) (*db.CandidateRecord, error)
}

// Coordinator processes bulk CV uploads one file at a time. Sequential
// processing means a candidate created from file N is visible to the
// duplicate check for file N+1, so duplicates inside one batch are caught.
type Coordinator struct {
	pool        batchStore
	blobs       *blob.Store
	resolutions resolutionService
	provider    extract.Provider
	logger      zerolog.Logger
	maxRetries  int
}

func NewCoordinator(pool batchStore, blobs *blob.Store, resolutions resolutionService, provider extract.Provider, maxRetries int, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		pool:        pool,
		blobs:       blobs,
		resolutions: resolutions,
		provider:    provider,
		logger:      logger,
		maxRetries:  maxRetries,
	}
}

// Prepare registers a batch and one pending item per upload. Processing is a
// separate step so callers can report the batch id before work starts.
func (c *Coordinator) Prepare(ctx context.Context, req Request, uploads []Upload) (int64, []int64, error) {
	if len(uploads) == 0 {
		return 0, nil, fmt.Errorf("batch has no files")
	}
	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.BranchID) == "" {
		return 0, nil, fmt.Errorf("batch job and branch are required")
	}

	now := globaltime.UTC()
	batchID, err := c.pool.InsertBatch(ctx, uuid.NewString(), req.JobID, req.JobTitle, req.BranchID, req.BranchName, req.Actor, len(uploads), now)
	if err != nil {
		return 0, nil, err
	}

	itemIDs := make([]int64, len(uploads))
	for i, upload := range uploads {
		itemID, err := c.pool.InsertItem(ctx, uuid.NewString(), batchID, i+1, upload.FileName, globaltime.UTC())
		if err != nil {
			return 0, nil, err
		}
		itemIDs[i] = itemID
	}
	return batchID, itemIDs, nil
}

// Run prepares a batch and processes it to completion.
func (c *Coordinator) Run(ctx context.Context, req Request, uploads []Upload) (*db.BatchSummary, error) {
	batchID, itemIDs, err := c.Prepare(ctx, req, uploads)
	if err != nil {
		return nil, err
	}
	return c.Process(ctx, req, batchID, itemIDs, uploads)
}

// Process walks a prepared batch's uploads in order and stamps the batch
// terminal status. A single file's failure marks its item and moves on; only
// context cancellation stops the batch early.
func (c *Coordinator) Process(ctx context.Context, req Request, batchID int64, itemIDs []int64, uploads []Upload) (*db.BatchSummary, error) {
	if len(itemIDs) != len(uploads) {
		return nil, fmt.Errorf("batch item count mismatch")
	}

	status := BatchCompleted
	for i, upload := range uploads {
		if ctx.Err() != nil {
			status = BatchCancelled
			break
		}
		c.processUpload(ctx, req, itemIDs[i], upload)
	}

	if err := c.pool.FinishBatch(ctx, batchID, status, globaltime.UTC()); err != nil {
		c.logger.Error().Err(err).Int64("batch_id", batchID).Msg("failed to finish batch")
	}

	batch, err := c.pool.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("reload batch: %w", err)
	}

	c.logger.Info().
		Int64("batch_id", batchID).
		Int("files", len(uploads)).
		Str("status", status).
		Msg("bulk batch finished")

	return batch, nil
}

// processUpload walks one file through uploading, parsing, and creating. Any
// failure lands the item in a terminal status with its error message.
func (c *Coordinator) processUpload(ctx context.Context, req Request, itemID int64, upload Upload) {
	if err := c.setStatus(ctx, itemID, ItemUploading); err != nil {
		c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
		return
	}

	key, err := c.blobs.Put(upload.FileName, upload.Content)
	if err != nil {
		c.failItem(ctx, itemID, fmt.Sprintf("store file: %v", err), false)
		return
	}
	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemParsing, CVObjectKey: &key}, globaltime.UTC()); err != nil {
		c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
		return
	}

	c.processStored(ctx, req, itemID, upload.FileName, key)
}

// processStored runs parse, extract, duplicate check, and create for a file
// already present in the blob store. Shared by the initial run and retries.
func (c *Coordinator) processStored(ctx context.Context, req Request, itemID int64, fileName, key string) {
	draft, extractedBy, err := c.buildDraft(ctx, req, fileName, key)
	if err != nil {
		retryable := !errors.Is(err, errNotRetryable)
		c.failItem(ctx, itemID, err.Error(), retryable)
		return
	}

	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemCreating, ExtractedBy: &extractedBy}, globaltime.UTC()); err != nil {
		c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
		return
	}

	report, err := c.resolutions.CheckDuplicates(ctx, resolution.CheckRequest{Draft: draft})
	if err != nil {
		c.failItem(ctx, itemID, fmt.Sprintf("duplicate check: %v", err), true)
		return
	}

	if report.HasDuplicates && report.Matches[0].Severity == dedup.SeverityHigh {
		match := report.Matches[0]
		update := db.ItemUpdate{
			Status:        ItemDuplicate,
			DuplicateOfID: &match.Candidate.CandidateID,
			MatchType:     &match.MatchType,
			Confidence:    &match.Confidence,
		}
		if err := c.pool.UpdateItem(ctx, itemID, update, globaltime.UTC()); err != nil {
			c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
		}
		c.logger.Info().
			Int64("item_id", itemID).
			Int64("duplicate_of", match.Candidate.CandidateID).
			Str("match_type", match.MatchType).
			Msg("bulk item flagged as duplicate")
		return
	}

	record, err := c.resolutions.CreateCandidate(ctx, draft, resolution.CreateOptions{
		Actor:     req.Actor,
		SkipCheck: true,
	})
	if err != nil {
		c.failItem(ctx, itemID, fmt.Sprintf("create candidate: %v", err), false)
		return
	}

	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemSuccess, CandidateID: &record.CandidateID}, globaltime.UTC()); err != nil {
		c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
	}
}

var errNotRetryable = errors.New("not retryable")

// buildDraft turns a stored CV into a candidate draft. Extraction failures
// fall back to the file name for the candidate's name; a fallback draft with
// no usable identity at all is reported as a non-retryable error.
func (c *Coordinator) buildDraft(ctx context.Context, req Request, fileName, key string) (candidate.Draft, string, error) {
	draft := candidate.Draft{
		JobID:       strings.TrimSpace(req.JobID),
		JobTitle:    strings.TrimSpace(req.JobTitle),
		BranchID:    strings.TrimSpace(req.BranchID),
		BranchName:  strings.TrimSpace(req.BranchName),
		CVObjectKey: key,
		CVFileName:  fileName,
	}

	text := c.readText(fileName, key)
	if text != "" {
		draft.CVLanguage = langdetect.DetectISO6391(text)
	}

	result, err := c.extractWithRetry(ctx, fileName, text)
	if err != nil && ctx.Err() != nil {
		return candidate.Draft{}, "", fmt.Errorf("extract from %q: %w", fileName, err)
	}
	if err != nil && !errors.Is(err, extract.ErrLowConfidence) && text != "" {
		c.logger.Warn().
			Err(err).
			Str("file_name", fileName).
			Msg("extraction unavailable, using filename fallback")
	}

	extractedBy := extractedByFilename
	if err == nil {
		draft.FirstName = result.FirstName
		draft.LastName = result.LastName
		draft.Phone = result.Phone
		draft.Email = result.Email
		draft.Skills = result.Skills
		draft.Qualifications = result.Qualifications
		extractedBy = result.ProviderName
	}

	if strings.TrimSpace(draft.FirstName) == "" && strings.TrimSpace(draft.LastName) == "" {
		first, last := extract.NameFromFilename(fileName)
		if first == "" && last == "" {
			return candidate.Draft{}, "", fmt.Errorf("%w: no name recognizable in file %q", errNotRetryable, fileName)
		}
		draft.FirstName = first
		draft.LastName = last
		extractedBy = extractedByFilename
	}

	if err := draft.Validate(); err != nil {
		return candidate.Draft{}, "", fmt.Errorf("%w: %v", errNotRetryable, err)
	}
	return draft, extractedBy, nil
}

// readText opens the stored file and pulls plain text from it. An unreadable
// or binary file yields empty text, which routes the item to the filename
// fallback.
func (c *Coordinator) readText(fileName, key string) string {
	reader, err := c.blobs.Open(key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("stored cv unreadable")
		return ""
	}
	defer reader.Close()

	text, err := cvtext.FromFile(fileName, reader)
	if err != nil {
		c.logger.Debug().Err(err).Str("file_name", fileName).Msg("cv text extraction unavailable")
		return ""
	}
	return text
}

// extractWithRetry calls the extraction provider, retrying transport errors
// up to the configured budget. Low confidence is never retried: the provider
// saw the text and judged it; asking again gets the same answer.
func (c *Coordinator) extractWithRetry(ctx context.Context, fileName, text string) (*extract.Result, error) {
	if text == "" {
		return nil, fmt.Errorf("no text available")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, err := c.provider.Extract(ctx, extract.Request{FileName: fileName, Text: text})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, extract.ErrLowConfidence) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		c.logger.Warn().
			Err(err).
			Str("file_name", fileName).
			Int("attempt", attempt+1).
			Msg("extraction attempt failed")
	}
	return nil, lastErr
}

// RetryItem re-runs a failed item from its stored file. Items that failed
// before upload have no stored file and cannot be retried.
func (c *Coordinator) RetryItem(ctx context.Context, itemID int64) (*db.ItemRow, error) {
	item, err := c.pool.GetItem(ctx, itemID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("batch item %d not found", itemID)
		}
		return nil, err
	}
	if item.Status != ItemError {
		return nil, fmt.Errorf("batch item %d is %s, only errored items can be retried", itemID, item.Status)
	}
	if item.CVObjectKey == nil {
		return nil, fmt.Errorf("batch item %d has no stored file to retry from", itemID)
	}

	batch, err := c.pool.GetBatch(ctx, item.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}

	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemParsing, BumpRetry: true}, globaltime.UTC()); err != nil {
		return nil, err
	}

	req := Request{
		JobID:      batch.JobID,
		JobTitle:   batch.JobTitle,
		BranchID:   batch.BranchID,
		BranchName: batch.BranchName,
		Actor:      batch.CreatedBy,
	}
	c.processStored(ctx, req, itemID, item.FileName, *item.CVObjectKey)

	return c.pool.GetItem(ctx, itemID)
}

// ResolveDuplicate settles one duplicate-flagged item with an operator
// decision: merge into the matched record, link under it, or create anyway.
func (c *Coordinator) ResolveDuplicate(ctx context.Context, itemID int64, decision, actor string) (*db.ItemRow, error) {
	item, err := c.pool.GetItem(ctx, itemID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("batch item %d not found", itemID)
		}
		return nil, err
	}
	if item.Status != ItemDuplicate {
		return nil, fmt.Errorf("batch item %d is %s, not awaiting duplicate resolution", itemID, item.Status)
	}
	if item.DuplicateOfID == nil || item.CVObjectKey == nil {
		return nil, fmt.Errorf("batch item %d is missing its duplicate context", itemID)
	}

	batch, err := c.pool.GetBatch(ctx, item.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	req := Request{
		JobID:      batch.JobID,
		JobTitle:   batch.JobTitle,
		BranchID:   batch.BranchID,
		BranchName: batch.BranchName,
		Actor:      actor,
	}

	draft, _, err := c.buildDraft(ctx, req, item.FileName, *item.CVObjectKey)
	if err != nil {
		return nil, fmt.Errorf("rebuild draft: %w", err)
	}

	var record *db.CandidateRecord
	switch decision {
	case resolution.DecisionMerge:
		record, err = c.resolutions.Merge(ctx, resolution.MergeRequest{
			PrimaryID: *item.DuplicateOfID,
			Draft:     draft,
			Actor:     actor,
		})
	case resolution.DecisionLink:
		record, err = c.resolutions.Link(ctx, resolution.LinkRequest{
			PrimaryID: *item.DuplicateOfID,
			Draft:     draft,
			Actor:     actor,
		})
	case resolution.DecisionAddAnyway:
		session := resolution.NewSession()
		session.Dismiss(*item.DuplicateOfID)
		record, err = c.resolutions.CreateCandidate(ctx, draft, resolution.CreateOptions{
			Actor:    actor,
			Override: true,
			Session:  session,
		})
	default:
		return nil, fmt.Errorf("unknown duplicate decision %q", decision)
	}
	if err != nil {
		return nil, err
	}

	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemSuccess, CandidateID: &record.CandidateID}, globaltime.UTC()); err != nil {
		return nil, err
	}
	return c.pool.GetItem(ctx, itemID)
}

// setStatus advances an item without touching any other field.
func (c *Coordinator) setStatus(ctx context.Context, itemID int64, status string) error {
	return c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: status}, globaltime.UTC())
}

// failItem stamps an item as errored. The message is kept short so the API
// and the terminal both show it whole.
func (c *Coordinator) failItem(ctx context.Context, itemID int64, message string, retryable bool) {
	message = strings.TrimSpace(strings.TrimPrefix(message, errNotRetryable.Error()+": "))
	if len(message) > 500 {
		message = message[:500]
	}
	if err := c.pool.UpdateItem(ctx, itemID, db.ItemUpdate{Status: ItemError, ErrorMessage: &message}, globaltime.UTC()); err != nil {
		c.logger.Error().Err(err).Int64("item_id", itemID).Msg("item status update failed")
		return
	}
	c.logger.Warn().
		Int64("item_id", itemID).
		Bool("retryable", retryable).
		Str("error", message).
		Msg("bulk item failed")
}
