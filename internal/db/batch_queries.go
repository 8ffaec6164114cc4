package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BatchSummary is the read model for one bulk upload run.
type BatchSummary struct {
	BatchID    int64      `json:"batch_id"`
	BatchUUID  string     `json:"batch_uuid"`
	JobID      string     `json:"job_id"`
	JobTitle   string     `json:"job_title"`
	BranchID   string     `json:"branch_id"`
	BranchName string     `json:"branch_name"`
	Status     string     `json:"status"`
	ItemCount  int        `json:"item_count"`
	CreatedBy  string     `json:"created_by"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ItemRow is the read model for one file within a batch.
type ItemRow struct {
	ItemID        int64      `json:"item_id"`
	ItemUUID      string     `json:"item_uuid"`
	BatchID       int64      `json:"batch_id"`
	Position      int        `json:"position"`
	FileName      string     `json:"file_name"`
	CVObjectKey   *string    `json:"cv_object_key,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	RetryCount    int        `json:"retry_count"`
	CandidateID   *int64     `json:"candidate_id,omitempty"`
	DuplicateOfID *int64     `json:"duplicate_of_id,omitempty"`
	MatchType     *string    `json:"match_type,omitempty"`
	Confidence    *int       `json:"confidence,omitempty"`
	ExtractedBy   *string    `json:"extracted_by,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InsertBatch creates a batch row with its shared job/branch context.
func (p *Pool) InsertBatch(ctx context.Context, batchUUID, jobID, jobTitle, branchID, branchName, createdBy string, itemCount int, at time.Time) (int64, error) {
	const q = `
INSERT INTO intake.batches (
	batch_uuid, job_id, job_title, branch_id, branch_name, status, item_count, created_by, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, 'running', $6, $7, $8, $8)
RETURNING batch_id
`

	var batchID int64
	if err := p.QueryRow(ctx, q, batchUUID, jobID, jobTitle, branchID, branchName, itemCount, createdBy, at.UTC()).Scan(&batchID); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return batchID, nil
}

// InsertItem creates one pending batch item at the given position.
func (p *Pool) InsertItem(ctx context.Context, itemUUID string, batchID int64, position int, fileName string, at time.Time) (int64, error) {
	const q = `
INSERT INTO intake.batch_items (
	item_uuid, batch_id, position, file_name, status, created_at, updated_at
)
VALUES ($1, $2, $3, $4, 'pending', $5, $5)
RETURNING item_id
`

	var itemID int64
	if err := p.QueryRow(ctx, q, itemUUID, batchID, position, strings.TrimSpace(fileName), at.UTC()).Scan(&itemID); err != nil {
		return 0, fmt.Errorf("insert batch item: %w", err)
	}
	return itemID, nil
}

// ItemUpdate carries the mutable fields of one batch item. Nil pointers leave
// the stored value untouched.
type ItemUpdate struct {
	Status        string
	ErrorMessage  *string
	CVObjectKey   *string
	CandidateID   *int64
	DuplicateOfID *int64
	MatchType     *string
	Confidence    *int
	ExtractedBy   *string
	BumpRetry     bool
}

// UpdateItem advances one batch item through its status machine.
func (p *Pool) UpdateItem(ctx context.Context, itemID int64, update ItemUpdate, at time.Time) error {
	if strings.TrimSpace(update.Status) == "" {
		return fmt.Errorf("item status is required")
	}

	const q = `
UPDATE intake.batch_items
SET status = $2,
	error_message = CASE WHEN $3 THEN $4 ELSE error_message END,
	cv_object_key = COALESCE($5, cv_object_key),
	candidate_id = COALESCE($6, candidate_id),
	duplicate_of_id = COALESCE($7, duplicate_of_id),
	match_type = COALESCE($8, match_type),
	confidence = COALESCE($9, confidence),
	extracted_by = COALESCE($10, extracted_by),
	retry_count = retry_count + CASE WHEN $11 THEN 1 ELSE 0 END,
	processed_at = CASE WHEN $2 IN ('success', 'error', 'duplicate') THEN $12 ELSE processed_at END,
	updated_at = $12
WHERE item_id = $1
`

	setError := update.ErrorMessage != nil || update.Status == "success" || update.Status == "duplicate"
	tag, err := p.Exec(ctx, q, itemID, update.Status, setError, update.ErrorMessage, update.CVObjectKey,
		update.CandidateID, update.DuplicateOfID, update.MatchType, update.Confidence, update.ExtractedBy,
		update.BumpRetry, at.UTC())
	if err != nil {
		return fmt.Errorf("update batch item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch item %d not found", itemID)
	}
	return nil
}

// FinishBatch stamps the batch terminal status once all items settled.
func (p *Pool) FinishBatch(ctx context.Context, batchID int64, status string, at time.Time) error {
	const q = `
UPDATE intake.batches
SET status = $2, finished_at = $3, updated_at = $3
WHERE batch_id = $1
`
	if _, err := p.Exec(ctx, q, batchID, status, at.UTC()); err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

// GetBatch loads one batch header.
func (p *Pool) GetBatch(ctx context.Context, batchID int64) (*BatchSummary, error) {
	const q = `
SELECT
	batch_id, batch_uuid::text, job_id, job_title, branch_id, branch_name,
	status, item_count, created_by, finished_at, created_at
FROM intake.batches
WHERE batch_id = $1
`

	var batch BatchSummary
	if err := p.QueryRow(ctx, q, batchID).Scan(
		&batch.BatchID,
		&batch.BatchUUID,
		&batch.JobID,
		&batch.JobTitle,
		&batch.BranchID,
		&batch.BranchName,
		&batch.Status,
		&batch.ItemCount,
		&batch.CreatedBy,
		&batch.FinishedAt,
		&batch.CreatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

const itemColumns = `
	item_id, item_uuid::text, batch_id, position, file_name, cv_object_key,
	status, error_message, retry_count, candidate_id, duplicate_of_id,
	match_type, confidence, extracted_by, processed_at, created_at
`

// GetItem loads one batch item.
func (p *Pool) GetItem(ctx context.Context, itemID int64) (*ItemRow, error) {
	q := `
SELECT` + itemColumns + `
FROM intake.batch_items
WHERE item_id = $1
`
	item, err := scanItem(p.QueryRow(ctx, q, itemID))
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListBatchItems lists a batch's items in processing order.
func (p *Pool) ListBatchItems(ctx context.Context, batchID int64) ([]ItemRow, error) {
	q := `
SELECT` + itemColumns + `
FROM intake.batch_items
WHERE batch_id = $1
ORDER BY position ASC
`

	rows, err := p.Query(ctx, q, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch items: %w", err)
	}
	defer rows.Close()

	items := make([]ItemRow, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch items: %w", err)
	}
	return items, nil
}

// ListBatches lists recent batches, newest first.
func (p *Pool) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	batch_id, batch_uuid::text, job_id, job_title, branch_id, branch_name,
	status, item_count, created_by, finished_at, created_at
FROM intake.batches
ORDER BY created_at DESC, batch_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := make([]BatchSummary, 0, limit)
	for rows.Next() {
		var batch BatchSummary
		if err := rows.Scan(
			&batch.BatchID,
			&batch.BatchUUID,
			&batch.JobID,
			&batch.JobTitle,
			&batch.BranchID,
			&batch.BranchName,
			&batch.Status,
			&batch.ItemCount,
			&batch.CreatedBy,
			&batch.FinishedAt,
			&batch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

func scanItem(row rowScanner) (*ItemRow, error) {
	var item ItemRow
	if err := row.Scan(
		&item.ItemID,
		&item.ItemUUID,
		&item.BatchID,
		&item.Position,
		&item.FileName,
		&item.CVObjectKey,
		&item.Status,
		&item.ErrorMessage,
		&item.RetryCount,
		&item.CandidateID,
		&item.DuplicateOfID,
		&item.MatchType,
		&item.Confidence,
		&item.ExtractedBy,
		&item.ProcessedAt,
		&item.CreatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("scan batch item: %w", err)
	}
	return &item, nil
}
