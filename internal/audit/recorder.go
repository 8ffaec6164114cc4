package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

// Candidate lifecycle actions recorded in the activity log.
const (
	ActionCreated      = "candidate_created"
	ActionMerged       = "candidate_merged"
	ActionLinked       = "candidate_linked"
	ActionNotDuplicate = "marked_not_duplicate"
	ActionDeleted      = "candidate_deleted"
)

// Entry is one append-only audit record.
type Entry struct {
	EntityID      int64
	Action        string
	Description   string
	PreviousValue any
	NewValue      any
	Actor         string
}

// Recorder writes audit entries to the activity log.
type Recorder struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewRecorder(pool *db.Pool, logger zerolog.Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

// Record appends one entry outside any transaction. Failures are returned to
// the caller.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	previous, next, err := encodeValues(entry)
	if err != nil {
		return err
	}
	return r.pool.InsertActivity(ctx, entry.EntityID, entry.Action, entry.Description, previous, next, entry.Actor, globaltime.UTC())
}

// RecordTx appends one entry inside an open transaction so it commits with
// the write it describes.
func (r *Recorder) RecordTx(ctx context.Context, tx db.Tx, entry Entry) error {
	previous, next, err := encodeValues(entry)
	if err != nil {
		return err
	}
	return db.InsertActivityTx(ctx, tx, entry.EntityID, entry.Action, entry.Description, previous, next, entry.Actor, globaltime.UTC())
}

// RecordBestEffort appends one entry and only logs on failure. Used where an
// audit miss must not abort the caller's flow.
func (r *Recorder) RecordBestEffort(ctx context.Context, entry Entry) {
	if err := r.Record(ctx, entry); err != nil {
		r.logger.Warn().
			Err(err).
			Int64("entity_id", entry.EntityID).
			Str("action", entry.Action).
			Msg("audit entry dropped")
	}
}

func encodeValues(entry Entry) (json.RawMessage, json.RawMessage, error) {
	previous, err := encodeValue(entry.PreviousValue)
	if err != nil {
		return nil, nil, fmt.Errorf("encode previous value: %w", err)
	}
	next, err := encodeValue(entry.NewValue)
	if err != nil {
		return nil, nil, fmt.Errorf("encode new value: %w", err)
	}
	return previous, next, nil
}

func encodeValue(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
