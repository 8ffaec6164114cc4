package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEntry is the read model for audit log listings.
type ActivityEntry struct {
	ActivityID    int64           `json:"activity_id"`
	ActivityUUID  string          `json:"activity_uuid"`
	EntityID      int64           `json:"entity_id"`
	Action        string          `json:"action"`
	Description   string          `json:"description"`
	PreviousValue json.RawMessage `json:"previous_value,omitempty"`
	NewValue      json.RawMessage `json:"new_value,omitempty"`
	Actor         string          `json:"actor"`
	CreatedAt     time.Time       `json:"created_at"`
}

const insertActivitySQL = `
INSERT INTO intake.activity_log (
	entity_id,
	action,
	description,
	previous_value,
	new_value,
	actor,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// InsertActivity appends one audit entry.
func (p *Pool) InsertActivity(ctx context.Context, entityID int64, action, description string, previousValue, newValue json.RawMessage, actor string, at time.Time) error {
	if _, err := p.Exec(ctx, insertActivitySQL, entityID, action, description, nullableJSON(previousValue), nullableJSON(newValue), actor, at.UTC()); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// InsertActivityTx appends one audit entry inside an open transaction so the
// entry commits or rolls back with the write it describes.
func InsertActivityTx(ctx context.Context, tx Tx, entityID int64, action, description string, previousValue, newValue json.RawMessage, actor string, at time.Time) error {
	if _, err := tx.Exec(ctx, insertActivitySQL, entityID, action, description, nullableJSON(previousValue), nullableJSON(newValue), actor, at.UTC()); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivityForEntity lists audit entries for one candidate, newest first.
func (p *Pool) ListActivityForEntity(ctx context.Context, entityID int64, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	activity_id,
	activity_uuid::text,
	entity_id,
	action,
	description,
	previous_value,
	new_value,
	actor,
	created_at
FROM intake.activity_log
WHERE entity_id = $1
ORDER BY created_at DESC, activity_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity log: %w", err)
	}
	defer rows.Close()

	entries := make([]ActivityEntry, 0, limit)
	for rows.Next() {
		var entry ActivityEntry
		var previous, next []byte
		if err := rows.Scan(
			&entry.ActivityID,
			&entry.ActivityUUID,
			&entry.EntityID,
			&entry.Action,
			&entry.Description,
			&previous,
			&next,
			&entry.Actor,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		entry.PreviousValue = json.RawMessage(previous)
		entry.NewValue = json.RawMessage(next)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity log: %w", err)
	}
	return entries, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
