package resolution

import (
	"errors"
	"fmt"

	"horse.fit/intake/internal/dedup"
)

var (
	// ErrCandidateNotFound means the referenced record does not exist or was
	// deleted.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrVersionConflict means a concurrent operator updated one of the
	// records between read and write; the caller should reload and retry.
	ErrVersionConflict = errors.New("candidate version conflict")
)

// BlockedError is returned when creation is refused because of an exact
// duplicate-key match and the caller did not pass an explicit override.
type BlockedError struct {
	Report dedup.Report
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("creation blocked by %d duplicate match(es); explicit override required", len(e.Report.Matches))
}

// IsBlocked reports whether err is a duplicate block and returns the report.
func IsBlocked(err error) (*BlockedError, bool) {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return blocked, true
	}
	return nil, false
}
