package common

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means the loader could not read its input.
	// Fatal for the ingestion run that needed the source.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrExtractionRejected means extraction output was malformed or used a
	// type outside the closed vocabulary. The record is skipped, not the run.
	ErrExtractionRejected = errors.New("extraction rejected")

	// ErrGraphTransactionFailed means a record's merge could not commit.
	// The transaction was rolled back; the record may be retried.
	ErrGraphTransactionFailed = errors.New("graph transaction failed")
)

// DimensionMismatchError indicates a vector whose dimensionality disagrees
// with the active embedding model. Mismatched vectors are rejected, never
// truncated or padded.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// IsDimensionMismatch reports whether err wraps a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
