package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the database cannot be reached or the
	// credentials are rejected. It aborts the whole run.
	ErrConnection = errors.New("database connection failed")

	// ErrDecode marks a malformed or incomplete forecast array. Nothing is
	// written for a file that fails to decode.
	ErrDecode = errors.New("decode forecast")

	// ErrInsufficientGrid is returned when an axis has fewer than two points,
	// so no grid spacing can be derived.
	ErrInsufficientGrid = errors.New("insufficient grid")

	// ErrCellResolution is returned when too many forecast records have no
	// matching cell, which points at a grid-derivation mismatch.
	ErrCellResolution = errors.New("cell resolution failed")

	// ErrBatchWrite matches any *BatchWriteError via errors.Is.
	ErrBatchWrite = errors.New("batch write failed")
)

// BatchWriteError reports a single chunk whose statements failed. The chunk's
// transaction is rolled back; chunks committed before it are kept.
type BatchWriteError struct {
	Table  string
	Chunk  int // 1-based
	Chunks int
	Err    error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("write %s chunk %d/%d: %v", e.Table, e.Chunk, e.Chunks, e.Err)
}

func (e *BatchWriteError) Unwrap() []error {
	return []error{ErrBatchWrite, e.Err}
}
