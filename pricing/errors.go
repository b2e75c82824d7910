package pricing

import "errors"

var (
	// ErrNoSource indicates a Store was created without a Source.
	ErrNoSource = errors.New("pricing: no source configured")

	// ErrCircuitOpen indicates refreshes are suspended after repeated failures.
	ErrCircuitOpen = errors.New("pricing: refresh circuit open")

	// ErrUnsupportedFormat indicates an unknown table format or file extension.
	ErrUnsupportedFormat = errors.New("pricing: unsupported table format")

	// ErrInvalidTable indicates a table that could not be decoded or validated.
	ErrInvalidTable = errors.New("pricing: invalid table")

	// ErrFetch indicates a remote table could not be retrieved.
	ErrFetch = errors.New("pricing: fetch failed")
)
