package domain

import "errors"

// Input validation
var ErrInvalidInput = errors.New("invalid input")

// Data-integrity errors. These are raised before any mutation and are never
// corrected silently.
var (
	ErrNegativeHolding = errors.New("holding would become negative")
	ErrPortfolioClosed = errors.New("portfolio is already closed")
)

var ErrNotFound = errors.New("not found")

// Collaborator write failures on the settlement path. The operation did not
// complete and can be retried.
var (
	ErrHistoryWrite = errors.New("failed to record settlement history")
	ErrCloseWrite   = errors.New("failed to close portfolio")
)

// ErrOrphanedHistory means a settlement failed and its history record could
// not be removed afterwards. The record exists without a closed portfolio and
// needs manual cleanup; retrying would write a second record.
var ErrOrphanedHistory = errors.New("settlement history left without a closed portfolio")
