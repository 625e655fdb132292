// Package errors provides structured error handling for searchsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (queue databases, content repository)
//   - 3XX: Index client errors
//   - 4XX: Validation and format errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates queue or repository storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryIndex indicates failures talking to the search index.
	CategoryIndex Category = "INDEX"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownIndexer = "ERR_103_UNKNOWN_INDEXER"

	// Storage errors (200-299)
	ErrCodeStorageOpen    = "ERR_201_STORAGE_OPEN"
	ErrCodeStorageBusy    = "ERR_202_STORAGE_BUSY"
	ErrCodeStorageQuery   = "ERR_203_STORAGE_QUERY"
	ErrCodeCorruptStorage = "ERR_204_CORRUPT_STORAGE"
	ErrCodeRecordNotFound = "ERR_205_RECORD_NOT_FOUND"

	// Index client errors (300-399)
	ErrCodeIndexTimeout     = "ERR_301_INDEX_TIMEOUT"
	ErrCodeIndexUnavailable = "ERR_302_INDEX_UNAVAILABLE"
	ErrCodeIndexWrite       = "ERR_303_INDEX_WRITE"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidRootline = "ERR_402_INVALID_ROOTLINE"
	ErrCodeInvalidEvent    = "ERR_403_INVALID_EVENT"
	ErrCodeUnknownSite     = "ERR_404_UNKNOWN_SITE"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeIndexingFailed = "ERR_502_INDEXING_FAILED"
	ErrCodeHandlerFailed  = "ERR_503_HANDLER_FAILED"
	ErrCodeLockFailed     = "ERR_504_LOCK_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryIndex
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStorage, ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageBusy, ErrCodeIndexTimeout, ErrCodeIndexUnavailable:
		return true
	default:
		return false
	}
}
