package workflows

import (
	"errors"
	"fmt"
)

// ErrSummaryUnavailable is returned by SummarizeDocumentActivity when the
// generation service replies with nothing usable. It is retryable.
var ErrSummaryUnavailable = errors.New("summary unavailable")

// Application error types that Temporal will not retry.
const (
	errTypeDocumentNotFound = "DocumentNotFound"
	errTypeInvalidInput     = "InvalidInput"
)

// WrapActivityError wraps an activity error with operation context.
func WrapActivityError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult formats an error for BackfillResult.Errors.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}
