package translate

import (
	"context"
	"errors"
	"fmt"
	"net"

	"codeberg.org/snonux/yamltr/internal/retry"
)

// Error is a provider failure tagged with its retry category at the
// point where the most information is available. The retry engine
// picks the tag up through errors.As before falling back to message
// heuristics.
type Error struct {
	Provider string
	Category retry.Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCategory reports the tagged retry category.
func (e *Error) ErrorCategory() retry.Category { return e.Category }

// tagError wraps a provider failure with the category derived from the
// error's type and, for HTTP-backed providers, its status code.
func tagError(provider string, statusCode int, err error) *Error {
	return &Error{Provider: provider, Category: categorize(statusCode, err), Err: err}
}

func categorize(statusCode int, err error) retry.Category {
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return retry.CategoryTimeout
		}
		return retry.CategoryNetwork
	}

	switch {
	case statusCode == 429:
		return retry.CategoryRateLimit
	case statusCode == 400 || statusCode == 422:
		return retry.CategoryValidation
	case statusCode == 401 || statusCode == 403:
		return retry.CategoryAPI
	case statusCode >= 500:
		return retry.CategoryAPI
	case statusCode > 0:
		return retry.CategoryAPI
	}
	return retry.Classify(err)
}
