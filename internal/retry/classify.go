package retry

import (
	"errors"
	"strings"
)

// Category is the failure class of a translate error. It selects both
// the backoff strategy and the retry ceiling.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryRateLimit  Category = "rate_limit"
	CategoryAPI        Category = "api"
	CategoryValidation Category = "validation"
	CategoryTimeout    Category = "timeout"
	CategoryUnknown    Category = "unknown"
)

// Classified lets an error declare its own category, bypassing message
// sniffing. Errors from the translate client implement this; keyword
// matching below is only the fallback for uncooperative sources.
type Classified interface {
	ErrorCategory() Category
}

// categoryOrder fixes the precedence for overlapping keywords: a
// message containing both "connection" and "timeout" is a network
// error because network is checked first.
var categoryOrder = []Category{
	CategoryNetwork,
	CategoryRateLimit,
	CategoryAPI,
	CategoryValidation,
	CategoryTimeout,
}

var categoryKeywords = map[Category][]string{
	CategoryNetwork: {
		"connection", "network", "dns", "broken pipe", "unexpected eof", "no such host",
	},
	CategoryRateLimit: {
		"rate limit", "too many requests", "429", "quota",
	},
	CategoryAPI: {
		"api error", "unauthorized", "authentication", "invalid request",
		"bad gateway", "internal server error", "status 500", "status 503",
	},
	CategoryValidation: {
		"validation", "invalid format", "schema", "malformed", "parse error",
	},
	CategoryTimeout: {
		"timeout", "timed out", "deadline exceeded",
	},
}

// Classify maps an arbitrary error to a category. Typed signals win
// over keyword matching; unmatched errors are unknown.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var classified Classified
	if errors.As(err, &classified) {
		return classified.ErrorCategory()
	}
	msg := strings.ToLower(err.Error())
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(msg, kw) {
				return cat
			}
		}
	}
	return CategoryUnknown
}
