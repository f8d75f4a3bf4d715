// Package errs holds the error values shared across the snapshot pipeline.
//
// Transient network failures are plain errors (retried by pkg/retry). The
// sentinels below classify the outcomes that callers branch on.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the resource is legitimately absent (burned token,
	// missing metadata document). Stages record an explicit empty value.
	ErrNotFound = errors.New("not found")

	// ErrMalformed means the response had an unexpected shape or failed to decode.
	ErrMalformed = errors.New("malformed response")

	// ErrRateLimited is returned when an upstream answers with a 429 equivalent.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotInitialized is returned by the token store before Initialize is called.
	ErrNotInitialized = errors.New("token store used before initialize")
)

// ConfigError aborts the run before any network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config builds a ConfigError.
func Config(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
