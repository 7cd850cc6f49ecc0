package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrGenerationFailed = errors.New("generation failed")
	ErrPostInsertFailed = errors.New("post insert failed")
	ErrJobBusy          = errors.New("job busy")
)

// Code returns the wire code for a sentinel error, or "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSubject):
		return "invalid_subject"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrPostInsertFailed):
		return "post_insert_failed"
	case errors.Is(err, ErrJobBusy):
		return "job_busy"
	default:
		return "internal"
	}
}

// Error is a typed pipeline failure returned to callers.
type Error struct {
	Kind     error
	Message  string
	JobID    int64
	Provider *ProviderError
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", Code(e.Kind), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", Code(e.Kind), e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Provider error codes.
const (
	ProviderCodeDisabled      = "provider_disabled"
	ProviderCodeNotConfigured = "provider_not_configured"
	ProviderCodeHTTPError     = "provider_http_error"
	ProviderCodeBadPayload    = "provider_bad_payload"
	ProviderCodeInvalidJSON   = "provider_invalid_json"
	ProviderCodeStatusPrefix  = "provider_http_status_"
)

// ProviderError is a failure reported by a generation provider.
type ProviderError struct {
	Provider string         `json:"provider"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether another attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Code != ProviderCodeDisabled && e.Code != ProviderCodeNotConfigured
}
