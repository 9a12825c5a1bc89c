package models

import (
	"errors"
	"fmt"
)

// Error codes used by the extraction pipeline.
const (
	ErrCodeAnchorNotFound = "ANCHOR_NOT_FOUND"
	ErrCodeEmptyTable     = "EMPTY_AFTER_TIMEOUT"
	ErrCodeParseEmpty     = "PARSE_EMPTY"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeExhausted      = "EXTRACTION_FAILED"
)

// ExtractError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(code, message string, err error) *ExtractError {
	return &ExtractError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the extraction error code carried by err, or "" if err
// does not wrap an ExtractError.
func ErrorCode(err error) string {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
