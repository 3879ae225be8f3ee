package workspace

import (
	"encoding/json"
	"fmt"
)

// Error codes shared by every protocol front. The taxonomy is closed:
// resolution misses, argument validation failures and internal API failures
// are the only tool-level error classes callers can observe.
const (
	ErrCodeWorkspaceNotFound = "workspace-not-found"
	ErrCodeInvalidInput      = "invalid-input"
	ErrCodeInternalError     = "internal-error"
)

// ErrorInfo describes a failed operation
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the uniform success/error envelope returned by every operation,
// regardless of which transport carried the request. Exactly one variant is
// populated: Data on success, Error on failure. A success with no underlying
// value keeps Data nil so it serializes as JSON null rather than an empty
// body.
type Result struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// MarshalJSON emits only the populated variant: successes always carry an
// explicit data field (null for void results), failures carry only the error.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Data    any  `json:"data"`
		}{true, r.Data})
	}
	return json.Marshal(struct {
		Success bool       `json:"success"`
		Error   *ErrorInfo `json:"error"`
	}{false, r.Error})
}

// OK wraps a value in a success envelope
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Errorf builds a failure envelope with a formatted message
func Errorf(code string, format string, args ...any) Result {
	return Result{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// NotFound builds the canonical resolution-miss envelope for a path
func NotFound(path string) Result {
	return Errorf(ErrCodeWorkspaceNotFound, "workspace not found: %s", path)
}
