package threads

import (
	"fmt"
)

// AuthError means the access token was rejected or is missing. It aborts a run.
type AuthError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("threads auth error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// UpstreamError is any other failed call to the Graph API, including transport failures.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("threads %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("threads %s returned status %d (code %d): %s", e.Endpoint, e.StatusCode, e.Code, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// graphError is the error envelope the Graph API returns on failure.
type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// Graph error codes for invalid or expired sessions.
const (
	codeSessionInvalid = 102
	codeTokenInvalid   = 190
)

func isAuthFailure(status, code int) bool {
	return status == 401 || code == codeTokenInvalid || code == codeSessionInvalid
}
