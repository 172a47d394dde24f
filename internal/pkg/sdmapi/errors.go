package sdmapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPError is returned for any non-2xx response from the SDM API
type HTTPError struct {
	StatusCode int
	// Status is the upstream error kind, eg. RESOURCE_EXHAUSTED or invalid_grant
	Status  string
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("sdm api error: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("sdm api error: HTTP %d: %s", e.StatusCode, e.Message)
}

/*
  The API reports failures in one of two shapes:

  {"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota exceeded"}}

  {"error": "invalid_grant", "error_description": "Token has been expired or revoked."}
*/

type errorEnvelope struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

type nestedError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newHTTPError(statusCode int, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: statusCode,
		Body:       body,
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var nested nestedError
		var code string

		if err := json.Unmarshal(envelope.Error, &nested); err == nil {
			e.Status = nested.Status
			e.Message = nested.Message
		} else if err := json.Unmarshal(envelope.Error, &code); err == nil {
			e.Status = code
			e.Message = envelope.ErrorDescription
		}
	}

	if e.Message == "" {
		if text := strings.TrimSpace(string(body)); text != "" {
			e.Message = text
		} else {
			e.Message = http.StatusText(statusCode)
		}
	}

	return e
}

// TimeoutError is returned when a request does not complete within the
// configured timeout or the caller's deadline
type TimeoutError struct {
	Op      string
	Timeout time.Duration

	err error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
	}

	return fmt.Sprintf("%s: deadline exceeded", e.Op)
}

func (e *TimeoutError) Unwrap() error {
	return e.err
}
