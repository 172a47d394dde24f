package sdmauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// AuthError is returned when an access token cannot be obtained from the
// token endpoint.  Every API call fails with it until the refresh succeeds.
type AuthError struct {
	// StatusCode is the token endpoint HTTP status, or 0 if no response was received
	StatusCode int
	// Code is the OAuth error code, eg. invalid_grant
	Code    string
	Message string

	err error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("access token refresh failed")

	switch {
	case e.StatusCode != 0 && e.Code != "":
		fmt.Fprintf(&b, " (HTTP %d, %s)", e.StatusCode, e.Code)
	case e.StatusCode != 0:
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	case e.Code != "":
		fmt.Fprintf(&b, " (%s)", e.Code)
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	return b.String()
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// newAuthError converts an oauth2 library failure into an AuthError,
// surfacing the upstream status and error text where there is one
func newAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	authErr := &AuthError{err: err}

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		authErr.Message = err.Error()
		return authErr
	}

	if re.Response != nil {
		authErr.StatusCode = re.Response.StatusCode
	}
	authErr.Code = re.ErrorCode

	// some Google endpoints answer with the nested API error shape instead
	nested := nestedError(re.Body)

	switch {
	case re.ErrorDescription != "":
		authErr.Message = re.ErrorDescription
	case nested != nil:
		authErr.Code = nested.Status
		authErr.Message = nested.Message
	case len(strings.TrimSpace(string(re.Body))) > 0:
		authErr.Message = strings.TrimSpace(string(re.Body))
	case authErr.StatusCode != 0:
		authErr.Message = http.StatusText(authErr.StatusCode)
	}

	return authErr
}

type apiErrorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func nestedError(body []byte) *apiErrorDetail {
	var b struct {
		Error *apiErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(body, &b); err != nil {
		return nil
	}

	return b.Error
}
