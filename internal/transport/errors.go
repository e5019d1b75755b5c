package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"resty.dev/v3"
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Method        string
	Path          string
	StatusCode    int
	Category      string
	Message       string
	CorrelationID string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.CorrelationID != "" {
		b.WriteString(" (correlation id " + e.CorrelationID + ")")
	}
	return b.String()
}

// Hint returns a remediation hint for common failures, or "".
func (e *APIError) Hint() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return "Your credentials were rejected. Re-authenticate with: hublink auth"
	case e.StatusCode == http.StatusForbidden || e.Category == "MISSING_SCOPES":
		return "The account's access key is missing a required scope. Check scopes with: hublink accounts info"
	case e.StatusCode == http.StatusTooManyRequests:
		return "Rate limited by the platform. Wait a moment and retry."
	case e.StatusCode >= 500:
		return "The platform returned a server error. Retry, and include the correlation id if you report it."
	}
	return ""
}

type errorBody struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CorrelationID string `json:"correlationId"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Path: path, StatusCode: status}
	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		e.Message = eb.Message
		e.Category = eb.Category
		e.CorrelationID = eb.CorrelationID
	} else if s := strings.TrimSpace(string(body)); len(s) > 0 && len(s) <= 200 {
		e.Message = s
	}
	return e
}

func decodeResponse(method, path string, resp *resty.Response, out any) error {
	if resp.IsError() {
		return newAPIError(method, path, resp.StatusCode(), resp.Bytes())
	}
	if out == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	data := resp.Bytes()
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

// IsUnauthorized reports whether err is a 401 from the platform.
func IsUnauthorized(err error) bool { return StatusCode(err) == http.StatusUnauthorized }
