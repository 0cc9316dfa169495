package cytomine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrNotFound         = errors.New("resource was not found")
	ErrUnauthorized     = errors.New("request was not authorised")
	ErrServiceTimeout   = errors.New("cytomine server timed out")
	ErrUnreachable      = errors.New("cytomine server is not accepting connections")
	ErrNoID             = errors.New("model has no id")
	ErrNotSupported     = errors.New("operation is not supported by this model")
	ErrFilterNotAllowed = errors.New("filter is not allowed for this collection")
	ErrFilterRequired   = errors.New("collection cannot be fetched without a filter")
	ErrTooManyFilters   = errors.New("more than one filter is not allowed")
	ErrPageSize         = errors.New("page size must be strictly positive")
	ErrNotConnected     = errors.New("client is not connected")
)

// ResponseError is returned when the server answers with an unexpected status.
type ResponseError struct {
	Method     string
	URL        url.URL
	StatusCode int
	Status     string
	Message    string
}

func (e *ResponseError) Error() string {
	s := fmt.Sprintf("%s %s returned a %v status code", e.Method, e.URL.String(), e.StatusCode)
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *ResponseError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// RedirectError is returned for 301/302 answers, which are never followed.
type RedirectError struct {
	StatusCode int
	Location   string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("HTTP return code : %d. URL was redirected to %s.", e.StatusCode, e.Location)
}

// PartialUploadError reports a collection save where some chunks failed.
type PartialUploadError struct {
	Created int
	Failed  int
	Err     error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("%d items were created and %d failed: %v", e.Created, e.Failed, e.Err)
}

func (e *PartialUploadError) Unwrap() error {
	return e.Err
}

func newResponseError(req *http.Request, resp *response) *ResponseError {
	return &ResponseError{
		Method:     req.Method,
		URL:        *req.URL,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    readResponseMessage(resp.Body, "errors"),
	}
}

// readResponseMessage extracts key (then "message") from a JSON body, falling
// back to the raw body.
func readResponseMessage(body []byte, key string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, k := range []string{key, "message"} {
		v, ok := payload[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
