package queue

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrClosed is returned for items still pending when the queue shuts down.
var ErrClosed = errors.New("request queue closed")

// AuthError is a 401 from the remote source. It is never retried.
type AuthError struct {
	URL    string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d) for %s", e.Status, e.URL)
}

// RateLimitError is a 429 that persisted through every retry.
type RateLimitError struct {
	URL     string
	Retries int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d retries for %s", e.Retries, e.URL)
}

// ServerError is a 5xx that persisted through every retry.
type ServerError struct {
	URL     string
	Status  int
	Retries int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error status %d after %d retries for %s", e.Status, e.Retries, e.URL)
}

// HTTPError is any other non-2xx status.
type HTTPError struct {
	URL     string
	Status  int
	Snippet string
}

func (e *HTTPError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("http status %d for %s", e.Status, e.URL)
	}
	return fmt.Sprintf("http status %d for %s: %s", e.Status, e.URL, e.Snippet)
}

// NetworkError is a transport failure or timeout that persisted through every retry.
type NetworkError struct {
	URL     string
	Timeout bool
	Retries int
	Err     error
}

func (e *NetworkError) Error() string {
	kind := "network failure"
	if e.Timeout {
		kind = "request timed out"
	}
	return fmt.Sprintf("%s after %d retries for %s: %v", kind, e.Retries, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ResponseFormatError is a successful response whose body does not match the expected shape.
type ResponseFormatError struct {
	URL string
	Err error
}

func (e *ResponseFormatError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("malformed response: %v", e.Err)
	}
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// Kind returns a short label for the error class, or "" for unclassified errors.
func Kind(err error) string {
	var (
		authErr   *AuthError
		rateErr   *RateLimitError
		serverErr *ServerError
		httpErr   *HTTPError
		netErr    *NetworkError
		formatErr *ResponseFormatError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &serverErr):
		return "server"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &netErr):
		if netErr.Timeout {
			return "timeout"
		}
		return "network"
	case errors.As(err, &formatErr):
		return "format"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return ""
	}
}

// IsRetryable reports whether err belongs to a class the queue retries.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case "rate_limit", "server", "network", "timeout":
		return true
	default:
		return false
	}
}

// redactURL masks credential-looking query parameters so URLs can be logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for k := range q {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "secret") {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
