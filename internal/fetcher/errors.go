package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindHTTPStatus       Kind = "http_status"
	KindNetwork          Kind = "network"
	KindRobotsDisallowed Kind = "robots_disallowed"
)

// FetchError is returned when a URL could not be turned into a page.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	case KindRobotsDisallowed:
		return fmt.Sprintf("fetch %s: disallowed by robots.txt", e.URL)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s after %d attempt(s)", e.URL, e.Kind, e.Attempts)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether another attempt may succeed.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// KindOf extracts the failure kind from err, or "" when err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
