package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSessionCookie means the bootstrap request set no cookies, so no
	// search query can ever succeed. Fatal at crawl start.
	ErrNoSessionCookie = errors.New("bootstrap response set no session cookie")

	// ErrSessionExpired means the server answered with its logout page. The
	// status can still be 200, so this is detected from the body.
	ErrSessionExpired = errors.New("session was closed by host")

	// ErrNonRebuildableRequest rejects request bodies that cannot be resent
	// identically on retry.
	ErrNonRebuildableRequest = errors.New("request body cannot be rebuilt for retry")
)

// StatusError is a non-2xx response. Retryable until the attempt budget runs out.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s for %s", e.Status, e.URL)
}
