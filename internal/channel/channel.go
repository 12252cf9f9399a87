// Package channel defines the contract for searching the recent post history
// of a channel identity on the external platform.
package channel

import (
	"context"
	"fmt"
	"time"
)

// Post is a previously published post returned by a search.
type Post struct {
	ID        string
	Username  string
	Text      string
	CreatedAt time.Time
}

// Searcher finds recent posts of a user whose text matches exactly.
// Implementations may return candidates that only approximately match;
// callers re-check text equality themselves.
type Searcher interface {
	SearchRecentExactText(ctx context.Context, username, text string, since time.Time) ([]Post, error)
}

// ExternalAPIError reports a transport or API failure of the external
// platform. It is never a statement about the content itself.
type ExternalAPIError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external api error: %s (status %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("external api error: %s", e.Reason)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}
