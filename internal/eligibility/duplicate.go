package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"

	"statusbot/internal/channel"
	"statusbot/internal/model"
)

var urlPattern = xurls.Strict()

// ExtractURLs returns every URL with a scheme found in text.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// CheckExecutable reports whether the status needs a duplicate check.
// Messages with links never do: each send gets its own shortened link.
func (e *Evaluator) CheckExecutable(s *model.Status) bool {
	if s == nil {
		return false
	}
	return len(ExtractURLs(s.Message)) == 0
}

// IsExecutableInChannel searches the channel's recent posts for the exact
// message once the status is due. The window spans from now minus the
// maximum duplicate interval up to now, in UTC.
func (e *Evaluator) IsExecutableInChannel(ctx context.Context, s *model.Status, scheduledTime time.Time) (Verdict, error) {
	if !e.CheckExecutable(s) {
		e.record(CheckChannel, OutcomeSkipped)
		return Pass(), nil
	}
	if !e.gate.IsDueNow(scheduledTime) {
		e.record(CheckChannel, OutcomeSkipped)
		return Pass(), nil
	}

	activity, err := activityOf(s)
	if err != nil {
		e.record(CheckChannel, OutcomeError)
		return Verdict{}, err
	}
	if activity.Location == nil || activity.Location.Username == "" {
		e.record(CheckChannel, OutcomeError)
		return Verdict{}, ErrIncompleteContent
	}
	username := activity.Location.Username

	now := e.clock.Now().UTC()
	since := e.maxDuplicate.Before(now)

	searchCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	posts, err := e.searcher.SearchRecentExactText(searchCtx, username, s.Message, since)
	if err != nil {
		e.record(CheckChannel, OutcomeError)
		return Verdict{}, fmt.Errorf("search recent posts of %s: %w", username, asExternal(err))
	}

	for _, p := range posts {
		if !isSameContent(p, username, s.Message, since) {
			continue
		}
		e.log.Info("duplicate status found",
			"status_id", s.ID,
			"username", username,
			"match_id", p.ID,
		)
		e.record(CheckChannel, OutcomeFail)
		return Fail("Same content has already been posted on Twitter: " + e.StatusURL(username, p.ID)), nil
	}

	e.record(CheckChannel, OutcomePass)
	return Pass(), nil
}

func isSameContent(p channel.Post, username, message string, since time.Time) bool {
	if p.Username != "" && !strings.EqualFold(p.Username, username) {
		return false
	}
	if !p.CreatedAt.IsZero() && p.CreatedAt.Before(since) {
		return false
	}
	return p.Text == message
}

// asExternal classifies any search failure as an external API error so that
// callers never mistake it for a verdict.
func asExternal(err error) error {
	var apiErr *channel.ExternalAPIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &channel.ExternalAPIError{Reason: err.Error(), Err: err}
}
