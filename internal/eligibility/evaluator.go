// Package eligibility decides whether a scheduled Twitter status may be
// published: due-time gating, duplicate content in the channel and campaign
// interval conflicts.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"statusbot/internal/channel"
	"statusbot/internal/model"
	"statusbot/internal/reltime"
)

// ErrIncompleteContent is returned when a status is not linked to an
// operation, activity and location.
var ErrIncompleteContent = errors.New("status is missing its operation, activity or location")

// Check names reported to a Recorder.
const (
	CheckChannel  = "channel"
	CheckCampaign = "campaign"
	CheckEvaluate = "evaluate"
)

// Outcomes reported to a Recorder.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

const (
	defaultWebURL        = "https://twitter.com"
	defaultSearchTimeout = 10 * time.Second
	duplicateTweetsURL   = "https://twittercommunity.com/t/duplicate-tweets/13264"
)

// Verdict is the result of an eligibility check.
type Verdict struct {
	OK      bool
	Message string
}

// Pass returns a successful verdict.
func Pass() Verdict {
	return Verdict{OK: true}
}

// Fail returns a rejecting verdict with an explanation.
func Fail(msg string) Verdict {
	return Verdict{OK: false, Message: msg}
}

// Recorder receives the outcome of every check.
type Recorder interface {
	RecordCheck(check, outcome string)
}

// Evaluator runs the eligibility checks. It holds no per-call state and is
// safe for concurrent use.
type Evaluator struct {
	searcher      channel.Searcher
	maxDuplicate  reltime.Offset
	clock         Clock
	gate          Gate
	recorder      Recorder
	log           *slog.Logger
	webURL        string
	searchTimeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the system clock.
func WithClock(c Clock) Option {
	return func(e *Evaluator) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRecorder reports check outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) {
		e.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log
		}
	}
}

// WithWebURL sets the base URL used to link conflicting posts.
func WithWebURL(u string) Option {
	return func(e *Evaluator) {
		if u != "" {
			e.webURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSearchTimeout bounds the duration of the duplicate search.
func WithSearchTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.searchTimeout = d
		}
	}
}

// New creates an Evaluator. maxDuplicateInterval is the window in which the
// platform rejects identical posts.
func New(searcher channel.Searcher, maxDuplicateInterval reltime.Offset, opts ...Option) *Evaluator {
	e := &Evaluator{
		searcher:      searcher,
		maxDuplicate:  maxDuplicateInterval,
		clock:         SystemClock{},
		log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		webURL:        defaultWebURL,
		searchTimeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gate = NewGate(e.clock)
	return e
}

// Gate returns the due-time gate used by the evaluator.
func (e *Evaluator) Gate() Gate {
	return e.gate
}

// MaxDuplicateInterval returns the configured duplicate-avoidance window.
func (e *Evaluator) MaxDuplicateInterval() reltime.Offset {
	return e.maxDuplicate
}

// StatusURL returns the public link of a published status.
func (e *Evaluator) StatusURL(username, id string) string {
	return fmt.Sprintf("%s/%s/status/%s", e.webURL, username, id)
}

// Evaluate runs the due-time gate, the channel check and the campaign check
// in that order and returns the first failing verdict. An external search
// failure is returned as an error wrapping *channel.ExternalAPIError.
func (e *Evaluator) Evaluate(ctx context.Context, s *model.Status, scheduledTime time.Time) (Verdict, error) {
	if _, err := activityOf(s); err != nil {
		e.record(CheckEvaluate, OutcomeError)
		return Verdict{}, err
	}

	e.log.Debug("evaluating status",
		"status_id", s.ID,
		"scheduled_at", scheduledTime.UTC(),
		"due", e.gate.IsDueNow(scheduledTime),
	)

	v, err := e.IsExecutableInChannel(ctx, s, scheduledTime)
	if err != nil {
		e.record(CheckEvaluate, OutcomeError)
		return Verdict{}, err
	}
	if !v.OK {
		e.record(CheckEvaluate, OutcomeFail)
		return v, nil
	}

	v = e.IsExecutableInCampaign(s)
	if !v.OK {
		e.record(CheckEvaluate, OutcomeFail)
		return v, nil
	}

	e.record(CheckEvaluate, OutcomePass)
	return Pass(), nil
}

func (e *Evaluator) record(check, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordCheck(check, outcome)
	}
}

func activityOf(s *model.Status) (*model.Activity, error) {
	if s == nil || s.Operation == nil || s.Operation.Activity == nil {
		return nil, ErrIncompleteContent
	}
	return s.Operation.Activity, nil
}
