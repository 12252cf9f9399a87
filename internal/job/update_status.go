// Package job publishes scheduled Twitter statuses once they pass the
// eligibility checks.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"statusbot/internal/channel"
	"statusbot/internal/eligibility"
	"statusbot/internal/model"
	"statusbot/internal/storage"
	"statusbot/internal/twitter"
)

// Outcomes of a publish attempt.
const (
	OutcomePublished     = "published"
	OutcomeRejected      = "rejected"
	OutcomeExternalError = "external_error"
)

var (
	// ErrAlreadyPublished is returned for a status that already has a
	// platform identifier.
	ErrAlreadyPublished = errors.New("status already published")
	// ErrNotDue is returned by Execute before the activity's start date.
	ErrNotDue = errors.New("activity is not due yet")
)

// Poster publishes a status on the channel.
type Poster interface {
	UpdateStatus(ctx context.Context, message string) (*twitter.Tweet, error)
	StatusURL(username, id string) string
}

// Recorder receives the outcome of every publish attempt.
type Recorder interface {
	RecordPublish(outcome string)
}

// Result describes what happened to a status.
type Result struct {
	Outcome string
	// Verdict is set for published and rejected outcomes.
	Verdict eligibility.Verdict
	Status  *model.Status
	// Err holds the external failure for OutcomeExternalError.
	Err error
}

// UpdateStatus is the publish job for status-update activities.
type UpdateStatus struct {
	store     storage.Storage
	evaluator *eligibility.Evaluator
	poster    Poster
	clock     eligibility.Clock
	recorder  Recorder
	log       *slog.Logger
}

// Option configures an UpdateStatus job.
type Option func(*UpdateStatus)

// WithClock overrides the system clock.
func WithClock(c eligibility.Clock) Option {
	return func(j *UpdateStatus) {
		if c != nil {
			j.clock = c
		}
	}
}

// WithRecorder reports publish outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(j *UpdateStatus) {
		j.recorder = r
	}
}

// New creates the job.
func New(store storage.Storage, evaluator *eligibility.Evaluator, poster Poster, log *slog.Logger, opts ...Option) *UpdateStatus {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	j := &UpdateStatus{
		store:     store,
		evaluator: evaluator,
		poster:    poster,
		clock:     eligibility.SystemClock{},
		log:       log,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Execute evaluates and publishes the status of an operation at its
// scheduled start date.
func (j *UpdateStatus) Execute(ctx context.Context, operationID int64) (*Result, error) {
	st, err := j.store.LoadStatus(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	start := st.Operation.Activity.StartDate
	if !eligibility.NewGate(j.clock).IsDueNow(start) {
		return nil, fmt.Errorf("operation %d starts at %s: %w", operationID, start.UTC().Format(time.RFC3339), ErrNotDue)
	}
	return j.run(ctx, st, start)
}

// PublishNow evaluates and publishes the status of an operation
// immediately, regardless of its start date.
func (j *UpdateStatus) PublishNow(ctx context.Context, operationID int64) (*Result, error) {
	st, err := j.store.LoadStatus(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return j.run(ctx, st, j.clock.Now())
}

func (j *UpdateStatus) run(ctx context.Context, st *model.Status, scheduledTime time.Time) (*Result, error) {
	if st.IsPublished() {
		return nil, ErrAlreadyPublished
	}
	activity := st.Operation.Activity

	verdict, err := j.evaluator.Evaluate(ctx, st, scheduledTime)
	if err != nil {
		var apiErr *channel.ExternalAPIError
		if !errors.As(err, &apiErr) {
			return nil, fmt.Errorf("evaluate status %d: %w", st.ID, err)
		}
		return j.externalError(ctx, st, err)
	}

	if !verdict.OK {
		if err := j.store.SetActivityState(ctx, activity.ID, model.StateRejected, verdict.Message); err != nil {
			return nil, err
		}
		activity.State = model.StateRejected
		activity.LastError = verdict.Message
		j.log.Info("status rejected", "activity_id", activity.ID, "reason", verdict.Message)
		j.record(OutcomeRejected)
		return &Result{Outcome: OutcomeRejected, Verdict: verdict, Status: st}, nil
	}

	tweet, err := j.poster.UpdateStatus(ctx, st.Message)
	if err != nil {
		return j.externalError(ctx, st, fmt.Errorf("post status: %w", err))
	}

	publishedAt := tweet.CreatedAt
	if publishedAt.IsZero() {
		publishedAt = j.clock.Now().UTC()
	}
	url := j.poster.StatusURL(activity.Location.Username, tweet.IDStr)
	if err := j.store.MarkPublished(ctx, st.ID, tweet.IDStr, url, publishedAt); err != nil {
		return nil, fmt.Errorf("tweet %s was posted but not recorded: %w", tweet.IDStr, err)
	}

	st.IDStr = tweet.IDStr
	st.URL = url
	st.PublishedAt = &publishedAt
	activity.State = model.StatePublished
	activity.LastError = ""

	j.log.Info("status published", "activity_id", activity.ID, "id_str", tweet.IDStr)
	j.record(OutcomePublished)
	return &Result{Outcome: OutcomePublished, Verdict: verdict, Status: st}, nil
}

// externalError keeps the activity scheduled so that the next run retries it.
func (j *UpdateStatus) externalError(ctx context.Context, st *model.Status, cause error) (*Result, error) {
	activity := st.Operation.Activity
	if err := j.store.SetActivityState(ctx, activity.ID, model.StateScheduled, cause.Error()); err != nil {
		return nil, err
	}
	activity.State = model.StateScheduled
	activity.LastError = cause.Error()
	j.log.Warn("external api error", "activity_id", activity.ID, "error", cause)
	j.record(OutcomeExternalError)
	return &Result{Outcome: OutcomeExternalError, Status: st, Err: cause}, nil
}

func (j *UpdateStatus) record(outcome string) {
	if j.recorder != nil {
		j.recorder.RecordPublish(outcome)
	}
}
