package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"statusbot/internal/bot"
	"statusbot/internal/eligibility"
	"statusbot/internal/job"
	"statusbot/internal/model"
	"statusbot/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Executor runs the publish job of an operation at its start date.
type Executor interface {
	Execute(ctx context.Context, operationID int64) (*job.Result, error)
}

// Scheduler periodically publishes due activities and notifies their chats.
type Scheduler struct {
	store    storage.Storage
	executor Executor
	sender   Sender
	clock    eligibility.Clock
	log      *slog.Logger
	tick     time.Duration
	pause    time.Duration
}

// New creates a Scheduler.
func New(store storage.Storage, executor Executor, sender Sender, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		sender:   sender,
		clock:    eligibility.SystemClock{},
		log:      log,
		tick:     1 * time.Minute,
		pause:    50 * time.Millisecond,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetClock overrides the system clock used to find due activities.
func (s *Scheduler) SetClock(c eligibility.Clock) {
	if c != nil {
		s.clock = c
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	activities, err := s.store.ListDueActivities(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("list due activities", "error", err)
		return
	}

	for _, a := range activities {
		if ctx.Err() != nil {
			return
		}
		s.processActivity(ctx, a)
	}
}

func (s *Scheduler) processActivity(ctx context.Context, a model.Activity) {
	s.log.Debug("processing activity", "activity_id", a.ID, "name", a.Name)

	op, err := s.store.FindOperationByActivity(ctx, a.ID)
	if err != nil {
		s.log.Error("find operation", "activity_id", a.ID, "error", err)
		return
	}
	if op == nil {
		s.log.Warn("activity has no operation", "activity_id", a.ID)
		if err := s.store.SetActivityState(ctx, a.ID, model.StateDraft, "nothing to publish"); err != nil {
			s.log.Error("set activity state", "activity_id", a.ID, "error", err)
		}
		return
	}

	res, err := s.executor.Execute(ctx, op.ID)
	switch {
	case errors.Is(err, job.ErrNotDue):
		s.log.Debug("activity not due", "activity_id", a.ID)
		return
	case err != nil:
		s.log.Error("execute", "activity_id", a.ID, "operation_id", op.ID, "error", err)
		return
	}

	if res.Outcome == job.OutcomeExternalError && res.Err != nil && res.Err.Error() == a.LastError {
		s.log.Debug("external error unchanged", "activity_id", a.ID)
		return
	}

	s.sender.SendMessage(a.ChatID, bot.FormatPublishResult(a.Name, res))

	// Rate limit: ~20 messages/sec max for Telegram
	time.Sleep(s.pause)
}
