// Package activity implements the operator-facing capabilities of a Twitter
// status-update activity: creating, editing, checking, publishing and
// reading it back.
package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"statusbot/internal/eligibility"
	"statusbot/internal/job"
	"statusbot/internal/model"
	"statusbot/internal/storage"
	"statusbot/internal/twitter"
)

// OperationName is the name of the single operation of a status update.
const OperationName = "update_status"

// Execution choices for new and edited activities.
const (
	ExecuteLater = "later"
	ExecuteNow   = "now"
)

// Read notices shown instead of the embedded status.
const (
	NoticeProtected     = "This is a protected tweet."
	NoticeNotAccessible = "This Tweet might not have been published yet."
)

var (
	// ErrPublished is returned when editing a status that is already live.
	ErrPublished = errors.New("status has already been published and cannot be changed")
	// ErrNotPublished is returned when reading a status that was never posted.
	ErrNotPublished = errors.New("status has not been published yet")
)

// Input is the operator's description of a status update.
type Input struct {
	ChatID          int64
	Name            string `validate:"required,max=255"`
	Message         string `validate:"required,max=280"`
	Username        string `validate:"required,max=15"`
	CampaignID      int64
	StartDate       time.Time
	ExecutionChoice string `validate:"omitempty,oneof=now later"`
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return "invalid " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Publisher runs the publish job for an operation.
type Publisher interface {
	PublishNow(ctx context.Context, operationID int64) (*job.Result, error)
}

// Reader fetches the embeddable form of a published status.
type Reader interface {
	OEmbed(ctx context.Context, idStr string) (*twitter.Embed, error)
}

// Created is the outcome of Create and Edit.
type Created struct {
	Status *model.Status
	// Publish is set when the activity was published immediately.
	Publish *job.Result
}

// View is a published status prepared for display.
type View struct {
	Status        *model.Status
	HTML          string
	Message       string
	Protected     bool
	NotAccessible bool
}

// Handler implements the activity capabilities on top of the store, the
// eligibility evaluator and the publish job.
type Handler struct {
	store     storage.Storage
	evaluator *eligibility.Evaluator
	publisher Publisher
	reader    Reader
	clock     eligibility.Clock
	validate  *validator.Validate
	log       *slog.Logger
}

// New creates a Handler. reader may be nil when previews are unavailable.
func New(store storage.Storage, evaluator *eligibility.Evaluator, publisher Publisher, reader Reader, clock eligibility.Clock, log *slog.Logger) *Handler {
	if clock == nil {
		clock = eligibility.SystemClock{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		store:     store,
		evaluator: evaluator,
		publisher: publisher,
		reader:    reader,
		clock:     clock,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

// Validate checks the input fields.
func (h *Handler) Validate(in Input) error {
	err := h.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return &ValidationError{Fields: fields, Err: err}
}

// GetContent returns the status of an activity with its content graph, or
// nil if the activity has no status yet.
func (h *Handler) GetContent(ctx context.Context, activityID int64) (*model.Status, error) {
	op, err := h.store.FindOperationByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, nil
	}
	st, err := h.store.LoadStatus(ctx, op.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return st, err
}

// ProcessContent validates the input and builds the unsaved activity graph.
// The location is resolved by username; a new one is returned unsaved.
func (h *Handler) ProcessContent(ctx context.Context, in Input) (*model.Status, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimPrefix(strings.TrimSpace(in.Username), "@")
	if err := h.Validate(in); err != nil {
		return nil, err
	}

	location, err := h.store.FindLocationByUsername(ctx, in.ChatID, in.Username)
	if err != nil {
		return nil, err
	}
	if location == nil {
		location = &model.Location{ChatID: in.ChatID, Username: in.Username, Name: in.Username}
	}

	var campaign *model.Campaign
	if in.CampaignID != 0 {
		campaign, err = h.store.GetCampaign(ctx, in.CampaignID)
		if err != nil {
			return nil, err
		}
		if campaign.ChatID != in.ChatID {
			return nil, fmt.Errorf("campaign %d: %w", in.CampaignID, storage.ErrNotFound)
		}
	}

	start := in.StartDate
	if in.ExecutionChoice == ExecuteNow || start.IsZero() {
		start = h.clock.Now()
	}

	activity := &model.Activity{
		ChatID:     in.ChatID,
		CampaignID: in.CampaignID,
		LocationID: location.ID,
		Name:       in.Name,
		StartDate:  start.UTC(),
		State:      model.StateScheduled,
		Campaign:   campaign,
		Location:   location,
	}
	op := &model.Operation{Name: OperationName, Activity: activity}
	return &model.Status{Message: in.Message, Operation: op}, nil
}

// Create stores a new activity. With ExecuteNow it is published right away
// and the publish result is returned.
func (h *Handler) Create(ctx context.Context, in Input) (*Created, error) {
	st, err := h.ProcessContent(ctx, in)
	if err != nil {
		return nil, err
	}
	op := st.Operation
	activity := op.Activity

	if activity.Location.ID == 0 {
		if err := h.store.CreateLocation(ctx, activity.Location); err != nil {
			return nil, err
		}
		activity.LocationID = activity.Location.ID
	}

	if err := h.store.CreateActivity(ctx, activity, op, st); err != nil {
		return nil, err
	}
	h.log.Info("activity created", "activity_id", activity.ID, "start_date", activity.StartDate)

	return h.publishIfNow(ctx, st, in.ExecutionChoice)
}

// Edit replaces the message, name and schedule of an unpublished activity.
// Editing a rejected activity schedules it again.
func (h *Handler) Edit(ctx context.Context, activityID int64, in Input) (*Created, error) {
	current, err := h.GetContent(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("activity %d: %w", activityID, storage.ErrNotFound)
	}
	if current.IsPublished() {
		return nil, ErrPublished
	}

	activity := current.Operation.Activity
	if in.Name == "" {
		in.Name = activity.Name
	}
	if in.Username == "" {
		in.Username = activity.Location.Username
	}
	if in.Message == "" {
		in.Message = current.Message
	}
	if in.StartDate.IsZero() && in.ExecutionChoice != ExecuteNow {
		in.StartDate = activity.StartDate
	}
	if in.CampaignID == 0 {
		in.CampaignID = activity.CampaignID
	}
	in.ChatID = activity.ChatID

	next, err := h.ProcessContent(ctx, in)
	if err != nil {
		return nil, err
	}
	updated := next.Operation.Activity
	if updated.Location.ID == 0 {
		if err := h.store.CreateLocation(ctx, updated.Location); err != nil {
			return nil, err
		}
		updated.LocationID = updated.Location.ID
	}

	activity.Name = updated.Name
	activity.CampaignID = updated.CampaignID
	activity.Campaign = updated.Campaign
	activity.LocationID = updated.LocationID
	activity.Location = updated.Location
	activity.StartDate = updated.StartDate
	activity.State = model.StateScheduled
	activity.LastError = ""
	if err := h.store.UpdateActivity(ctx, activity); err != nil {
		return nil, err
	}
	if err := h.store.UpdateStatusMessage(ctx, current.ID, next.Message); err != nil {
		return nil, err
	}
	current.Message = next.Message
	h.log.Info("activity edited", "activity_id", activity.ID)

	return h.publishIfNow(ctx, current, in.ExecutionChoice)
}

// Remove deletes an activity with its operation and status.
func (h *Handler) Remove(ctx context.Context, activityID int64) error {
	if err := h.store.DeleteActivity(ctx, activityID); err != nil {
		return err
	}
	h.log.Info("activity removed", "activity_id", activityID)
	return nil
}

// CheckExecutable reports whether the status needs a duplicate search.
func (h *Handler) CheckExecutable(st *model.Status) bool {
	return h.evaluator.CheckExecutable(st)
}

// IsExecutableInChannel searches for duplicate content right away, without
// waiting for the status to become due.
func (h *Handler) IsExecutableInChannel(ctx context.Context, st *model.Status) (eligibility.Verdict, error) {
	return h.evaluator.IsExecutableInChannel(ctx, st, time.Time{})
}

// IsExecutableInCampaign checks the activity's campaign interval.
func (h *Handler) IsExecutableInCampaign(st *model.Status) eligibility.Verdict {
	return h.evaluator.IsExecutableInCampaign(st)
}

// Check evaluates an activity as if it were published now, without
// changing its state.
func (h *Handler) Check(ctx context.Context, activityID int64) (eligibility.Verdict, error) {
	st, err := h.GetContent(ctx, activityID)
	if err != nil {
		return eligibility.Verdict{}, err
	}
	if st == nil {
		return eligibility.Verdict{}, fmt.Errorf("activity %d: %w", activityID, storage.ErrNotFound)
	}
	return h.evaluator.Evaluate(ctx, st, h.clock.Now())
}

// Publish evaluates and publishes an activity immediately.
func (h *Handler) Publish(ctx context.Context, activityID int64) (*job.Result, error) {
	op, err := h.store.FindOperationByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("activity %d: %w", activityID, storage.ErrNotFound)
	}
	return h.publisher.PublishNow(ctx, op.ID)
}

// Read returns the published status with its embedded form. Protected or
// unreachable statuses fall back to the stored message with a notice.
func (h *Handler) Read(ctx context.Context, activityID int64) (*View, error) {
	st, err := h.GetContent(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("activity %d: %w", activityID, storage.ErrNotFound)
	}
	if !st.IsPublished() {
		return nil, ErrNotPublished
	}

	view := &View{Status: st}
	if h.reader == nil {
		view.NotAccessible = true
		view.Message = NoticeNotAccessible
		return view, nil
	}

	embed, err := h.reader.OEmbed(ctx, st.IDStr)
	switch {
	case err == nil:
		view.HTML = embed.HTML
	case errors.Is(err, twitter.ErrProtected):
		view.Protected = true
		view.Message = NoticeProtected
	default:
		h.log.Warn("oembed failed", "activity_id", activityID, "error", err)
		view.NotAccessible = true
		view.Message = NoticeNotAccessible
	}
	return view, nil
}

func (h *Handler) publishIfNow(ctx context.Context, st *model.Status, choice string) (*Created, error) {
	created := &Created{Status: st}
	if choice != ExecuteNow {
		return created, nil
	}
	res, err := h.publisher.PublishNow(ctx, st.OperationID)
	if err != nil {
		return created, fmt.Errorf("publish now: %w", err)
	}
	created.Publish = res
	if res.Status != nil {
		created.Status = res.Status
	}
	return created, nil
}
