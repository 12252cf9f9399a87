// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"statusbot/internal/model"
)

// ErrNotFound is returned when a required record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, chatID int64) ([]model.Campaign, error)
	UpdateCampaign(ctx context.Context, c *model.Campaign) error

	CreateLocation(ctx context.Context, l *model.Location) error
	GetLocation(ctx context.Context, id int64) (*model.Location, error)
	FindLocationByUsername(ctx context.Context, chatID int64, username string) (*model.Location, error)
	ListLocations(ctx context.Context, chatID int64) ([]model.Location, error)

	// CreateActivity stores an activity with its operation and status in a
	// single transaction.
	CreateActivity(ctx context.Context, a *model.Activity, op *model.Operation, st *model.Status) error
	GetActivity(ctx context.Context, id int64) (*model.Activity, error)
	ListActivities(ctx context.Context, chatID int64) ([]model.Activity, error)
	ListDueActivities(ctx context.Context, now time.Time) ([]model.Activity, error)
	UpdateActivity(ctx context.Context, a *model.Activity) error
	SetActivityState(ctx context.Context, id int64, state model.ActivityState, lastError string) error
	DeleteActivity(ctx context.Context, id int64) error

	FindOperationByActivity(ctx context.Context, activityID int64) (*model.Operation, error)
	FindStatusByOperation(ctx context.Context, operationID int64) (*model.Status, error)
	// LoadStatus returns the status of an operation with its operation,
	// activity, campaign and location attached.
	LoadStatus(ctx context.Context, operationID int64) (*model.Status, error)
	UpdateStatusMessage(ctx context.Context, statusID int64, message string) error
	// MarkPublished records the platform identifier of a status and moves
	// its activity to the published state.
	MarkPublished(ctx context.Context, statusID int64, idStr, url string, publishedAt time.Time) error

	Close() error
}
