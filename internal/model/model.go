// Package model defines the domain types used across the application.
package model

import "time"

// Campaign groups activities and may repeat on a relative interval.
type Campaign struct {
	ID     int64
	ChatID int64
	Name   string
	// Interval is a relative time expression such as "+10 days".
	// An empty interval means the campaign does not repeat.
	Interval  string
	CreatedAt time.Time
}

// Location is a Twitter account that statuses are published under.
type Location struct {
	ID        int64
	ChatID    int64
	Username  string
	Name      string
	CreatedAt time.Time
}

// ActivityState is the lifecycle state of a scheduled activity.
type ActivityState string

// Supported activity states.
const (
	StateDraft     ActivityState = "draft"
	StateScheduled ActivityState = "scheduled"
	StatePublished ActivityState = "published"
	StateRejected  ActivityState = "rejected"
)

// Activity is a scheduled Twitter status update inside a campaign.
type Activity struct {
	ID         int64
	ChatID     int64
	CampaignID int64 // zero when the activity is not part of a campaign
	LocationID int64
	Name       string
	StartDate  time.Time
	State      ActivityState
	// LastError holds the last rejection or external failure message.
	LastError string
	CreatedAt time.Time

	Campaign *Campaign
	Location *Location
}

// Operation is the executable unit of an activity. A status-update activity
// has exactly one operation.
type Operation struct {
	ID         int64
	ActivityID int64
	Name       string

	Activity *Activity
}

// Status is the content of a Twitter status update.
type Status struct {
	ID          int64
	OperationID int64
	Message     string
	// IDStr is the identifier Twitter assigned once the status was published.
	IDStr       string
	URL         string
	CreatedAt   time.Time
	PublishedAt *time.Time

	Operation *Operation
}

// IsPublished reports whether the status has been posted to Twitter.
func (s *Status) IsPublished() bool {
	return s.IDStr != ""
}
