package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"statusbot/internal/model"
	"statusbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const activityColumns = `a.id, a.chat_id, COALESCE(a.campaign_id, 0), a.location_id, a.name,
	a.start_date, a.state, a.last_error, a.created_at,
	c.id, c.chat_id, c.name, c.repeat_interval, c.created_at,
	l.id, l.chat_id, l.username, l.name, l.created_at`

const activityFrom = `FROM activities a
	LEFT JOIN campaigns c ON c.id = a.campaign_id
	LEFT JOIN locations l ON l.id = a.location_id`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db      *sql.DB
	version int64
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	version, err := migrations.Up(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, version: version}, nil
}

// SchemaVersion returns the migration version the database was brought to.
func (s *SQLite) SchemaVersion() int64 {
	return s.version
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateCampaign inserts a new campaign and populates its ID and CreatedAt.
func (s *SQLite) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (chat_id, name, repeat_interval, created_at) VALUES (?, ?, ?, ?)`,
		c.ChatID, c.Name, c.Interval, now,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetCampaign returns a single campaign by its ID.
func (s *SQLite) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, name, repeat_interval, created_at FROM campaigns WHERE id = ?`, id,
	)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	return c, err
}

// ListCampaigns returns all campaigns belonging to the given chat.
func (s *SQLite) ListCampaigns(ctx context.Context, chatID int64) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, name, repeat_interval, created_at FROM campaigns WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// UpdateCampaign persists the name and interval of a campaign.
func (s *SQLite) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET name = ?, repeat_interval = ? WHERE id = ?`,
		c.Name, c.Interval, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return nil
}

// CreateLocation inserts a new location and populates its ID and CreatedAt.
func (s *SQLite) CreateLocation(ctx context.Context, l *model.Location) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (chat_id, username, name, created_at) VALUES (?, ?, ?, ?)`,
		l.ChatID, l.Username, l.Name, now,
	)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	l.ID = id
	l.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetLocation returns a single location by its ID.
func (s *SQLite) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username, name, created_at FROM locations WHERE id = ?`, id,
	)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	return l, err
}

// FindLocationByUsername returns the chat's location for username, or nil
// if there is none.
func (s *SQLite) FindLocationByUsername(ctx context.Context, chatID int64, username string) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username, name, created_at FROM locations
		 WHERE chat_id = ? AND username = ? COLLATE NOCASE`, chatID, username,
	)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// ListLocations returns all locations belonging to the given chat.
func (s *SQLite) ListLocations(ctx context.Context, chatID int64) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, username, name, created_at FROM locations WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var locations []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

// CreateActivity inserts an activity, its operation and its status in one
// transaction and populates their IDs.
func (s *SQLite) CreateActivity(ctx context.Context, a *model.Activity, op *model.Operation, st *model.Status) error {
	if a.State == "" {
		a.State = model.StateDraft
	}
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO activities (chat_id, campaign_id, location_id, name, start_date, state, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ChatID, nullableID(a.CampaignID), a.LocationID, a.Name,
		a.StartDate.UTC().Format(timeLayout), string(a.State), a.LastError, now,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	activityID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO operations (activity_id, name) VALUES (?, ?)`, activityID, op.Name,
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	operationID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO statuses (operation_id, message, created_at) VALUES (?, ?, ?)`,
		operationID, st.Message, now,
	)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	statusID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	created, _ := time.Parse(timeLayout, now)
	a.ID, a.CreatedAt = activityID, created
	op.ID, op.ActivityID, op.Activity = operationID, activityID, a
	st.ID, st.OperationID, st.CreatedAt, st.Operation = statusID, operationID, created, op
	return nil
}

// GetActivity returns an activity with its campaign and location.
func (s *SQLite) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` `+activityFrom+` WHERE a.id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	return a, err
}

// ListActivities returns all activities of the given chat, soonest first.
func (s *SQLite) ListActivities(ctx context.Context, chatID int64) ([]model.Activity, error) {
	return s.queryActivities(ctx,
		`SELECT `+activityColumns+` `+activityFrom+` WHERE a.chat_id = ? ORDER BY a.start_date, a.id`, chatID,
	)
}

// ListDueActivities returns scheduled activities whose start date is at or
// before now.
func (s *SQLite) ListDueActivities(ctx context.Context, now time.Time) ([]model.Activity, error) {
	return s.queryActivities(ctx,
		`SELECT `+activityColumns+` `+activityFrom+`
		 WHERE a.state = ? AND a.start_date <= ?
		 ORDER BY a.start_date, a.id`,
		string(model.StateScheduled), now.UTC().Format(timeLayout),
	)
}

func (s *SQLite) queryActivities(ctx context.Context, query string, args ...any) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// UpdateActivity persists the editable fields of an activity.
func (s *SQLite) UpdateActivity(ctx context.Context, a *model.Activity) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE activities SET campaign_id = ?, location_id = ?, name = ?, start_date = ?, state = ?, last_error = ?
		 WHERE id = ?`,
		nullableID(a.CampaignID), a.LocationID, a.Name, a.StartDate.UTC().Format(timeLayout),
		string(a.State), a.LastError, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// SetActivityState moves an activity to state and records lastError.
func (s *SQLite) SetActivityState(ctx context.Context, id int64, state model.ActivityState, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE activities SET state = ?, last_error = ? WHERE id = ?`, string(state), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("set activity state: %w", err)
	}
	return nil
}

// DeleteActivity removes an activity with its operation and status.
func (s *SQLite) DeleteActivity(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM statuses WHERE operation_id IN (SELECT id FROM operations WHERE activity_id = ?)`, id,
	); err != nil {
		return fmt.Errorf("delete statuses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM operations WHERE activity_id = ?`, id); err != nil {
		return fmt.Errorf("delete operations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return tx.Commit()
}

// FindOperationByActivity returns the operation of an activity, or nil if
// there is none.
func (s *SQLite) FindOperationByActivity(ctx context.Context, activityID int64) (*model.Operation, error) {
	var op model.Operation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, name FROM operations WHERE activity_id = ?`, activityID,
	).Scan(&op.ID, &op.ActivityID, &op.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	return &op, nil
}

// FindStatusByOperation returns the status of an operation, or nil if there
// is none.
func (s *SQLite) FindStatusByOperation(ctx context.Context, operationID int64) (*model.Status, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation_id, message, id_str, url, created_at, published_at
		 FROM statuses WHERE operation_id = ?`, operationID,
	)
	st, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

// LoadStatus returns the status of an operation with the full content graph
// attached. It returns ErrNotFound if any link of the graph is missing.
func (s *SQLite) LoadStatus(ctx context.Context, operationID int64) (*model.Status, error) {
	st, err := s.FindStatusByOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("status of operation %d: %w", operationID, ErrNotFound)
	}

	var op model.Operation
	err = s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, name FROM operations WHERE id = ?`, operationID,
	).Scan(&op.ID, &op.ActivityID, &op.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %d: %w", operationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	activity, err := s.GetActivity(ctx, op.ActivityID)
	if err != nil {
		return nil, err
	}
	if activity.Location == nil {
		return nil, fmt.Errorf("location %d: %w", activity.LocationID, ErrNotFound)
	}

	op.Activity = activity
	st.Operation = &op
	return st, nil
}

// UpdateStatusMessage replaces the message of a status.
func (s *SQLite) UpdateStatusMessage(ctx context.Context, statusID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE statuses SET message = ? WHERE id = ?`, message, statusID)
	if err != nil {
		return fmt.Errorf("update status message: %w", err)
	}
	return nil
}

// MarkPublished stores the platform identifier of a status and marks its
// activity published.
func (s *SQLite) MarkPublished(ctx context.Context, statusID int64, idStr, url string, publishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE statuses SET id_str = ?, url = ?, published_at = ? WHERE id = ?`,
		idStr, url, publishedAt.UTC().Format(timeLayout), statusID,
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE activities SET state = ?, last_error = ''
		 WHERE id = (SELECT o.activity_id FROM operations o JOIN statuses s ON s.operation_id = o.id WHERE s.id = ?)`,
		string(model.StatePublished), statusID,
	); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return tx.Commit()
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, strings.TrimSpace(v))
	return t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var created string
	if err := row.Scan(&c.ID, &c.ChatID, &c.Name, &c.Interval, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func scanLocation(row scannable) (*model.Location, error) {
	var l model.Location
	var created string
	if err := row.Scan(&l.ID, &l.ChatID, &l.Username, &l.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan location: %w", err)
	}
	l.CreatedAt = parseTime(created)
	return &l, nil
}

func scanStatus(row scannable) (*model.Status, error) {
	var st model.Status
	var created string
	var published sql.NullString
	if err := row.Scan(&st.ID, &st.OperationID, &st.Message, &st.IDStr, &st.URL, &created, &published); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan status: %w", err)
	}
	st.CreatedAt = parseTime(created)
	if published.Valid {
		t := parseTime(published.String)
		st.PublishedAt = &t
	}
	return &st, nil
}

func scanActivity(row scannable) (*model.Activity, error) {
	var a model.Activity
	var state, start, created string
	var (
		cID, cChat                 sql.NullInt64
		cName, cInterval, cCreated sql.NullString
		lID, lChat                 sql.NullInt64
		lUsername, lName, lCreated sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.ChatID, &a.CampaignID, &a.LocationID, &a.Name, &start, &state, &a.LastError, &created,
		&cID, &cChat, &cName, &cInterval, &cCreated,
		&lID, &lChat, &lUsername, &lName, &lCreated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	a.State = model.ActivityState(state)
	a.StartDate = parseTime(start)
	a.CreatedAt = parseTime(created)
	if cID.Valid {
		a.Campaign = &model.Campaign{
			ID:        cID.Int64,
			ChatID:    cChat.Int64,
			Name:      cName.String,
			Interval:  cInterval.String,
			CreatedAt: parseTime(cCreated.String),
		}
	}
	if lID.Valid {
		a.Location = &model.Location{
			ID:        lID.Int64,
			ChatID:    lChat.Int64,
			Username:  lUsername.String,
			Name:      lName.String,
			CreatedAt: parseTime(lCreated.String),
		}
	}
	return &a, nil
}
