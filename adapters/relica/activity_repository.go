package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/model"
)

// activityRow is the persisted shape of one session activity record.
type activityRow struct {
	ID           int64     `db:"id"`
	SessionID    string    `db:"session_id"`
	Username     string    `db:"username"`
	Path         string    `db:"path"`
	Action       string    `db:"action"`
	LastActivity time.Time `db:"last_activity"`
}

func (r activityRow) toActivity() model.SessionActivity {
	return model.SessionActivity{
		SessionID:    r.SessionID,
		Username:     r.Username,
		Path:         r.Path,
		Action:       r.Action,
		LastActivity: r.LastActivity,
	}
}

// ActivityRepository persists session activity records using Relica.
type ActivityRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewActivityRepository creates an ActivityRepository with the default table prefix.
func NewActivityRepository(sqlDB *sql.DB, driverName string) *ActivityRepository {
	return &ActivityRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "realtime_"}
}

// NewActivityRepositoryWithPrefix creates an ActivityRepository with a custom table prefix.
func NewActivityRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *ActivityRepository {
	return &ActivityRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *ActivityRepository) tableName() string {
	return r.tablePrefix + "session_activity"
}

// Save creates or replaces the activity record for a session.
func (r *ActivityRepository) Save(ctx context.Context, activity model.SessionActivity) error {
	row := activityRow{
		SessionID:    activity.SessionID,
		Username:     activity.Username,
		Path:         activity.Path,
		Action:       activity.Action,
		LastActivity: activity.LastActivity,
	}

	var existing activityRow
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("session_id = ?", activity.SessionID).
		WithContext(ctx).
		One(&existing)

	if err == nil {
		row.ID = existing.ID
		if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
			return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to update session activity", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up session activity", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to insert session activity", err)
	}
	return nil
}

// Find retrieves the activity record for one session.
func (r *ActivityRepository) Find(ctx context.Context, sessionID string) (model.SessionActivity, error) {
	var row activityRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("session_id = ?", sessionID).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionActivity{}, realtime.ErrNoData
	}
	if err != nil {
		return model.SessionActivity{}, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to find session activity", err)
	}

	return row.toActivity(), nil
}

// List returns all persisted activity records ordered by recency.
func (r *ActivityRepository) List(ctx context.Context) ([]model.SessionActivity, error) {
	var rows []activityRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("last_activity DESC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to list session activity", err)
	}

	activities := make([]model.SessionActivity, 0, len(rows))
	for _, row := range rows {
		activities = append(activities, row.toActivity())
	}
	return activities, nil
}

// Delete removes the activity record for one session. Deleting an absent
// session is a no-op.
func (r *ActivityRepository) Delete(ctx context.Context, sessionID string) error {
	var row activityRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("session_id = ?", sessionID).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up session activity", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to delete session activity", err)
	}
	return nil
}

// Clear removes every persisted activity record.
func (r *ActivityRepository) Clear(ctx context.Context) error {
	var rows []activityRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to list session activity", err)
	}

	for i := range rows {
		if err := r.db.WithContext(ctx).Model(&rows[i]).Table(r.tableName()).Delete(); err != nil {
			return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to delete session activity", err)
		}
	}
	return nil
}

// Prune removes activity records older than the cutoff and returns how
// many were removed.
func (r *ActivityRepository) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var rows []activityRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("last_activity < ?", cutoff).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return 0, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to list stale session activity", err)
	}

	for i := range rows {
		if err := r.db.WithContext(ctx).Model(&rows[i]).Table(r.tableName()).Delete(); err != nil {
			return 0, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to prune session activity", err)
		}
	}
	return len(rows), nil
}
