package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
)

type dbEntry struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	AdminName string    `db:"admin_name"`
	Details   jsonMap   `db:"details"`
	Time      time.Time `db:"time"`
	Status    string    `db:"status"`
}

type activityRepository struct {
	baseRepository
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{baseRepository{exec: exec}}
}

func (repo activityRepository) CreateEntry(ctx context.Context, e activity.Entry, exec ...core.DBExecutor) error {
	stmt := psql.Insert("activity_log").
		Columns("id", "type", "admin_name", "details", "time", "status").
		Values(e.ID, e.Type, e.AdminName, jsonMap(e.Details), e.Time.UTC(), e.Status)
	_, err := execAffected(ctx, repo.getExec(exec), stmt)
	return errors.Wrap(err, "inserting activity entry")
}

func (repo activityRepository) QueryEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]activity.Entry, error) {
	stmt := psql.Select("id", "type", "admin_name", "details", "time", "status").
		From("activity_log").
		OrderBy("time DESC").
		Limit(uint64(limit))

	var rows []dbEntry
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying activity log")
	}
	entries := make([]activity.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, activity.Entry{
			ID:        r.ID,
			Type:      r.Type,
			AdminName: r.AdminName,
			Details:   r.Details,
			Time:      r.Time.UTC(),
			Status:    r.Status,
		})
	}
	return entries, nil
}
