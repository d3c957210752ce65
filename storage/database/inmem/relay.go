package inmemdb

import (
	"context"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	defer repo.db.lock(exec)()

	if n.DismissedBy == nil {
		n.DismissedBy = []string{}
	}
	repo.db.t.notifications = append(repo.db.t.notifications, n)
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter notification.QueryFilter, exec ...core.DBExecutor) ([]notification.Notification, error) {
	defer repo.db.rlock(exec)()

	ns := make([]notification.Notification, 0)
	for i := len(repo.db.t.notifications) - 1; i >= 0; i-- {
		n := repo.db.t.notifications[i]
		if !filter.AllSections {
			untargeted := core.CleanString(n.TargetSection) == ""
			if !untargeted && !core.SameSection(n.TargetSection, filter.Section) {
				continue
			}
		}
		if filter.ExcludeDismissedBy != "" && n.IsDismissedBy(filter.ExcludeDismissedBy) {
			continue
		}
		n.DismissedBy = append([]string{}, n.DismissedBy...)
		ns = append(ns, n)
		if filter.Limit > 0 && len(ns) == filter.Limit {
			break
		}
	}
	return ns, nil
}

func (repo *notificationRepository) AddDismissal(_ context.Context, id, username string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	for i, n := range repo.db.t.notifications {
		if n.ID != id {
			continue
		}
		if !n.IsDismissedBy(username) {
			n.DismissedBy = append(append([]string{}, n.DismissedBy...), username)
			repo.db.t.notifications[i] = n
		}
		return nil
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	for i, n := range repo.db.t.notifications {
		if n.ID == id {
			repo.db.t.notifications = append(repo.db.t.notifications[:i:i], repo.db.t.notifications[i+1:]...)
			return nil
		}
	}
	return notification.ErrNotFound
}

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateEntry(_ context.Context, e activity.Entry, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()
	repo.db.t.activity = append(repo.db.t.activity, e)
	return nil
}

func (repo *activityRepository) QueryEntries(_ context.Context, limit int, exec ...core.DBExecutor) ([]activity.Entry, error) {
	defer repo.db.rlock(exec)()

	entries := make([]activity.Entry, 0)
	for i := len(repo.db.t.activity) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, repo.db.t.activity[i])
	}
	return entries, nil
}
