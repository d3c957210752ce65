package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/notification"
)

var notificationColumns = []string{"id", "type", "message", "target_section", "from_username", "dismissed_by", "created_at"}

type dbNotification struct {
	ID            string         `db:"id"`
	Type          string         `db:"type"`
	Message       string         `db:"message"`
	TargetSection null.String    `db:"target_section"`
	FromUsername  null.String    `db:"from_username"`
	DismissedBy   pq.StringArray `db:"dismissed_by"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (n dbNotification) toNotification() notification.Notification {
	dismissed := []string(n.DismissedBy)
	if dismissed == nil {
		dismissed = []string{}
	}
	return notification.Notification{
		ID:            n.ID,
		Type:          n.Type,
		Message:       n.Message,
		TargetSection: n.TargetSection.String,
		FromUsername:  n.FromUsername.String,
		DismissedBy:   dismissed,
		CreatedAt:     n.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	baseRepository
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{baseRepository{exec: exec}}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	dismissed := n.DismissedBy
	if dismissed == nil {
		dismissed = []string{}
	}
	stmt := psql.Insert("notifications").
		SetMap(map[string]interface{}{
			"id":             n.ID,
			"type":           n.Type,
			"message":        n.Message,
			"target_section": nullString(n.TargetSection),
			"from_username":  nullString(n.FromUsername),
			"dismissed_by":   pq.StringArray(dismissed),
			"created_at":     n.CreatedAt.UTC(),
		}).
		Suffix("RETURNING " + strings.Join(notificationColumns, ", "))

	var row dbNotification
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return row.toNotification(), nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, filter notification.QueryFilter, exec ...core.DBExecutor) ([]notification.Notification, error) {
	stmt := psql.Select(notificationColumns...).From("notifications").OrderBy("created_at DESC")
	if !filter.AllSections {
		if filter.Section != "" {
			stmt = stmt.Where(sq.Or{unclaimed("target_section"), sectionEq("target_section", filter.Section)})
		} else {
			stmt = stmt.Where(unclaimed("target_section"))
		}
	}
	if filter.ExcludeDismissedBy != "" {
		stmt = stmt.Where("NOT (? = ANY(dismissed_by))", filter.ExcludeDismissedBy)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(uint64(filter.Limit))
	}

	var rows []dbNotification
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, nil
}

func (repo notificationRepository) AddDismissal(ctx context.Context, id, username string, exec ...core.DBExecutor) error {
	db := repo.getExec(exec)
	stmt := psql.Update("notifications").
		Set("dismissed_by", sq.Expr("array_append(dismissed_by, ?::text)", username)).
		Where(sq.Eq{"id": id}).
		Where("NOT (?::text = ANY(dismissed_by))", username)
	n, err := execAffected(ctx, db, stmt)
	if err != nil {
		return errors.Wrap(err, "dismissing notification")
	}
	if n > 0 {
		return nil
	}

	// already dismissed, or missing
	var found bool
	if err = get(ctx, db, &found, psql.Select("1").From("notifications").Where(sq.Eq{"id": id}).
		Prefix("SELECT EXISTS (").Suffix(")")); err != nil {
		return errors.Wrap(err, "checking notification")
	}
	if !found {
		return notification.ErrNotFound
	}
	return nil
}

func (repo notificationRepository) DeleteNotification(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), psql.Delete("notifications").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
