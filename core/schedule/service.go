package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/notification"
)

// StaleAfter is the age after which a schedule container is purged.
const StaleAfter = 7 * 24 * time.Hour

var (
	ErrNotFound     = core.NewNotFoundError("schedule not found")
	ErrItemNotFound = core.NewNotFoundError("schedule item not found")
	errStaffOnly    = core.NewForbiddenError("only admins can edit the schedule")
)

type (
	Repository interface {
		// GetCurrent returns the most recent container, ErrNotFound when there is none.
		GetCurrent(ctx context.Context, exec ...core.DBExecutor) (Schedule, error)
		// SaveSchedule inserts the container when its ID is 0, otherwise rewrites its items.
		SaveSchedule(ctx context.Context, sch Schedule, exec ...core.DBExecutor) (Schedule, error)
		DeleteCreatedBefore(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int64, error)
	}

	Service struct {
		repo     Repository
		notifier notification.Notifier
		recorder activity.Recorder
	}
)

func NewService(repo Repository, notifier notification.Notifier, recorder activity.Recorder) *Service {
	return &Service{repo: repo, notifier: notifier, recorder: recorder}
}

func (svc *Service) current(ctx context.Context) (Schedule, error) {
	sch, err := svc.repo.GetCurrent(ctx)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			now := time.Now().UTC()
			return Schedule{Items: Items{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Schedule{}, errors.Wrap(err, "getting current schedule")
	}
	return sch, nil
}

// Get returns the current items, an empty list when there is no schedule.
func (svc *Service) Get(ctx context.Context) (Items, error) {
	sch, err := svc.current(ctx)
	if err != nil {
		return nil, err
	}
	if sch.Items == nil {
		return Items{}, nil
	}
	return sch.Items, nil
}

func newItem(ni NewItem, actor core.Actor) Item {
	return Item{
		ID:          uuid.New().String(),
		Activity:    core.Sanitize(ni.Activity),
		Day:         core.Sanitize(ni.Day),
		TimeRange:   core.Sanitize(ni.TimeRange),
		Description: core.Sanitize(ni.Description),
		AddedBy:     actor.Username,
	}
}

// mutate rewrites the whole item list of the current container.
func (svc *Service) mutate(ctx context.Context, actor core.Actor, action string, fn func(Items) (Items, error)) (Items, error) {
	if !actor.IsStaff() {
		return nil, errStaffOnly
	}
	sch, err := svc.current(ctx)
	if err != nil {
		return nil, err
	}
	items, err := fn(append(Items{}, sch.Items...))
	if err != nil {
		return nil, err
	}
	sch.Items = items
	sch.UpdatedAt = time.Now().UTC()
	if sch, err = svc.repo.SaveSchedule(ctx, sch); err != nil {
		return nil, errors.Wrap(err, "saving schedule")
	}

	svc.notifier.Notify(ctx, notification.TypeSchedule,
		fmt.Sprintf("The schedule was updated by %s (%s)", actor.DisplayName(), action), "", actor.Username)
	svc.recorder.Record(ctx, activity.TypeSchedule, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"action": action, "items": len(sch.Items)})
	return sch.Items, nil
}

func (svc *Service) AddItem(ctx context.Context, actor core.Actor, ni NewItem) (Items, error) {
	return svc.mutate(ctx, actor, "add", func(items Items) (Items, error) {
		return append(items, newItem(ni, actor)), nil
	})
}

func (svc *Service) UpdateItem(ctx context.Context, actor core.Actor, id string, ni NewItem) (Items, error) {
	return svc.mutate(ctx, actor, "update", func(items Items) (Items, error) {
		for i, it := range items {
			if it.ID == id {
				updated := newItem(ni, actor)
				updated.ID = it.ID
				items[i] = updated
				return items, nil
			}
		}
		return nil, ErrItemNotFound
	})
}

func (svc *Service) RemoveItem(ctx context.Context, actor core.Actor, id string) (Items, error) {
	return svc.mutate(ctx, actor, "remove", func(items Items) (Items, error) {
		for i, it := range items {
			if it.ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, ErrItemNotFound
	})
}

func (svc *Service) Replace(ctx context.Context, actor core.Actor, newItems []NewItem) (Items, error) {
	return svc.mutate(ctx, actor, "replace", func(Items) (Items, error) {
		items := make(Items, 0, len(newItems))
		for _, ni := range newItems {
			items = append(items, newItem(ni, actor))
		}
		return items, nil
	})
}

// PurgeStale deletes the containers created more than StaleAfter before now.
func (svc *Service) PurgeStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.repo.DeleteCreatedBefore(ctx, now.Add(-StaleAfter))
	return n, errors.Wrap(err, "purging stale schedules")
}
