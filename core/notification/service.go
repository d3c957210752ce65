package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
)

const defaultListLimit = 200

var ErrNotFound = core.NewNotFoundError("notification not found")

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotifications(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Notification, error)
		// AddDismissal appends username to dismissed_by unless already present.
		AddDismissal(ctx context.Context, id, username string, exec ...core.DBExecutor) error
		DeleteNotification(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// Notifier is used by the other services to emit notifications without failing their own operation.
	Notifier interface {
		Notify(ctx context.Context, typ, message, targetSection, from string)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Notifier = (*Service)(nil)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Push stores a notification.
func (svc *Service) Push(ctx context.Context, typ, message, targetSection, from string) (Notification, error) {
	if typ == "" {
		typ = TypeGeneral
	}
	n := Notification{
		ID:            uuid.New().String(),
		Type:          typ,
		Message:       core.Sanitize(message),
		TargetSection: core.CleanString(targetSection),
		FromUsername:  from,
		DismissedBy:   []string{},
		CreatedAt:     time.Now().UTC(),
	}
	if n.Message == "" {
		return Notification{}, core.NewValidationError(nil, core.FieldError{Field: "message", Error: "this field cannot be blank"})
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	return n, errors.Wrap(err, "creating notification")
}

// Notify is Push without error propagation: failures are only logged.
func (svc *Service) Notify(ctx context.Context, typ, message, targetSection, from string) {
	if _, err := svc.Push(ctx, typ, message, targetSection, from); err != nil {
		svc.logger.Error("pushing notification", err, map[string]interface{}{"type": typ, "section": targetSection})
	}
}

// Post lets staff publish a notification of their own.
// Admins can only target their own section.
func (svc *Service) Post(ctx context.Context, actor core.Actor, nn NewNotification) (Notification, error) {
	if !actor.IsStaff() {
		return Notification{}, core.NewForbiddenError("only admins can post notifications")
	}
	if nn.TargetSection != "" && !actor.CanManageSection(nn.TargetSection) {
		return Notification{}, core.NewForbiddenError("cannot notify another section")
	}
	return svc.Push(ctx, nn.Type, nn.Message, nn.TargetSection, actor.Username)
}

// ListFor returns the notifications visible to actor, newest first, minus those they dismissed.
func (svc *Service) ListFor(ctx context.Context, actor core.Actor) ([]Notification, error) {
	if !actor.IsStaff() {
		return nil, core.NewForbiddenError("permission denied")
	}
	filter := QueryFilter{
		Section:            actor.Section,
		AllSections:        actor.IsManager(),
		ExcludeDismissedBy: actor.Username,
		Limit:              defaultListLimit,
	}
	ns, err := svc.repo.QueryNotifications(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	if ns == nil {
		ns = []Notification{}
	}
	return ns, nil
}

// Dismiss hides a notification for actor only. Dismissing twice is a no-op.
func (svc *Service) Dismiss(ctx context.Context, id string, actor core.Actor) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return svc.repo.AddDismissal(ctx, id, actor.Username)
}

// MarkAsRead deletes the notification for everybody.
func (svc *Service) MarkAsRead(ctx context.Context, id string, actor core.Actor) error {
	if !actor.IsStaff() {
		return core.NewForbiddenError("permission denied")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return svc.repo.DeleteNotification(ctx, id)
}
