package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
)

const maxLimit = 500

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) error
		// QueryEntries returns at most limit entries, newest first.
		QueryEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Entry, error)
	}

	// Recorder appends to the audit trail without failing the caller.
	Recorder interface {
		Record(ctx context.Context, typ, adminName, status string, details map[string]interface{})
	}

	Service struct {
		repo         Repository
		logger       core.Logger
		defaultLimit int
	}
)

var _ Recorder = (*Service)(nil)

func NewService(repo Repository, logger core.Logger, conf *core.Config) *Service {
	limit := conf.ActivityLogLimit
	if limit <= 0 || limit > maxLimit {
		limit = 100
	}
	return &Service{repo: repo, logger: logger, defaultLimit: limit}
}

func (svc *Service) Log(ctx context.Context, typ, adminName, status string, details map[string]interface{}) (Entry, error) {
	if status == "" {
		status = StatusSuccess
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	e := Entry{
		ID:        uuid.New().String(),
		Type:      typ,
		AdminName: adminName,
		Details:   details,
		Time:      time.Now().UTC(),
		Status:    status,
	}
	if err := svc.repo.CreateEntry(ctx, e); err != nil {
		return Entry{}, errors.Wrap(err, "creating activity entry")
	}
	return e, nil
}

func (svc *Service) Record(ctx context.Context, typ, adminName, status string, details map[string]interface{}) {
	if _, err := svc.Log(ctx, typ, adminName, status, details); err != nil {
		svc.logger.Error("recording activity", err, map[string]interface{}{"type": typ})
	}
}

// Recent returns the latest entries. limit <= 0 selects the configured default; it is capped at 500.
func (svc *Service) Recent(ctx context.Context, actor core.Actor, limit int) ([]Entry, error) {
	if !actor.IsStaff() {
		return nil, core.NewForbiddenError("permission denied")
	}
	if limit <= 0 {
		limit = svc.defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	entries, err := svc.repo.QueryEntries(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying activity")
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
