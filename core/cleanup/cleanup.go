// Package cleanup purges abandoned signups and stale schedules on a daily schedule.
package cleanup

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
)

const (
	DefaultSchedule = "0 3 * * *"
	runTimeout      = 5 * time.Minute
)

type (
	AccountPurger interface {
		PurgeIncompleteStudents(ctx context.Context, now time.Time) (int64, error)
	}

	SchedulePurger interface {
		PurgeStale(ctx context.Context, now time.Time) (int64, error)
	}

	Report struct {
		DeletedAccounts  int64 `json:"deleted_accounts"`
		DeletedSchedules int64 `json:"deleted_schedules"`
	}

	Job struct {
		accounts  AccountPurger
		schedules SchedulePurger
		recorder  activity.Recorder
		logger    core.Logger
	}
)

func NewJob(accounts AccountPurger, schedules SchedulePurger, recorder activity.Recorder, logger core.Logger) *Job {
	return &Job{accounts: accounts, schedules: schedules, recorder: recorder, logger: logger}
}

// RunOnce runs both purges. A failing purge does not prevent the other one.
func (j *Job) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	var (
		rep  Report
		errs []error
		err  error
	)
	if rep.DeletedAccounts, err = j.accounts.PurgeIncompleteStudents(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if rep.DeletedSchedules, err = j.schedules.PurgeStale(ctx, now); err != nil {
		errs = append(errs, err)
	}

	status := activity.StatusSuccess
	if len(errs) > 0 {
		status = activity.StatusPartial
		if len(errs) == 2 {
			status = activity.StatusFailed
		}
	}
	j.recorder.Record(ctx, activity.TypeCleanup, "system", status, map[string]interface{}{
		"deleted_accounts":  rep.DeletedAccounts,
		"deleted_schedules": rep.DeletedSchedules,
	})

	if len(errs) > 0 {
		return rep, errors.Wrap(errs[0], "running cleanup")
	}
	return rep, nil
}

// Scheduler runs the Job in-process. Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
}

// Start schedules job with a standard 5-field cron spec and starts the scheduler.
func Start(job *Job, spec string, logger core.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	clog := cronLogger{logger}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		rep, err := job.RunOnce(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("cleanup failed", err)
			return
		}
		logger.Info("cleanup done", map[string]interface{}{
			"deleted_accounts":  rep.DeletedAccounts,
			"deleted_schedules": rep.DeletedSchedules,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling cleanup %q", spec)
	}
	c.Start()
	return &Scheduler{cron: c}, nil
}

// Stop stops the scheduler and waits for a running job, at most until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger reports cron's own events through core.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{err}, keysAndValues...)...)
}
