package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/notification"
)

var (
	ErrNotFound     = core.NewNotFoundError("attendance record not found")
	errStaffOnly    = core.NewForbiddenError("only admins can do this")
	errManagerOnly  = core.NewForbiddenError("only the manager can do this")
	errOtherSection = core.NewForbiddenError("cannot record attendance of another section")
)

type (
	Repository interface {
		// UpsertEntry inserts e or overwrites the counts of the existing (date, section) row.
		UpsertEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		QueryEntries(ctx context.Context, filter HistoryFilter, exec ...core.DBExecutor) ([]Entry, error)
		SectionStats(ctx context.Context, exec ...core.DBExecutor) ([]SectionStats, error)
		Summary(ctx context.Context, exec ...core.DBExecutor) (Summary, error)
		DeleteEntry(ctx context.Context, date, section string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		notifier notification.Notifier
		recorder activity.Recorder
		logger   core.Logger
	}
)

func NewService(repo Repository, notifier notification.Notifier, recorder activity.Recorder, logger core.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, recorder: recorder, logger: logger}
}

// normalize fills the total and the percentage when they were left out.
func (rec Record) normalize() (Record, error) {
	rec.Section = core.CleanString(rec.Section)
	if rec.Total == 0 {
		rec.Total = rec.Present + rec.Absent + rec.Excused
	}
	if rec.Present > rec.Total {
		return rec, core.NewValidationError(nil, core.FieldError{Field: "present", Error: "present cannot exceed total"})
	}
	if rec.Percentage == nil {
		var pct float64
		if rec.Total > 0 {
			pct = Round2(float64(rec.Present) * 100 / float64(rec.Total))
		}
		rec.Percentage = &pct
	}
	return rec, nil
}

// SaveBatch upserts every record on (date, section). Records are independent: a failing record
// does not undo the ones saved before it. One notification is sent per section saved.
func (svc *Service) SaveBatch(ctx context.Context, batch Batch, actor core.Actor) (core.BatchResult[Record], error) {
	var res core.BatchResult[Record]
	if !actor.IsStaff() {
		return res, errStaffOnly
	}
	if _, err := time.Parse(core.DateLayout, batch.Date); err != nil {
		return res, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must be a date formatted as YYYY-MM-DD"})
	}

	var (
		sections []Entry
		seen     = make(map[string]int)
	)
	for _, in := range batch.Records {
		e, err := svc.saveRecord(ctx, batch.Date, in, actor)
		if err != nil {
			res.Fail(in, err)
			continue
		}
		res.Succeed(in)
		// a repeated section overwrote its row: report the stored counts
		key := strings.ToLower(e.Section)
		if i, ok := seen[key]; ok {
			sections[i] = e
			continue
		}
		seen[key] = len(sections)
		sections = append(sections, e)
	}

	for _, e := range sections {
		svc.notifier.Notify(ctx, notification.TypeAttendance,
			fmt.Sprintf("Attendance of %s for %s recorded by %s: %d/%d present (%.2f%%)",
				e.Section, e.Date, actor.DisplayName(), e.Present, e.Total, e.Percentage),
			e.Section, actor.Username)
	}

	status := activity.StatusSuccess
	switch {
	case res.SuccessCount() == 0:
		status = activity.StatusFailed
	case res.FailedCount() > 0:
		status = activity.StatusPartial
	}
	svc.recorder.Record(ctx, activity.TypeAttendance, actor.DisplayName(), status,
		map[string]interface{}{"date": batch.Date, "success": res.SuccessCount(), "failed": res.FailedCount()})
	return res, nil
}

func (svc *Service) saveRecord(ctx context.Context, date string, in Record, actor core.Actor) (Entry, error) {
	rec, err := in.normalize()
	if err != nil {
		return Entry{}, err
	}
	if rec.Section == "" {
		return Entry{}, core.NewValidationError(nil, core.FieldError{Field: "section", Error: "this field is required"})
	}
	if actor.IsAdmin() {
		if !core.SameSection(rec.Section, actor.Section) {
			return Entry{}, errOtherSection
		}
		rec.Section = actor.Section
	}

	e, err := svc.repo.UpsertEntry(ctx, Entry{
		Date:       date,
		Section:    rec.Section,
		Present:    rec.Present,
		Absent:     rec.Absent,
		Excused:    rec.Excused,
		Total:      rec.Total,
		Percentage: *rec.Percentage,
		RecordedBy: actor.Username,
		UpdatedAt:  time.Now().UTC(),
	})
	return e, errors.Wrap(err, "saving attendance")
}

// Analytics aggregates the whole history. Admins only get the statistics of their own section.
func (svc *Service) Analytics(ctx context.Context, actor core.Actor) (Analytics, error) {
	if !actor.IsStaff() {
		return Analytics{}, errStaffOnly
	}
	stats, err := svc.repo.SectionStats(ctx)
	if err != nil {
		return Analytics{}, errors.Wrap(err, "computing section stats")
	}
	summary, err := svc.repo.Summary(ctx)
	if err != nil {
		return Analytics{}, errors.Wrap(err, "computing summary")
	}

	sections := make([]SectionStats, 0, len(stats))
	for _, st := range stats {
		if actor.IsManager() || core.SameSection(st.Section, actor.Section) {
			st.AvgPercentage = Round2(st.AvgPercentage)
			sections = append(sections, st)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Section < sections[j].Section })
	summary.OverallAverage = Round2(summary.OverallAverage)
	return Analytics{Sections: sections, Summary: summary}, nil
}

// History lists saved records, newest first.
func (svc *Service) History(ctx context.Context, filter HistoryFilter, actor core.Actor) ([]Entry, error) {
	if !actor.IsStaff() {
		return nil, errStaffOnly
	}
	for fld, d := range map[string]string{"from": filter.From, "to": filter.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(core.DateLayout, d); err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: fld, Error: "must be a date formatted as YYYY-MM-DD"})
		}
	}
	filter.Section = core.CleanString(filter.Section)
	if actor.IsAdmin() {
		if actor.Section == "" {
			return []Entry{}, nil
		}
		if filter.Section != "" && !core.SameSection(filter.Section, actor.Section) {
			return nil, errOtherSection
		}
		filter.Section = actor.Section
	}

	entries, err := svc.repo.QueryEntries(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (svc *Service) Delete(ctx context.Context, date, section string, actor core.Actor) error {
	if !actor.IsManager() {
		return errManagerOnly
	}
	if _, err := time.Parse(core.DateLayout, date); err != nil {
		return ErrNotFound
	}
	if err := svc.repo.DeleteEntry(ctx, date, core.CleanString(section)); err != nil {
		return err
	}
	svc.recorder.Record(ctx, activity.TypeAttendance, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"deleted": true, "date": date, "section": section})
	return nil
}
