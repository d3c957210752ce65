package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/attendance"
)

var attendanceColumns = []string{
	"id", "to_char(date, 'YYYY-MM-DD') AS date", "section", "present", "absent", "excused", "total",
	"percentage::float8 AS percentage", "COALESCE(recorded_by, '') AS recorded_by", "updated_at",
}

type dbAttendance struct {
	ID         int       `db:"id"`
	Date       string    `db:"date"`
	Section    string    `db:"section"`
	Present    int       `db:"present"`
	Absent     int       `db:"absent"`
	Excused    int       `db:"excused"`
	Total      int       `db:"total"`
	Percentage float64   `db:"percentage"`
	RecordedBy string    `db:"recorded_by"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (a dbAttendance) toEntry() attendance.Entry {
	e := attendance.Entry(a)
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e
}

type attendanceRepository struct {
	baseRepository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{baseRepository{exec: exec}}
}

const upsertAttendanceConflict = `ON CONFLICT (date, LOWER(section)) DO UPDATE SET
	present = EXCLUDED.present,
	absent = EXCLUDED.absent,
	excused = EXCLUDED.excused,
	total = EXCLUDED.total,
	percentage = EXCLUDED.percentage,
	recorded_by = EXCLUDED.recorded_by,
	updated_at = EXCLUDED.updated_at
RETURNING `

func (repo attendanceRepository) UpsertEntry(ctx context.Context, e attendance.Entry, exec ...core.DBExecutor) (attendance.Entry, error) {
	stmt := psql.Insert("attendance_history").
		Columns("date", "section", "present", "absent", "excused", "total", "percentage", "recorded_by", "updated_at").
		Values(e.Date, e.Section, e.Present, e.Absent, e.Excused, e.Total, e.Percentage, nullString(e.RecordedBy), e.UpdatedAt.UTC()).
		Suffix(upsertAttendanceConflict + joinColumns(attendanceColumns))

	var row dbAttendance
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return attendance.Entry{}, errors.Wrap(err, "upserting attendance")
	}
	return row.toEntry(), nil
}

func (repo attendanceRepository) QueryEntries(ctx context.Context, filter attendance.HistoryFilter, exec ...core.DBExecutor) ([]attendance.Entry, error) {
	stmt := psql.Select(attendanceColumns...).From("attendance_history").OrderBy("attendance_history.date DESC", "section")
	if filter.From != "" {
		stmt = stmt.Where("attendance_history.date >= ?::date", filter.From)
	}
	if filter.To != "" {
		stmt = stmt.Where("attendance_history.date <= ?::date", filter.To)
	}
	if filter.Section != "" {
		stmt = stmt.Where(sectionEq("section", filter.Section))
	}

	var rows []dbAttendance
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	entries := make([]attendance.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (repo attendanceRepository) SectionStats(ctx context.Context, exec ...core.DBExecutor) ([]attendance.SectionStats, error) {
	stmt := psql.Select(
		"MIN(section) AS section",
		"COUNT(*) AS sessions",
		"COALESCE(AVG(percentage), 0)::float8 AS avg_percentage",
		"COALESCE(SUM(present), 0) AS total_present",
		"COALESCE(SUM(absent), 0) AS total_absent",
		"COALESCE(SUM(excused), 0) AS total_excused",
	).From("attendance_history").GroupBy("LOWER(section)").OrderBy("section")

	var rows []struct {
		Section       string  `db:"section"`
		Sessions      int     `db:"sessions"`
		AvgPercentage float64 `db:"avg_percentage"`
		TotalPresent  int     `db:"total_present"`
		TotalAbsent   int     `db:"total_absent"`
		TotalExcused  int     `db:"total_excused"`
	}
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "computing section stats")
	}
	stats := make([]attendance.SectionStats, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, attendance.SectionStats(r))
	}
	return stats, nil
}

func (repo attendanceRepository) Summary(ctx context.Context, exec ...core.DBExecutor) (attendance.Summary, error) {
	stmt := psql.Select(
		"COUNT(DISTINCT date) AS total_sessions",
		"COUNT(*) AS total_records",
		"COALESCE(AVG(percentage), 0)::float8 AS overall_average",
	).From("attendance_history")

	var row struct {
		TotalSessions  int     `db:"total_sessions"`
		TotalRecords   int     `db:"total_records"`
		OverallAverage float64 `db:"overall_average"`
	}
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return attendance.Summary{}, errors.Wrap(err, "computing attendance summary")
	}
	return attendance.Summary(row), nil
}

func (repo attendanceRepository) DeleteEntry(ctx context.Context, date, section string, exec ...core.DBExecutor) error {
	stmt := psql.Delete("attendance_history").
		Where("date = ?::date", date).
		Where(sectionEq("section", section))
	n, err := execAffected(ctx, repo.getExec(exec), stmt)
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
