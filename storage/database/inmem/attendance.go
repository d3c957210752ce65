package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertEntry(_ context.Context, e attendance.Entry, exec ...core.DBExecutor) (attendance.Entry, error) {
	defer repo.db.lock(exec)()

	key := newAttendanceKey(e.Date, e.Section)
	if existing, ok := repo.db.t.attendance[key]; ok {
		e.ID = existing.ID
		e.Section = existing.Section
	} else {
		repo.db.t.attendanceSeq++
		e.ID = repo.db.t.attendanceSeq
	}
	repo.db.t.attendance[key] = e
	return e, nil
}

func (repo *attendanceRepository) QueryEntries(_ context.Context, filter attendance.HistoryFilter, exec ...core.DBExecutor) ([]attendance.Entry, error) {
	defer repo.db.rlock(exec)()

	entries := make([]attendance.Entry, 0)
	for _, e := range repo.db.t.attendance {
		if filter.From != "" && e.Date < filter.From {
			continue
		}
		if filter.To != "" && e.Date > filter.To {
			continue
		}
		if filter.Section != "" && !core.SameSection(e.Section, filter.Section) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		return entries[i].Section < entries[j].Section
	})
	return entries, nil
}

func (repo *attendanceRepository) SectionStats(_ context.Context, exec ...core.DBExecutor) ([]attendance.SectionStats, error) {
	defer repo.db.rlock(exec)()

	bySection := make(map[string]*attendance.SectionStats)
	sums := make(map[string]float64)
	for _, e := range repo.db.t.attendance {
		key := strings.ToLower(e.Section)
		st, ok := bySection[key]
		if !ok {
			st = &attendance.SectionStats{Section: e.Section}
			bySection[key] = st
		} else if e.Section < st.Section {
			st.Section = e.Section
		}
		st.Sessions++
		st.TotalPresent += e.Present
		st.TotalAbsent += e.Absent
		st.TotalExcused += e.Excused
		sums[key] += e.Percentage
	}

	stats := make([]attendance.SectionStats, 0, len(bySection))
	for key, st := range bySection {
		st.AvgPercentage = sums[key] / float64(st.Sessions)
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Section < stats[j].Section })
	return stats, nil
}

func (repo *attendanceRepository) Summary(_ context.Context, exec ...core.DBExecutor) (attendance.Summary, error) {
	defer repo.db.rlock(exec)()

	var (
		sum   attendance.Summary
		total float64
		dates = make(map[string]bool)
	)
	for _, e := range repo.db.t.attendance {
		dates[e.Date] = true
		total += e.Percentage
		sum.TotalRecords++
	}
	sum.TotalSessions = len(dates)
	if sum.TotalRecords > 0 {
		sum.OverallAverage = total / float64(sum.TotalRecords)
	}
	return sum, nil
}

func (repo *attendanceRepository) DeleteEntry(_ context.Context, date, section string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	key := newAttendanceKey(date, section)
	if _, ok := repo.db.t.attendance[key]; !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.t.attendance, key)
	return nil
}
