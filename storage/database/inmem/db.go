// Package inmemdb keeps every table in memory. It backs the tests and the API when no database is configured.
package inmemdb

import (
	"context"
	"sync"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
)

// attendanceKey is unique per date and case-insensitive section.
type attendanceKey struct {
	date    string
	section string
}

func newAttendanceKey(date, section string) attendanceKey {
	return attendanceKey{date: date, section: core.CleanString(section, true)}
}

type tables struct {
	users         map[int]user.User
	userSeq       int
	students      map[string]student.Student // by stored id
	attendance    map[attendanceKey]attendance.Entry
	attendanceSeq int
	notifications []notification.Notification // insertion order
	activity      []activity.Entry            // insertion order
	schedules     map[int]schedule.Schedule
	scheduleSeq   int
	gallery       []gallery.Item // insertion order
}

func (t *tables) clone() *tables {
	c := *t
	c.users = make(map[int]user.User, len(t.users))
	for k, v := range t.users {
		c.users[k] = v
	}
	c.students = make(map[string]student.Student, len(t.students))
	for k, v := range t.students {
		c.students[k] = v
	}
	c.attendance = make(map[attendanceKey]attendance.Entry, len(t.attendance))
	for k, v := range t.attendance {
		c.attendance[k] = v
	}
	c.schedules = make(map[int]schedule.Schedule, len(t.schedules))
	for k, v := range t.schedules {
		c.schedules[k] = v
	}
	c.notifications = append([]notification.Notification(nil), t.notifications...)
	c.activity = append([]activity.Entry(nil), t.activity...)
	c.gallery = append([]gallery.Item(nil), t.gallery...)
	return &c
}

type DB struct {
	mu sync.RWMutex
	t  *tables
}

func Open() *DB {
	return &DB{t: &tables{
		users:      make(map[int]user.User),
		students:   make(map[string]student.Student),
		attendance: make(map[attendanceKey]attendance.Entry),
		schedules:  make(map[int]schedule.Schedule),
	}}
}

var _ core.TxRunner = (*DB)(nil)

// txExecutor is handed to repositories inside RunInTx, which already holds the write lock.
// Only its identity matters: the embedded DBExecutor is never called.
type txExecutor struct {
	core.DBExecutor
	db *DB
}

func (db *DB) inTx(exec []core.DBExecutor) bool {
	for _, e := range exec {
		if tx, ok := e.(*txExecutor); ok && tx.db == db {
			return true
		}
	}
	return false
}

func (db *DB) lock(exec []core.DBExecutor) (unlock func()) {
	if db.inTx(exec) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) rlock(exec []core.DBExecutor) (unlock func()) {
	if db.inTx(exec) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

// RunInTx holds the write lock while fn runs and restores every table when fn fails.
// Repository calls inside fn must receive its executor; calls without it block until fn returns.
func (db *DB) RunInTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	if err := fn(&txExecutor{db: db}); err != nil {
		db.t = snapshot
		return err
	}
	return nil
}
