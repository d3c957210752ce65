// Package testutil wires the services over the in-memory database for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/cleanup"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	appfs "github.com/gibigubae/registry/fs"
	emailsvc "github.com/gibigubae/registry/services/email"
	inmemdb "github.com/gibigubae/registry/storage/database/inmem"
)

const DefaultPassword = "Gubae@1234"

func NewConfig() *core.Config {
	conf := &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Gibi Gubae",
		SecretKey:        "test-secret",
		DefaultPassword:  DefaultPassword,
		ManagerUsername:  "manager",
		ManagerPassword:  "Manager@1234",
		ManagerName:      "Manager",
		DefaultFromEmail: "Gibi Gubae <noreply@test.local>",
		CleanupSchedule:  cleanup.DefaultSchedule,
		GalleryMaxBytes:  1 << 20,
		ActivityLogLimit: 100,
	}
	conf.Server.FrontendOrigin = "http://localhost:3000"
	conf.Server.JWTExpirationDelta = 24 * time.Hour
	conf.Server.BodyLimit = "10M"
	return conf
}

// Logger drops everything.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}

// App holds every service wired over a fresh in-memory database.
type App struct {
	Conf   *core.Config
	DB     *inmemdb.DB
	Logger core.Logger
	Mail   *emailsvc.ConsoleServiceMock

	UserRepo         user.Repository
	StudentRepo      student.Repository
	NotificationRepo notification.Repository
	ScheduleRepo     schedule.Repository

	Users         *user.Service
	Students      *student.Service
	Attendance    *attendance.Service
	Notifications *notification.Service
	Activity      *activity.Service
	Schedules     *schedule.Service
	Gallery       *gallery.Service
	Cleanup       *cleanup.Job
}

func NewApp(t *testing.T) *App {
	t.Helper()
	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}

	conf := NewConfig()
	logger := Logger{}
	db := inmemdb.Open()
	app := &App{
		Conf:             conf,
		DB:               db,
		Logger:           logger,
		Mail:             emailsvc.NewConsoleServiceMock(conf, logger),
		UserRepo:         inmemdb.NewUserRepository(db),
		StudentRepo:      inmemdb.NewStudentRepository(db),
		NotificationRepo: inmemdb.NewNotificationRepository(db),
		ScheduleRepo:     inmemdb.NewScheduleRepository(db),
	}

	app.Notifications = notification.NewService(app.NotificationRepo, logger)
	app.Activity = activity.NewService(inmemdb.NewActivityRepository(db), logger, conf)
	app.Students = student.NewService(db, app.StudentRepo, app.UserRepo, app.Notifications, app.Activity, app.Mail, logger, conf)
	app.Users = user.NewService(db, app.UserRepo, app.Students, app.Notifications, app.Activity, app.Mail, logger, conf)
	app.Attendance = attendance.NewService(inmemdb.NewAttendanceRepository(db), app.Notifications, app.Activity, logger)
	app.Schedules = schedule.NewService(app.ScheduleRepo, app.Notifications, app.Activity)
	app.Gallery = gallery.NewService(inmemdb.NewGalleryRepository(db), app.Activity, conf)
	app.Cleanup = cleanup.NewJob(app.Users, app.Schedules, app.Activity, logger)
	return app
}

// CreateUser stores a user directly, bypassing the service rules.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, pwd, role, section string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Role:      role,
		Section:   section,
		Status:    user.StatusActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if role == core.RoleStudent {
		usr.StudentID = user.StudentIDFromUsername(uname)
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent stores a student record directly. Status defaults to Pending.
func CreateStudent(t *testing.T, repo student.Repository, s student.Student) student.Student {
	t.Helper()
	now := time.Now().UTC()
	if s.Status == "" {
		s.Status = student.StatusPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	s, err := repo.CreateStudent(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}
