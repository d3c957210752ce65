package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/gibigubae/registry/apps/api/echo"
	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/cleanup"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	emailsvc "github.com/gibigubae/registry/services/email"
	logsvc "github.com/gibigubae/registry/services/logger"
	"github.com/gibigubae/registry/storage/database"
	inmemdb "github.com/gibigubae/registry/storage/database/inmem"
	sqlxrepos "github.com/gibigubae/registry/storage/database/sqlx"
)

// EngineMemory keeps every table in process memory instead of postgres.
const EngineMemory = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	CronLoggerParam struct {
		dig.In
		Logger core.Logger `name:"cronLogger"`
	}

	// DBCloser releases the database connections.
	DBCloser func() error

	Repositories struct {
		dig.Out
		Closer        DBCloser
		Tx            core.TxRunner
		Users         user.Repository
		Students      student.Repository
		Attendance    attendance.Repository
		Notifications notification.Repository
		Activity      activity.Repository
		Schedules     schedule.Repository
		Gallery       gallery.Repository
	}

	serverParams struct {
		dig.In
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         *user.Service
		StudentSvc      *student.Service
		AttendanceSvc   *attendance.Service
		NotificationSvc *notification.Service
		ActivitySvc     *activity.Service
		ScheduleSvc     *schedule.Service
		GallerySvc      *gallery.Service
		Validate        *validator.Validate
		Translator      ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixAPI), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixDB), conf)
}

func newCronLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixCron), conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == EngineMemory {
		loggerParam.Logger.Warn("using the in-memory database: nothing will be persisted")
		db := inmemdb.Open()
		return Repositories{
			Closer:        func() error { return nil },
			Tx:            db,
			Users:         inmemdb.NewUserRepository(db),
			Students:      inmemdb.NewStudentRepository(db),
			Attendance:    inmemdb.NewAttendanceRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Activity:      inmemdb.NewActivityRepository(db),
			Schedules:     inmemdb.NewScheduleRepository(db),
			Gallery:       inmemdb.NewGalleryRepository(db),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return Repositories{
		Closer:        db.Close,
		Tx:            database.NewTxRunner(db),
		Users:         sqlxrepos.NewUserRepository(db),
		Students:      sqlxrepos.NewStudentRepository(db),
		Attendance:    sqlxrepos.NewAttendanceRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Activity:      sqlxrepos.NewActivityRepository(db),
		Schedules:     sqlxrepos.NewScheduleRepository(db),
		Gallery:       sqlxrepos.NewGalleryRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewService(conf, logger)
}

func asNotifier(svc *notification.Service) notification.Notifier { return svc }
func asRecorder(svc *activity.Service) activity.Recorder { return svc }
func asPlaceholderCreator(svc *student.Service) user.PlaceholderCreator {
	return svc
}

func newCleanupJob(users *user.Service, schedules *schedule.Service, recorder activity.Recorder, loggerParam CronLoggerParam) *cleanup.Job {
	return cleanup.NewJob(users, schedules, recorder, loggerParam.Logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            p.Conf,
		Logger:          p.Logger,
		UserSvc:         p.UserSvc,
		StudentSvc:      p.StudentSvc,
		AttendanceSvc:   p.AttendanceSvc,
		NotificationSvc: p.NotificationSvc,
		ActivitySvc:     p.ActivitySvc,
		ScheduleSvc:     p.ScheduleSvc,
		GallerySvc:      p.GallerySvc,
		Validate:        p.Validate,
		Translator:      p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newCronLogger, dig.Name("cronLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewValidator))

	must(c.Provide(notification.NewService))
	must(c.Provide(asNotifier))
	must(c.Provide(activity.NewService))
	must(c.Provide(asRecorder))
	must(c.Provide(student.NewService))
	must(c.Provide(asPlaceholderCreator))
	must(c.Provide(user.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(schedule.NewService))
	must(c.Provide(gallery.NewService))
	must(c.Provide(newCleanupJob))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
