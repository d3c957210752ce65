package main

import (
	"fmt"
	"os"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/cleanup"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	emailsvc "github.com/gibigubae/registry/services/email"
	logsvc "github.com/gibigubae/registry/services/logger"
	"github.com/gibigubae/registry/storage/database"
	"github.com/gibigubae/registry/storage/database/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixAdmin), conf)
	defer logger.Close()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	// set up repos & services
	tx := database.NewTxRunner(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	mailSvc := emailsvc.NewService(conf, logger)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), logger)
	actSvc := activity.NewService(sqlxrepos.NewActivityRepository(db), logger, conf)
	stdSvc := student.NewService(tx, sqlxrepos.NewStudentRepository(db), usrRepo, notifSvc, actSvc, mailSvc, logger, conf)
	usrSvc := user.NewService(tx, usrRepo, stdSvc, notifSvc, actSvc, mailSvc, logger, conf)
	schSvc := schedule.NewService(sqlxrepos.NewScheduleRepository(db), notifSvc, actSvc)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		usrRepo:    usrRepo,
		cleanupJob: cleanup.NewJob(usrSvc, schSvc, actSvc, logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
