package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
)

type (
	ServerDeps struct {
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
		DisableReqLogs  bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(authTokenHeader)
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.Server.FrontendOrigin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, tokenHeader},
	}))
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.GET("/", home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	b := binder{validate: s.deps.Validate}

	registerAuthAPI(g, jwt, b, s.deps.UserSvc, s.deps.StudentSvc, conf)
	registerStudentAPI(g, jwt, optionalJWT(conf), b, s.deps.StudentSvc)
	registerAttendanceAPI(g, jwt, b, s.deps.AttendanceSvc)
	registerActivityAPI(g, jwt, b, s.deps.NotificationSvc, s.deps.ActivitySvc)
	registerUserAPI(g, jwt, b, s.deps.UserSvc)
	registerContentAPI(g, jwt, b, s.deps.ScheduleSvc, s.deps.GallerySvc)
}

// Start blocks until the server stops. Errors other than a graceful shutdown are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the application to stop gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Gibi Gubae API!")
}
