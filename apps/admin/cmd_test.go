package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/user"
	"github.com/gibigubae/registry/testutil"
)

var app *testutil.App

func setup(t *testing.T) *commandLine {
	app = testutil.NewApp(t)

	// start CLI
	return &commandLine{
		usrRepo:    app.UserRepo,
		cleanupJob: app.Cleanup,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if pwd == "" {
			return nil, nil
		}
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "attendance_notes", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, app.UserRepo, "Old Name", "kidus", "Kidus@1234", core.RoleAdmin, "Choir")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"adduser", "-username", "abel"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-username", "abel", "-role", "student"}, extra: extra{pwd: "Abel@1234"}, wantErr: errInvalidRole},
		{name: "admin without section", args: []string{"adduser", "-username", "abel", "-role", "admin"}, extra: extra{pwd: "Abel@1234"}, wantErr: errSectionRequired},
		{name: "new admin", args: []string{"adduser", "-username", "abel", "-name", "Abel T", "-section", "Choir"}, extra: extra{pwd: "Abel@1234"}},
		{name: "new manager", args: []string{"adduser", "-username", "boss", "-role", "manager"}, extra: extra{pwd: "Boss@1234"}},
		{name: "update existing", args: []string{"adduser", "-username", "KIDUS", "-section", "Education"}, extra: extra{pwd: "Kidus@5678"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		pwd := ""
		if ex, ok := tt.extra.(extra); ok {
			pwd = ex.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
		})
	}

	abel, err := app.UserRepo.GetUser(ctx, user.GetFilter{Username: "abel"})
	require.NoError(t, err)
	assert.Equal(t, "Abel T", abel.Name)
	assert.Equal(t, core.RoleAdmin, abel.Role)
	assert.Equal(t, "Choir", abel.Section)
	assert.NoError(t, abel.CheckPassword("Abel@1234"))

	boss, err := app.UserRepo.GetUser(ctx, user.GetFilter{Username: "boss"})
	require.NoError(t, err)
	assert.Equal(t, core.RoleManager, boss.Role)

	kidus, err := app.UserRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Old Name", kidus.Name)
	assert.Equal(t, "Education", kidus.Section)
	assert.NoError(t, kidus.CheckPassword("Kidus@5678"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, app.UserRepo, "User", "awe", "Awe@12345", core.RoleStudent, "")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with other case", args: []string{"resetpassword", "-username", "AWE"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		pwd := ""
		if ex, ok := tt.extra.(extra); ok {
			pwd = ex.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := app.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_cleanup(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := testutil.CreateUser(t, app.UserRepo, "", "stale", "Stale@1234", core.RoleStudent, "", now.Add(-48*time.Hour))
	fresh := testutil.CreateUser(t, app.UserRepo, "", "fresh", "Fresh@1234", core.RoleStudent, "")
	_, err := app.ScheduleRepo.SaveSchedule(ctx, schedule.Schedule{CreatedAt: now.Add(-8 * 24 * time.Hour), UpdatedAt: now})
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "cleanup"}))

	_, err = app.UserRepo.GetUser(ctx, user.GetFilter{ID: stale.ID})
	assert.Equal(t, user.ErrNotFound, err)
	_, err = app.UserRepo.GetUser(ctx, user.GetFilter{ID: fresh.ID})
	assert.NoError(t, err)
	_, err = app.ScheduleRepo.GetCurrent(ctx)
	assert.Equal(t, schedule.ErrNotFound, err)
}
