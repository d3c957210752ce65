package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/user"
)

var (
	errInvalidRole     = errors.New("role must be admin or manager")
	errSectionRequired = errors.New("an admin needs a section")
)

// addUser updates or creates a staff user.User
func (cli *commandLine) addUser(uname, name, role, section, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname)
	section = core.CleanString(section)
	role = core.CleanString(role, true /* lower */)

	switch role {
	case core.RoleManager:
	case core.RoleAdmin:
		if section == "" {
			return errSectionRequired
		}
	default:
		return errInvalidRole
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	isNew := errors.Cause(err) == user.ErrNotFound
	if err != nil && !isNew {
		return err
	}
	if isNew {
		usr = user.User{Username: uname, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	usr.Role = role
	usr.Section = section
	usr.Status = user.StatusActive
	usr.MustChangePassword = false
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if isNew {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
