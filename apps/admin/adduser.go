package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/user"
)

// addUser updates or creates an active user.User.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var usr user.User
	var err error
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: key}); err == nil {
			break
		}
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
	}
	exists := usr.ID != ""

	if !exists {
		usr = user.User{Username: uname, Email: email, Roles: user.StudentRoles}
		usr.CreatedAt = core.Now()
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = core.Now()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	cli.printf("user %q saved (id %s)\n", usr.Username, usr.ID)
	return nil
}
