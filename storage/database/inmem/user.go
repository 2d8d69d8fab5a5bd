package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	return repo.db.read(ctx, func(t *tables) error {
		for _, usr := range t.users {
			if excluded[usr.ID] {
				continue
			}
			if username != "" && usr.Username == username {
				return user.ErrUsernameExists
			}
			if email != "" && usr.Email == email {
				return user.ErrEmailExists
			}
		}
		return nil
	})
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		usr.ID = newID()
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.IDs != nil && !inSlice(filter.IDs, usr.ID) {
		return false
	}
	if filter.Search != "" && !contains(usr.Name, filter.Search) && !contains(usr.Username, filter.Search) && !contains(usr.Email, filter.Search) {
		return false
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

var userFields = map[string]comparer[user.User]{
	"name":       func(a, b user.User) int { return strings.Compare(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return strings.Compare(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"is_active":  func(a, b user.User) int { return cmpBool(a.IsActive, b.IsActive) },
	"created_at": func(a, b user.User) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b user.User) int { return cmpTime(a.UpdatedAt, b.UpdatedAt) },
	"last_login": func(a, b user.User) int { return cmpTime(a.LastLogin, b.LastLogin) },
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var users []user.User
	err := repo.db.read(ctx, func(t *tables) error {
		users = make([]user.User, 0, len(t.users))
		for _, usr := range t.users {
			if matchUser(usr, filter) {
				users = append(users, usr)
			}
		}
		return nil
	})
	orderBy(users, ordering, userFields, func(a, b user.User) bool { return a.CreatedAt.After(b.CreatedAt) })
	return users, err
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var match func(usr user.User) bool
	switch {
	case filter.ID != "":
		match = func(usr user.User) bool { return usr.ID == filter.ID }
	case filter.Username != "":
		match = func(usr user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr user.User) bool { return usr.Email == filter.Email }
	case filter.UsernameOrEmail != "":
		match = func(usr user.User) bool {
			return usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail
		}
	default:
		return user.User{}, user.ErrNotFound
	}

	var res user.User
	err := repo.db.read(ctx, func(t *tables) error {
		for _, usr := range t.users {
			if match(usr) {
				res = usr
				return nil
			}
		}
		return user.ErrNotFound
	})
	return res, err
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.users[usr.ID]
		if !ok {
			return user.ErrNotFound
		}
		usr.CreatedAt = orig.CreatedAt
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) DeleteUsers(ctx context.Context, ids ...string) error {
	return repo.db.write(ctx, func(t *tables) error {
		for _, id := range ids {
			delete(t.users, id)
		}
		return nil
	})
}
