package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.t.users))
	for _, u := range repo.db.t.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) usernameTaken(username string, excludedID int) bool {
	for _, u := range repo.db.t.users {
		if u.ID != excludedID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, studentID string, excludedID int, exec ...core.DBExecutor) error {
	defer repo.db.rlock(exec)()

	if repo.usernameTaken(username, excludedID) {
		return user.ErrUsernameExists
	}
	if studentID == "" {
		return nil
	}
	for id := range repo.db.t.students {
		if strings.EqualFold(id, studentID) {
			return user.ErrStudentIDExists
		}
	}
	for _, u := range repo.db.t.users {
		if u.ID != excludedID && u.StudentID != "" && strings.EqualFold(u.StudentID, studentID) {
			return user.ErrStudentIDExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.lock(exec)()

	if repo.usernameTaken(usr.Username, 0) {
		return user.User{}, user.ErrUsernameExists
	}
	repo.db.t.userSeq++
	usr.ID = repo.db.t.userSeq
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.rlock(exec)()

	for _, usr := range repo.query() {
		switch {
		case filter.ID != 0:
			if usr.ID == filter.ID {
				return usr, nil
			}
		case filter.Username != "":
			if strings.EqualFold(usr.Username, filter.Username) {
				return usr, nil
			}
		case filter.StudentID != "":
			if strings.EqualFold(usr.StudentID, filter.StudentID) {
				return usr, nil
			}
		default:
			return user.User{}, user.ErrNotFound
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	defer repo.db.rlock(exec)()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if len(filter.Roles) > 0 && !contains(filter.Roles, usr.Role) {
			continue
		}
		if filter.Section != "" && !core.SameSection(usr.Section, filter.Section) {
			continue
		}
		if filter.Status != "" && usr.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Name), search) {
			continue
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.lock(exec)()

	orig, ok := repo.db.t.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.usernameTaken(usr.Username, usr.ID) {
		return user.User{}, user.ErrUsernameExists
	}
	usr.CreatedAt = orig.CreatedAt
	usr.LastActivity = orig.LastActivity
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) SetLastActivity(_ context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	if usr, ok := repo.db.t.users[id]; ok {
		usr.LastActivity = at.UTC()
		repo.db.t.users[id] = usr
	}
	return nil
}

// deleteUsers removes the users and unlinks their student records. The caller holds the lock.
func (repo *userRepository) deleteUsers(ids []int) {
	for _, id := range ids {
		delete(repo.db.t.users, id)
		for sid, s := range repo.db.t.students {
			if s.UserID != nil && *s.UserID == id {
				s.UserID = nil
				repo.db.t.students[sid] = s
			}
		}
	}
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []int, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()
	repo.deleteUsers(ids)
	return nil
}

func (repo *userRepository) GetStudentLink(_ context.Context, studentID string, exec ...core.DBExecutor) (user.StudentLink, error) {
	defer repo.db.rlock(exec)()

	for id, s := range repo.db.t.students {
		if !strings.EqualFold(id, studentID) {
			continue
		}
		link := user.StudentLink{
			StudentID: s.ID,
			FullName:  s.FullName,
			Email:     s.Email,
			Section:   s.ServiceSection,
		}
		if s.UserID != nil {
			link.UserID = *s.UserID
		}
		return link, nil
	}
	return user.StudentLink{}, core.NewNotFoundError("student not found")
}

func (repo *userRepository) DeleteIncompleteStudents(_ context.Context, createdBefore time.Time, exec ...core.DBExecutor) (int64, error) {
	defer repo.db.lock(exec)()

	var doomed []int
	for _, usr := range repo.db.t.users {
		if usr.Role != core.RoleStudent || !usr.CreatedAt.Before(createdBefore) {
			continue
		}
		complete := false
		for _, s := range repo.db.t.students {
			if s.UserID == nil || *s.UserID != usr.ID {
				continue
			}
			name := core.CleanString(s.FullName)
			if name != "" && !strings.EqualFold(name, usr.Username) && s.FilledBy != "" {
				complete = true
			}
		}
		if !complete {
			doomed = append(doomed, usr.ID)
		}
	}

	for _, id := range doomed {
		for sid, s := range repo.db.t.students {
			if s.UserID != nil && *s.UserID == id && s.FilledBy == "" {
				delete(repo.db.t.students, sid)
			}
		}
	}
	repo.deleteUsers(doomed)
	return int64(len(doomed)), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
