package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/user"
)

var userColumns = []string{
	"id", "username", "password_hash", "name", "role", "section", "status", "must_change_password",
	"photo_url", "student_id", "last_activity", "created_at", "updated_at",
}

type dbUser struct {
	ID                 int         `db:"id"`
	Username           string      `db:"username"`
	PasswordHash       []byte      `db:"password_hash"`
	Name               string      `db:"name"`
	Role               string      `db:"role"`
	Section            null.String `db:"section"`
	Status             string      `db:"status"`
	MustChangePassword bool        `db:"must_change_password"`
	PhotoURL           null.String `db:"photo_url"`
	StudentID          null.String `db:"student_id"`
	LastActivity       null.Time   `db:"last_activity"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func (u dbUser) toUser() user.User {
	return user.User{
		ID:                 u.ID,
		Username:           u.Username,
		Name:               u.Name,
		Role:               u.Role,
		Section:            u.Section.String,
		Status:             u.Status,
		MustChangePassword: u.MustChangePassword,
		PhotoURL:           u.PhotoURL.String,
		StudentID:          u.StudentID.String,
		PasswordHash:       u.PasswordHash,
		LastActivity:       u.LastActivity.Time,
		CreatedAt:          u.CreatedAt.UTC(),
		UpdatedAt:          u.UpdatedAt.UTC(),
	}
}

// values returns the writable columns of usr, id and last activity excluded.
func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"username":             usr.Username,
		"password_hash":        usr.PasswordHash,
		"name":                 usr.Name,
		"role":                 usr.Role,
		"section":              nullString(usr.Section),
		"status":               usr.Status,
		"must_change_password": usr.MustChangePassword,
		"photo_url":            nullString(usr.PhotoURL),
		"student_id":           nullString(usr.StudentID),
		"updated_at":           usr.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) exists(ctx context.Context, exec core.DBExecutor, stmt sq.SelectBuilder) (bool, error) {
	var found bool
	err := get(ctx, exec, &found, stmt.Prefix("SELECT EXISTS (").Suffix(")"))
	return found, err
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, studentID string, excludedID int, exec ...core.DBExecutor) error {
	db := repo.getExec(exec)

	byUsername := psql.Select("1").From("users").Where("LOWER(username) = LOWER(?)", username)
	if excludedID > 0 {
		byUsername = byUsername.Where(sq.NotEq{"id": excludedID})
	}
	found, err := repo.exists(ctx, db, byUsername)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if found {
		return user.ErrUsernameExists
	}

	if studentID == "" {
		return nil
	}
	found, err = repo.exists(ctx, db, psql.Select("1").From("students").Where("LOWER(id) = LOWER(?)", studentID))
	if err != nil {
		return errors.Wrap(err, "checking student id uniqueness")
	}
	if !found {
		byStudentID := psql.Select("1").From("users").Where("LOWER(student_id) = LOWER(?)", studentID)
		if excludedID > 0 {
			byStudentID = byStudentID.Where(sq.NotEq{"id": excludedID})
		}
		if found, err = repo.exists(ctx, db, byStudentID); err != nil {
			return errors.Wrap(err, "checking student id uniqueness")
		}
	}
	if found {
		return user.ErrStudentIDExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	vals := userValues(usr)
	vals["created_at"] = usr.CreatedAt.UTC()

	var u dbUser
	stmt := psql.Insert("users").SetMap(vals).Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if err := get(ctx, repo.getExec(exec), &u, stmt); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return u.toUser(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	stmt := psql.Select(userColumns...).From("users").Limit(1)
	switch {
	case filter.ID != 0:
		stmt = stmt.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		stmt = stmt.Where("LOWER(username) = LOWER(?)", filter.Username)
	case filter.StudentID != "":
		stmt = stmt.Where("LOWER(student_id) = LOWER(?)", filter.StudentID)
	default:
		return user.User{}, user.ErrNotFound
	}

	var u dbUser
	if err := get(ctx, repo.getExec(exec), &u, stmt); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return u.toUser(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	stmt := psql.Select(userColumns...).From("users").OrderBy("id")
	if len(filter.Roles) > 0 {
		stmt = stmt.Where(sq.Eq{"role": filter.Roles})
	}
	if filter.Section != "" {
		stmt = stmt.Where(sectionEq("section", filter.Section))
	}
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		stmt = stmt.Where(sq.Or{sq.ILike{"username": pattern}, sq.ILike{"name": pattern}})
	}

	var rows []dbUser
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, u.toUser())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	stmt := psql.Update("users").
		SetMap(userValues(usr)).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))

	var u dbUser
	if err := get(ctx, repo.getExec(exec), &u, stmt); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return u.toUser(), nil
}

func (repo userRepository) SetLastActivity(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec), psql.Update("users").Set("last_activity", at.UTC()).Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "setting last activity")
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := execAffected(ctx, repo.getExec(exec), psql.Delete("users").Where(sq.Eq{"id": ids}))
	return errors.Wrap(err, "deleting users")
}

type dbStudentLink struct {
	StudentID string `db:"student_id"`
	UserID    int    `db:"user_id"`
	FullName  string `db:"full_name"`
	Email     string `db:"email"`
	Section   string `db:"section"`
}

func (repo userRepository) GetStudentLink(ctx context.Context, studentID string, exec ...core.DBExecutor) (user.StudentLink, error) {
	stmt := psql.Select(
		"s.id AS student_id",
		"COALESCE(s.user_id, 0) AS user_id",
		"s.full_name",
		"COALESCE(s.email, '') AS email",
		"COALESCE(s.service_section, '') AS section",
	).From("students s").Where("LOWER(s.id) = LOWER(?)", studentID)

	var l dbStudentLink
	if err := get(ctx, repo.getExec(exec), &l, stmt); err != nil {
		return user.StudentLink{}, trapNoRowsErr(err, core.NewNotFoundError("student not found"), "getting student link")
	}
	return user.StudentLink(l), nil
}

// incompleteStudents selects the ids of student accounts created before t without a completed profile.
func incompleteStudents(t time.Time) sq.SelectBuilder {
	return psql.Select("u.id").From("users u").
		Where(sq.Eq{"u.role": core.RoleStudent}).
		Where(sq.Lt{"u.created_at": t.UTC()}).
		Where(`NOT EXISTS (
			SELECT 1 FROM students s
			WHERE s.user_id = u.id
				AND COALESCE(TRIM(s.full_name), '') <> ''
				AND LOWER(TRIM(s.full_name)) <> LOWER(u.username)
				AND s.filled_by IS NOT NULL
		)`)
}

func (repo userRepository) DeleteIncompleteStudents(ctx context.Context, createdBefore time.Time, exec ...core.DBExecutor) (int64, error) {
	db := repo.getExec(exec)
	doomed := incompleteStudents(createdBefore)

	// the placeholders go with their accounts
	placeholders := psql.Delete("students").
		Where(sq.Expr("filled_by IS NULL")).
		Where(doomed.Prefix("user_id IN (").Suffix(")"))
	if _, err := execAffected(ctx, db, placeholders); err != nil {
		return 0, errors.Wrap(err, "deleting placeholder students")
	}

	n, err := execAffected(ctx, db, psql.Delete("users").Where(doomed.Prefix("id IN (").Suffix(")")))
	return n, errors.Wrap(err, "deleting incomplete students")
}
