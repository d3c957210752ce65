package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/student"
)

var studentColumns = []string{
	"id", "user_id", "full_name", "christian_name", "gender", "birth_date", "phone", "email", "department",
	"batch", "mother_church", "region", "zone", "woreda", "emergency_contact", "photo_url", "service_section",
	"status", "verified_by", "filled_by", "school_info", "created_at", "updated_at",
}

// columns that are never NULL
var notNullStudentColumns = map[string]bool{
	student.ColID:       true,
	student.ColFullName: true,
	student.ColStatus:   true,
}

type dbStudent struct {
	ID               string             `db:"id"`
	UserID           null.Int           `db:"user_id"`
	FullName         string             `db:"full_name"`
	ChristianName    null.String        `db:"christian_name"`
	Gender           null.String        `db:"gender"`
	BirthDate        null.String        `db:"birth_date"`
	Phone            null.String        `db:"phone"`
	Email            null.String        `db:"email"`
	Department       null.String        `db:"department"`
	Batch            null.String        `db:"batch"`
	MotherChurch     null.String        `db:"mother_church"`
	Region           null.String        `db:"region"`
	Zone             null.String        `db:"zone"`
	Woreda           null.String        `db:"woreda"`
	EmergencyContact null.String        `db:"emergency_contact"`
	PhotoURL         null.String        `db:"photo_url"`
	ServiceSection   null.String        `db:"service_section"`
	Status           string             `db:"status"`
	VerifiedBy       null.String        `db:"verified_by"`
	FilledBy         null.String        `db:"filled_by"`
	SchoolInfo       student.SchoolInfo `db:"school_info"`
	CreatedAt        time.Time          `db:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at"`
}

func (s dbStudent) toStudent() student.Student {
	st := student.Student{
		ID:               s.ID,
		FullName:         s.FullName,
		ChristianName:    s.ChristianName.String,
		Gender:           s.Gender.String,
		BirthDate:        s.BirthDate.String,
		Phone:            s.Phone.String,
		Email:            s.Email.String,
		Department:       s.Department.String,
		Batch:            s.Batch.String,
		MotherChurch:     s.MotherChurch.String,
		Region:           s.Region.String,
		Zone:             s.Zone.String,
		Woreda:           s.Woreda.String,
		EmergencyContact: s.EmergencyContact.String,
		PhotoURL:         s.PhotoURL.String,
		ServiceSection:   s.ServiceSection.String,
		Status:           s.Status,
		VerifiedBy:       s.VerifiedBy.String,
		FilledBy:         s.FilledBy.String,
		SchoolInfo:       s.SchoolInfo,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
	if s.UserID.Valid {
		id := s.UserID.Int
		st.UserID = &id
	}
	if st.SchoolInfo == nil {
		st.SchoolInfo = student.SchoolInfo{}
	}
	return st
}

func studentValues(s student.Student) map[string]interface{} {
	vals := map[string]interface{}{
		"id":                s.ID,
		"user_id":           null.IntFromPtr(s.UserID),
		"full_name":         s.FullName,
		"christian_name":    nullString(s.ChristianName),
		"gender":            nullString(s.Gender),
		"birth_date":        nullString(s.BirthDate),
		"phone":             nullString(s.Phone),
		"email":             nullString(s.Email),
		"department":        nullString(s.Department),
		"batch":             nullString(s.Batch),
		"mother_church":     nullString(s.MotherChurch),
		"region":            nullString(s.Region),
		"zone":              nullString(s.Zone),
		"woreda":            nullString(s.Woreda),
		"emergency_contact": nullString(s.EmergencyContact),
		"photo_url":         nullString(s.PhotoURL),
		"service_section":   nullString(s.ServiceSection),
		"status":            s.Status,
		"verified_by":       nullString(s.VerifiedBy),
		"filled_by":         nullString(s.FilledBy),
		"school_info":       s.SchoolInfo,
		"created_at":        s.CreatedAt.UTC(),
		"updated_at":        s.UpdatedAt.UTC(),
	}
	if s.SchoolInfo == nil {
		vals["school_info"] = student.SchoolInfo{}
	}
	return vals
}

type studentRepository struct {
	baseRepository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{baseRepository{exec: exec}}
}

func returningStudent() string {
	return "RETURNING " + strings.Join(studentColumns, ", ")
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	var row dbStudent
	stmt := psql.Insert("students").SetMap(studentValues(s)).Suffix(returningStudent())
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, core.NewValidationError(student.ErrStudentExists,
				core.FieldError{Field: student.ColID, Error: student.ErrStudentExists.Error()})
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return row.toStudent(), nil
}

func (repo studentRepository) getBy(ctx context.Context, exec core.DBExecutor, pred sq.Sqlizer) (student.Student, error) {
	var row dbStudent
	stmt := psql.Select(studentColumns...).From("students").Where(pred).Limit(1)
	if err := get(ctx, exec, &row, stmt); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return row.toStudent(), nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	return repo.getBy(ctx, repo.getExec(exec), sq.Expr("LOWER(id) = LOWER(?)", id))
}

func (repo studentRepository) GetStudentByUserID(ctx context.Context, userID int, exec ...core.DBExecutor) (student.Student, error) {
	return repo.getBy(ctx, repo.getExec(exec), sq.Eq{"user_id": userID})
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	stmt := psql.Select(studentColumns...).From("students").OrderBy("created_at DESC", "id")
	switch {
	case filter.Section != "" && filter.IncludeUnclaimed:
		stmt = stmt.Where(sq.Or{sectionEq("service_section", filter.Section), unclaimed("service_section")})
	case filter.Section != "":
		stmt = stmt.Where(sectionEq("service_section", filter.Section))
	case filter.UnclaimedOnly:
		stmt = stmt.Where(unclaimed("service_section"))
	}
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		stmt = stmt.Where(sq.Or{sq.ILike{"id": pattern}, sq.ILike{"full_name": pattern}, sq.ILike{"phone": pattern}})
	}

	var rows []dbStudent
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo studentRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}, exec ...core.DBExecutor) (student.Student, error) {
	set := make(map[string]interface{}, len(fields))
	for col, val := range fields {
		if s, ok := val.(string); ok && !notNullStudentColumns[col] {
			set[col] = nullString(s)
			continue
		}
		set[col] = val
	}

	var row dbStudent
	stmt := psql.Update("students").SetMap(set).Where(sq.Eq{"id": id}).Suffix(returningStudent())
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return row.toStudent(), nil
}

const upsertImportedConflict = `ON CONFLICT (id) DO UPDATE SET
	full_name = EXCLUDED.full_name,
	christian_name = EXCLUDED.christian_name,
	gender = EXCLUDED.gender,
	birth_date = EXCLUDED.birth_date,
	phone = EXCLUDED.phone,
	email = EXCLUDED.email,
	department = EXCLUDED.department,
	batch = EXCLUDED.batch,
	service_section = COALESCE(EXCLUDED.service_section, students.service_section),
	school_info = students.school_info || EXCLUDED.school_info,
	user_id = COALESCE(students.user_id, EXCLUDED.user_id),
	updated_at = EXCLUDED.updated_at`

func (repo studentRepository) UpsertImported(ctx context.Context, s student.Student, exec ...core.DBExecutor) error {
	vals := studentValues(s)
	cols := []string{
		"id", "user_id", "full_name", "christian_name", "gender", "birth_date", "phone", "email", "department",
		"batch", "service_section", "status", "verified_by", "filled_by", "school_info", "created_at", "updated_at",
	}
	args := make([]interface{}, 0, len(cols))
	for _, c := range cols {
		args = append(args, vals[c])
	}

	stmt := psql.Insert("students").Columns(cols...).Values(args...).Suffix(upsertImportedConflict)
	_, err := execAffected(ctx, repo.getExec(exec), stmt)
	return errors.Wrap(err, "upserting student")
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), psql.Delete("students").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
