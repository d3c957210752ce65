package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

// key returns the stored spelling of id. The caller holds the lock.
func (repo *studentRepository) key(id string) (string, bool) {
	if _, ok := repo.db.t.students[id]; ok {
		return id, true
	}
	for k := range repo.db.t.students {
		if strings.EqualFold(k, id) {
			return k, true
		}
	}
	return "", false
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.key(s.ID); ok {
		return student.Student{}, core.NewValidationError(student.ErrStudentExists,
			core.FieldError{Field: student.ColID, Error: student.ErrStudentExists.Error()})
	}
	if s.SchoolInfo == nil {
		s.SchoolInfo = student.SchoolInfo{}
	}
	repo.db.t.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	defer repo.db.rlock(exec)()

	if k, ok := repo.key(id); ok {
		return repo.db.t.students[k], nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentByUserID(_ context.Context, userID int, exec ...core.DBExecutor) (student.Student, error) {
	defer repo.db.rlock(exec)()

	for _, s := range repo.db.t.students {
		if s.UserID != nil && *s.UserID == userID {
			return s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	defer repo.db.rlock(exec)()

	search := strings.ToLower(filter.Search)
	students := make([]student.Student, 0)
	for _, s := range repo.db.t.students {
		isUnclaimed := core.CleanString(s.ServiceSection) == ""
		switch {
		case filter.Section != "" && filter.IncludeUnclaimed:
			if !isUnclaimed && !core.SameSection(s.ServiceSection, filter.Section) {
				continue
			}
		case filter.Section != "":
			if !core.SameSection(s.ServiceSection, filter.Section) {
				continue
			}
		case filter.UnclaimedOnly:
			if !isUnclaimed {
				continue
			}
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.ID), search) &&
			!strings.Contains(strings.ToLower(s.FullName), search) && !strings.Contains(strings.ToLower(s.Phone), search) {
			continue
		}
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool {
		if !students[i].CreatedAt.Equal(students[j].CreatedAt) {
			return students[i].CreatedAt.After(students[j].CreatedAt)
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *studentRepository) UpdateFields(_ context.Context, id string, fields map[string]interface{}, exec ...core.DBExecutor) (student.Student, error) {
	defer repo.db.lock(exec)()

	k, ok := repo.key(id)
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	s := repo.db.t.students[k]
	s.ApplyFields(fields)
	repo.db.t.students[k] = s
	return s, nil
}

func (repo *studentRepository) UpsertImported(_ context.Context, s student.Student, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	if s.SchoolInfo == nil {
		s.SchoolInfo = student.SchoolInfo{}
	}
	existing, ok := repo.db.t.students[s.ID]
	if !ok {
		repo.db.t.students[s.ID] = s
		return nil
	}

	existing.FullName = s.FullName
	existing.ChristianName = s.ChristianName
	existing.Gender = s.Gender
	existing.BirthDate = s.BirthDate
	existing.Phone = s.Phone
	existing.Email = s.Email
	existing.Department = s.Department
	existing.Batch = s.Batch
	if s.ServiceSection != "" {
		existing.ServiceSection = s.ServiceSection
	}
	info := make(student.SchoolInfo, len(existing.SchoolInfo)+len(s.SchoolInfo))
	for k, v := range existing.SchoolInfo {
		info[k] = v
	}
	for k, v := range s.SchoolInfo {
		info[k] = v
	}
	existing.SchoolInfo = info
	if existing.UserID == nil {
		existing.UserID = s.UserID
	}
	existing.UpdatedAt = s.UpdatedAt
	repo.db.t.students[s.ID] = existing
	return nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	k, ok := repo.key(id)
	if !ok {
		return student.ErrNotFound
	}
	delete(repo.db.t.students, k)
	return nil
}
