package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/schedule"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	"github.com/gibigubae/registry/storage/database"
	sqlxrepos "github.com/gibigubae/registry/storage/database/sqlx"
	"github.com/gibigubae/registry/testutil"
)

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conf := testutil.NewConfig()
	conf.Database.URL = url
	conf.Database.Engine = "postgres"

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB))
	_, err = db.Exec(`TRUNCATE users, students, attendance_history, notifications, activity_log, gallery, schedules RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func TestUserAndStudentRepositories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users, students := sqlxrepos.NewUserRepository(db), sqlxrepos.NewStudentRepository(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	hero, err := users.CreateUser(ctx, user.User{
		Username: "Hero", Role: core.RoleStudent, Status: user.StatusActive, StudentID: "Hero", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NotZero(t, hero.ID)

	_, err = users.CreateUser(ctx, user.User{Username: "hero", Role: core.RoleStudent, CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, user.ErrUsernameExists, err)
	assert.Equal(t, user.ErrUsernameExists, users.CheckUniqueness(ctx, "HERO", "", 0))

	got, err := users.GetUser(ctx, user.GetFilter{Username: "HERO"})
	require.NoError(t, err)
	assert.Equal(t, hero.ID, got.ID)

	_, err = students.CreateStudent(ctx, student.Student{
		ID: "ETS1", UserID: &hero.ID, FullName: "Abebe", ServiceSection: "Choir", Status: student.StatusPending,
		FilledBy: "Hero", SchoolInfo: student.SchoolInfo{"gpa": 3.5}, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = students.CreateStudent(ctx, student.Student{ID: "ets1", Status: student.StatusPending, CreatedAt: now, UpdatedAt: now})
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, user.ErrStudentIDExists, users.CheckUniqueness(ctx, "other", "ets1", 0))

	s, err := students.GetStudent(ctx, "ets1")
	require.NoError(t, err)
	assert.Equal(t, "ETS1", s.ID)
	assert.Equal(t, 3.5, s.SchoolInfo["gpa"])

	s, err = students.UpdateFields(ctx, "ETS1", map[string]interface{}{
		student.ColStatus:     student.StatusStudent,
		student.ColSchoolInfo: student.SchoolInfo{"gpa": 3.7},
		student.ColUpdatedAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, student.StatusStudent, s.Status)
	assert.Equal(t, 3.7, s.SchoolInfo["gpa"])

	link, err := users.GetStudentLink(ctx, "ets1")
	require.NoError(t, err)
	assert.Equal(t, user.StudentLink{StudentID: "ETS1", UserID: hero.ID, FullName: "Abebe", Section: "Choir"}, link)

	list, err := students.QueryStudents(ctx, student.QueryFilter{Section: " choir ", Search: "abe"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, users.DeleteUsersByID(ctx, []int{hero.ID}))
	s, err = students.GetStudent(ctx, "ETS1")
	require.NoError(t, err)
	assert.Nil(t, s.UserID)
}

func TestUserRepository_DeleteIncompleteStudents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users, students := sqlxrepos.NewUserRepository(db), sqlxrepos.NewStudentRepository(db)
	old := time.Now().UTC().Add(-48 * time.Hour)

	create := func(uname string, s *student.Student) int {
		usr, err := users.CreateUser(ctx, user.User{Username: uname, Role: core.RoleStudent, Status: user.StatusActive, CreatedAt: old, UpdatedAt: old})
		require.NoError(t, err)
		if s != nil {
			s.ID, s.UserID, s.Status, s.CreatedAt, s.UpdatedAt = uname, &usr.ID, student.StatusPending, old, old
			_, err = students.CreateStudent(ctx, *s)
			require.NoError(t, err)
		}
		return usr.ID
	}
	create("placeholder", &student.Student{FullName: "placeholder"})
	create("norecord", nil)
	complete := create("complete", &student.Student{FullName: "Abebe", FilledBy: "complete"})

	n, err := users.DeleteIncompleteStudents(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = users.GetUser(ctx, user.GetFilter{ID: complete})
	assert.NoError(t, err)
	_, err = students.GetStudent(ctx, "placeholder")
	assert.Equal(t, student.ErrNotFound, err)
}

func TestAttendanceRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewAttendanceRepository(db)

	first, err := repo.UpsertEntry(ctx, attendance.Entry{Date: "2024-03-10", Section: "Choir", Present: 1, Total: 2, Percentage: 50})
	require.NoError(t, err)
	second, err := repo.UpsertEntry(ctx, attendance.Entry{Date: "2024-03-10", Section: "choir", Present: 2, Total: 2, Percentage: 100})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Choir", second.Section)
	_, err = repo.UpsertEntry(ctx, attendance.Entry{Date: "2024-03-17", Section: "CHOIR", Present: 1, Total: 2, Percentage: 50})
	require.NoError(t, err)

	stats, err := repo.SectionStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Sessions)
	assert.Equal(t, 75.0, stats[0].AvgPercentage)

	sum, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{TotalSessions: 2, TotalRecords: 2, OverallAverage: 75}, sum)

	entries, err := repo.QueryEntries(ctx, attendance.HistoryFilter{From: "2024-03-11", Section: "CHOIR"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03-17", entries[0].Date)

	assert.NoError(t, repo.DeleteEntry(ctx, "2024-03-10", "choir"))
	assert.Equal(t, attendance.ErrNotFound, repo.DeleteEntry(ctx, "2024-03-10", "choir"))
}

func TestNotificationRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewNotificationRepository(db)
	now := time.Now().UTC()

	all, err := repo.CreateNotification(ctx, notification.Notification{
		ID: "4b8e1d1e-8f6c-4c59-9d1b-0f4c9a6c0a01", Type: notification.TypeGeneral, Message: "all", CreatedAt: now,
	})
	require.NoError(t, err)
	choir, err := repo.CreateNotification(ctx, notification.Notification{
		ID: "4b8e1d1e-8f6c-4c59-9d1b-0f4c9a6c0a02", Type: notification.TypeGeneral, Message: "choir",
		TargetSection: "Choir", CreatedAt: now.Add(time.Second),
	})
	require.NoError(t, err)

	require.NoError(t, repo.AddDismissal(ctx, choir.ID, "choiradmin"))
	require.NoError(t, repo.AddDismissal(ctx, choir.ID, "choiradmin"))
	ns, err := repo.QueryNotifications(ctx, notification.QueryFilter{AllSections: true})
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, choir.ID, ns[0].ID)
	assert.Equal(t, []string{"choiradmin"}, ns[0].DismissedBy)

	ns, err = repo.QueryNotifications(ctx, notification.QueryFilter{Section: "choir", ExcludeDismissedBy: "choiradmin"})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, all.ID, ns[0].ID)

	require.NoError(t, repo.DeleteNotification(ctx, all.ID))
	assert.Equal(t, notification.ErrNotFound, repo.DeleteNotification(ctx, all.ID))
}

func TestScheduleRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewScheduleRepository(db)

	_, err := repo.GetCurrent(ctx)
	assert.Equal(t, schedule.ErrNotFound, err)

	now := time.Now().UTC()
	sch, err := repo.SaveSchedule(ctx, schedule.Schedule{Items: schedule.Items{{ID: "a", Activity: "Prayer"}}, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	sch.Items = append(sch.Items, schedule.Item{ID: "b", Activity: "Choir"})
	_, err = repo.SaveSchedule(ctx, sch)
	require.NoError(t, err)

	got, err := repo.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, sch.ID, got.ID)
	assert.Len(t, got.Items, 2)

	n, err := repo.DeleteCreatedBefore(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
