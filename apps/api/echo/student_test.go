package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	"github.com/gibigubae/registry/testutil"
)

func studentIDs(t *testing.T, body []byte) []string {
	var students []student.Student
	require.NoError(t, json.Unmarshal(body, &students), string(body))
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return ids
}

func Test_studentApi_register(t *testing.T) {
	setup(t)
	ctx := context.Background()

	t.Run("anonymous registration", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/students/register", "",
			[]byte(`{"studentId": "ETS0001/12", "fullName": "Sara Tesfaye", "birthYear": 1999, "phone": "0911000000"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, "ETS0001/12", s.ID)
		assert.Equal(t, "1999-01-01", s.BirthDate)
		assert.Equal(t, "self", s.FilledBy)
		assert.Equal(t, student.StatusPending, s.Status)
		assert.Nil(t, s.UserID)
	})

	tests := []httpTest{
		{
			name: "anonymous duplicate, other case", body: []byte(`{"id": "ets0001/12", "fullName": "Someone Else"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"id": "a student with this id is already registered"}`),
		},
		{
			name: "unknown fields", body: []byte(`{"id": "ETS0002/12", "fullName": "X", "shoeSize": 42, "color": "red"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"color": "unknown field", "shoeSize": "unknown field"}`),
		},
		{
			name: "invalid birth date", body: []byte(`{"id": "ETS0003/12", "fullName": "X", "birthDate": "20/01/2001"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"birth_date": "\"20/01/2001\" is neither a year nor a YYYY-MM-DD date"}`),
		},
		{
			name: "missing id", body: []byte(`{"fullName": "X"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"id": "this field is required"}`),
		},
		{
			name: "missing full name", body: []byte(`{"id": "ETS0004/12"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"full_name": "this field is required"}`),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/students/register"
	}
	runTests(t, tests)

	t.Run("student fills their placeholder", func(t *testing.T) {
		usr, err := app.Users.Signup(ctx, user.Signup{Username: "abebe", Password: "secret1"})
		require.NoError(t, err)

		rec := do(http.MethodPost, "/api/students/register", getToken(t, usr),
			[]byte(`{"fullName": "Abebe Kebede", "birthYear": "2001", "schoolInfo": {"GPA": 3.5}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s student.Student
		unmarshal(t, rec, &s)
		assert.Equal(t, "abebe", s.ID)
		assert.Equal(t, "Abebe Kebede", s.FullName)
		assert.Equal(t, "2001-01-01", s.BirthDate)
		assert.Equal(t, "abebe", s.FilledBy)
		assert.Equal(t, 3.5, s.SchoolInfo["gpa"])
		require.NotNil(t, s.UserID)
		assert.Equal(t, usr.ID, *s.UserID)

		ns, err := app.NotificationRepo.QueryNotifications(ctx, notification.QueryFilter{AllSections: true})
		require.NoError(t, err)
		require.NotEmpty(t, ns)
		assert.Equal(t, notification.TypeRegistration, ns[0].Type)
	})

	t.Run("student cannot register someone else", func(t *testing.T) {
		usr, err := app.Users.GetByUsername(ctx, "abebe")
		require.NoError(t, err)
		rec := do(http.MethodPost, "/api/students/register", getToken(t, usr), []byte(`{"id": "ETS0001/12", "fullName": "X"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error": "students can only register themselves"}`, rec.Body.String())
	})

	t.Run("student cannot change an assigned section", func(t *testing.T) {
		_, err := app.StudentRepo.UpdateFields(ctx, "abebe", map[string]interface{}{student.ColServiceSection: "Choir"})
		require.NoError(t, err)
		usr, err := app.Users.GetByUsername(ctx, "abebe")
		require.NoError(t, err)
		rec := do(http.MethodPost, "/api/students/register", getToken(t, usr), []byte(`{"fullName": "Abebe K", "serviceSection": "Education"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"service_section": "the service section cannot be changed once assigned"}`, rec.Body.String())
	})
}

func Test_studentApi_approve(t *testing.T) {
	setup(t)
	manager, choir, education := staff(t)
	stdnt := testutil.CreateUser(t, app.UserRepo, "", "hero", "Hero@12345", core.RoleStudent, "")

	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "CH1", FullName: "Choir One", ServiceSection: "Choir", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "ED1", FullName: "Edu One", ServiceSection: "Education", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "UN1", FullName: "Unclaimed One", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "UN2", FullName: "Unclaimed Two", FilledBy: "self"})

	path := func(id string) string { return "/api/students/" + id + "/approve" }
	otherSection := marchallObj(t, httpErr{Error: "this student belongs to another section"})

	type extra struct {
		section string
	}
	tests := []httpTest{
		{name: "auth required", path: path("CH1"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "staff required", path: path("CH1"), token: getToken(t, stdnt), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "unknown student", path: path("lol"), token: getToken(t, manager), wantCode: http.StatusNotFound, wantData: []byte(`{"error": "student not found"}`)},
		{name: "admin, own section", path: path("ch1"), token: getToken(t, choir), extra: extra{section: "Choir"}},
		{name: "admin, other section", path: path("ED1"), token: getToken(t, choir), wantCode: http.StatusForbidden, wantData: otherSection},
		{name: "admin, unclaimed student is claimed", path: path("UN1"), token: getToken(t, education), extra: extra{section: "Education"}},
		{name: "manager, any section", path: path("ED1"), token: getToken(t, manager), extra: extra{section: "Education"}},
		{name: "manager, unclaimed student stays unclaimed", path: path("UN2"), token: getToken(t, manager), extra: extra{section: ""}},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)

			if ex, ok := tt.extra.(extra); ok {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var s student.Student
				unmarshal(t, rec, &s)
				assert.Equal(t, student.StatusStudent, s.Status)
				assert.Equal(t, ex.section, s.ServiceSection)
				assert.NotEmpty(t, s.VerifiedBy)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_query(t *testing.T) {
	setup(t)
	manager, choir, education := staff(t)

	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "CH1", FullName: "Choir One", ServiceSection: "Choir", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "ED1", FullName: "Edu One", ServiceSection: " education ", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "UN1", FullName: "Unclaimed One", FilledBy: "self"})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{
		ID: "CH2", FullName: "Choir Two", ServiceSection: "Choir", Status: student.StatusStudent, FilledBy: "self",
	})

	tests := []struct {
		name  string
		path  string
		token string
		want  []string
	}{
		{name: "manager sees everybody", path: "/api/students", token: getToken(t, manager), want: []string{"CH1", "CH2", "ED1", "UN1"}},
		{name: "choir admin", path: "/api/students", token: getToken(t, choir), want: []string{"CH1", "CH2", "UN1"}},
		{name: "education admin", path: "/api/students", token: getToken(t, education), want: []string{"ED1", "UN1"}},
		{name: "pending only", path: "/api/students/pending", token: getToken(t, choir), want: []string{"CH1", "UN1"}},
		{name: "search", path: "/api/students?search=choir", token: getToken(t, manager), want: []string{"CH1", "CH2"}},
		{name: "manager, section filter", path: "/api/students?section=EDUCATION", token: getToken(t, manager), want: []string{"ED1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(http.MethodGet, tt.path, tt.token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.ElementsMatch(t, tt.want, studentIDs(t, rec.Body.Bytes()))
		})
	}

	t.Run("admin, other section", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/students?section=Education", getToken(t, choir))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_studentApi_retrieveAndUpdate(t *testing.T) {
	setup(t)
	ctx := context.Background()
	_, choir, education := staff(t)

	usr, err := app.Users.Signup(ctx, user.Signup{Username: "hanna", Password: "secret1"})
	require.NoError(t, err)
	other, err := app.Users.Signup(ctx, user.Signup{Username: "other", Password: "secret1"})
	require.NoError(t, err)
	_, err = app.StudentRepo.UpdateFields(ctx, "hanna", map[string]interface{}{student.ColServiceSection: "Choir"})
	require.NoError(t, err)

	runTests(t, []httpTest{
		{name: "owner", path: "/api/students/HANNA", token: getToken(t, usr)},
		{name: "another student", path: "/api/students/hanna", token: getToken(t, other), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "section admin", path: "/api/students/hanna", token: getToken(t, choir)},
		{
			name: "other section admin", path: "/api/students/hanna", token: getToken(t, education), wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "this student belongs to another section"}`),
		},
		{
			name: "nothing to update", method: http.MethodPut, path: "/api/students/hanna", token: getToken(t, usr),
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"error": "nothing to update"}`),
		},
		{
			name: "snake_case keys are not accepted on update", method: http.MethodPut, path: "/api/students/hanna", token: getToken(t, usr),
			body: []byte(`{"full_name": "Hanna"}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"full_name": "unknown field"}`),
		},
	})

	rec := do(http.MethodPut, "/api/students/hanna", getToken(t, choir), []byte(`{"fullName": "Hanna Girma", "phone": "0911"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s student.Student
	unmarshal(t, rec, &s)
	assert.Equal(t, "Hanna Girma", s.FullName)
	assert.Equal(t, "0911", s.Phone)
	assert.Equal(t, "choiradmin", s.FilledBy)
}

func Test_studentApi_import(t *testing.T) {
	setup(t)
	ctx := context.Background()
	manager, choir, _ := staff(t)

	runTests(t, []httpTest{
		{
			name: "invalid json", method: http.MethodPost, path: "/api/students/import", token: getToken(t, manager),
			body: []byte(`{"students": [`), wantCode: http.StatusBadRequest, wantData: []byte(`{"error": "invalid import payload"}`),
		},
		{
			name: "no rows", method: http.MethodPost, path: "/api/students/import", token: getToken(t, manager),
			body: []byte(`{"students": []}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"students": "no rows to import"}`),
		},
	})

	t.Run("duplicate ids collapse into one record", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/students/import", getToken(t, manager),
			[]byte(`[{"Student ID": "ETS1", "Full Name": "First Spelling", "GPA": 3.2}, {"id": "ets1", "fullName": "Second Spelling"}]`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Success int      `json:"success"`
			Failed  int      `json:"failed"`
			Errors  []string `json:"errors"`
		}
		unmarshal(t, rec, &res)
		assert.Equal(t, 2, res.Success)
		assert.Equal(t, 0, res.Failed)
		assert.Empty(t, res.Errors)

		students, err := app.StudentRepo.QueryStudents(ctx, student.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, "ETS1", students[0].ID)
		assert.Equal(t, "Second Spelling", students[0].FullName)
		assert.Equal(t, student.StatusStudent, students[0].Status)
		assert.Equal(t, 3.2, students[0].SchoolInfo["gpa"])

		usr, err := app.UserRepo.GetUser(ctx, user.GetFilter{StudentID: "ETS1"})
		require.NoError(t, err)
		assert.Equal(t, "ets1", usr.Username)
		assert.True(t, usr.MustChangePassword)
		assert.NoError(t, usr.CheckPassword(testutil.DefaultPassword))
	})

	t.Run("wrapped rows, partial failure", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/students/import", getToken(t, choir),
			[]byte(`{"students": [{"id": "ETS2", "name": "Choir Member", "section": "choir"}, {"id": "ETS3", "name": "Edu Member", "section": "Education"}, {"name": "No Id"}]}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Success int      `json:"success"`
			Failed  int      `json:"failed"`
			Errors  []string `json:"errors"`
		}
		unmarshal(t, rec, &res)
		assert.Equal(t, 1, res.Success)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, []string{
			"row 2: cannot import students of another section",
			"row 3: id: this field is required",
		}, res.Errors)
	})

	t.Run("stored section is authoritative", func(t *testing.T) {
		testutil.CreateStudent(t, app.StudentRepo, student.Student{
			ID: "ED9", FullName: "Edu Nine", ServiceSection: "Education", FilledBy: "self",
		})

		rec := do(http.MethodPost, "/api/students/import", getToken(t, choir),
			[]byte(`[{"id": "ED9", "fullName": "Hijacked"}, {"id": "ed9", "fullName": "Stolen", "section": "Choir"}, {"id": "ETS2", "fullName": "Choir Renamed"}]`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Success int      `json:"success"`
			Failed  int      `json:"failed"`
			Errors  []string `json:"errors"`
		}
		unmarshal(t, rec, &res)
		assert.Equal(t, 1, res.Success)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, []string{
			"row 1: this student belongs to another section",
			"row 2: this student belongs to another section",
		}, res.Errors)

		s, err := app.StudentRepo.GetStudent(ctx, "ED9")
		require.NoError(t, err)
		assert.Equal(t, "Edu Nine", s.FullName)
		assert.Equal(t, "Education", s.ServiceSection)

		s, err = app.StudentRepo.GetStudent(ctx, "ETS2")
		require.NoError(t, err)
		assert.Equal(t, "Choir Renamed", s.FullName)
		assert.Equal(t, "choir", s.ServiceSection)

		// the manager may still reassign
		rec = do(http.MethodPost, "/api/students/import", getToken(t, manager),
			[]byte(`[{"id": "ED9", "fullName": "Edu Nine", "section": "Choir"}]`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		s, err = app.StudentRepo.GetStudent(ctx, "ED9")
		require.NoError(t, err)
		assert.Equal(t, "Choir", s.ServiceSection)
	})
}

func Test_studentApi_declineGraduateDelete(t *testing.T) {
	setup(t)
	ctx := context.Background()
	manager, choir, _ := staff(t)

	testutil.CreateStudent(t, app.StudentRepo, student.Student{
		ID: "CH1", FullName: "Choir One", ServiceSection: "Choir", Email: "one@test.et", FilledBy: "self",
	})
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "CH2", FullName: "Choir Two", ServiceSection: "Choir", FilledBy: "self"})

	rec := do(http.MethodPost, "/api/students/CH2/graduate", getToken(t, choir))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s student.Student
	unmarshal(t, rec, &s)
	assert.Equal(t, student.StatusGraduated, s.Status)

	app.Mail.Reset()
	rec = do(http.MethodPost, "/api/students/CH1/decline", getToken(t, choir))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": "Student registration declined."}`, rec.Body.String())
	_, err := app.StudentRepo.GetStudent(ctx, "CH1")
	assert.Equal(t, student.ErrNotFound, err)
	if sent := app.Mail.SentMessages(); assert.Len(t, sent, 1) {
		assert.Equal(t, "one@test.et", sent[0].To[0].Address)
	}

	rec = do(http.MethodDelete, "/api/students/CH2", getToken(t, choir))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(http.MethodDelete, "/api/students/CH2", getToken(t, manager))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(http.MethodDelete, "/api/students/CH2", getToken(t, manager))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
