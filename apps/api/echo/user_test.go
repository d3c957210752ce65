package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
	"github.com/gibigubae/registry/testutil"
)

func getUser(t *testing.T, id int) user.User {
	usr, err := app.UserRepo.GetUser(context.Background(), user.GetFilter{ID: id})
	require.NoError(t, err)
	return usr
}

// linkedStudent creates a student record in section with an account of its own.
func linkedStudent(t *testing.T, id, name, section, email string) user.User {
	usr := testutil.CreateUser(t, app.UserRepo, name, id, "Hero@12345", core.RoleStudent, "")
	uid := usr.ID
	testutil.CreateStudent(t, app.StudentRepo, student.Student{
		ID: id, FullName: name, ServiceSection: section, Email: email, FilledBy: "self", UserID: &uid,
	})
	return usr
}

func Test_userApi_admins(t *testing.T) {
	setup(t)
	manager, choir, education := staff(t)
	mToken := getToken(t, manager)

	runTests(t, []httpTest{
		{name: "auth required", path: "/api/users/admins", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "manager required", path: "/api/users/admins", token: getToken(t, choir), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "manager required to register", method: http.MethodPost, path: "/api/users/admins", token: getToken(t, choir),
			body: []byte(`{"username": "x"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "section required", method: http.MethodPost, path: "/api/users/admins", token: mToken,
			body:     []byte(`{"username": "lituadmin", "password": "Litu@1234", "name": "Liturgy Admin"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"section": "this field is required"}`),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/api/users/admins", token: mToken,
			body:     []byte(`{"username": "ChoirAdmin", "password": "Litu@1234", "name": "Liturgy Admin", "section": "Liturgy"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"username": "a user with this username already exists"}`),
		},
	})

	var liturgy user.User
	t.Run("register", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/users/admins", mToken,
			[]byte(`{"username": " lituadmin ", "password": "Litu@1234", "name": "Liturgy Admin", "section": " Liturgy "}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &liturgy)
		assert.Equal(t, "lituadmin", liturgy.Username)
		assert.Equal(t, core.RoleAdmin, liturgy.Role)
		assert.Equal(t, "Liturgy", liturgy.Section)
		assert.Equal(t, user.StatusActive, liturgy.Status)
		litu := getUser(t, liturgy.ID)
		assert.NoError(t, litu.CheckPassword("Litu@1234"))
	})

	t.Run("list", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/users/admins", mToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var admins []user.User
		unmarshal(t, rec, &admins)
		var unames []string
		for _, a := range admins {
			unames = append(unames, a.Username)
		}
		assert.Equal(t, []string{"choiradmin", "eduadmin", "lituadmin"}, unames)
	})

	t.Run("update", func(t *testing.T) {
		rec := do(http.MethodPut, fmt.Sprintf("/api/users/admins/%d", choir.ID), mToken,
			[]byte(`{"section": "Choir Music", "password": "Music@1234"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Choir Music", usr.Section)
		assert.Equal(t, "choiradmin", usr.Username)
		assert.Equal(t, "Choir Admin", usr.Name)
		updated := getUser(t, choir.ID)
		assert.NoError(t, updated.CheckPassword("Music@1234"))
	})

	runTests(t, []httpTest{
		{
			name: "update manager", method: http.MethodPut, path: fmt.Sprintf("/api/users/admins/%d", manager.ID), token: mToken,
			body: []byte(`{"name": "lol"}`), wantCode: http.StatusNotFound, wantData: []byte(`{"error": "admin not found"}`),
		},
		{
			name: "update, invalid id", method: http.MethodPut, path: "/api/users/admins/lol", token: mToken,
			body: []byte(`{"name": "lol"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "update, username taken", method: http.MethodPut, path: fmt.Sprintf("/api/users/admins/%d", choir.ID), token: mToken,
			body: []byte(`{"username": "EduAdmin"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "a user with this username already exists"}`),
		},
	})

	t.Run("toggle status", func(t *testing.T) {
		path := fmt.Sprintf("/api/users/admins/%d/toggle-status", education.ID)
		for _, want := range []string{user.StatusBlocked, user.StatusActive} {
			rec := do(http.MethodPost, path, mToken)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var usr user.User
			unmarshal(t, rec, &usr)
			assert.Equal(t, want, usr.Status)
		}
	})

	t.Run("blocked admins cannot log in", func(t *testing.T) {
		rec := do(http.MethodPost, fmt.Sprintf("/api/users/admins/%d/toggle-status", liturgy.ID), mToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(http.MethodPost, "/api/auth/login", "", []byte(`{"username": "lituadmin", "password": "Litu@1234"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error": "account blocked"}`, rec.Body.String())
	})

	runTests(t, []httpTest{
		{name: "delete", method: http.MethodDelete, path: fmt.Sprintf("/api/users/admins/%d", education.ID), token: mToken, wantCode: http.StatusNoContent},
		{name: "delete twice", method: http.MethodDelete, path: fmt.Sprintf("/api/users/admins/%d", education.ID), token: mToken, wantCode: http.StatusNotFound},
		{name: "delete manager", method: http.MethodDelete, path: fmt.Sprintf("/api/users/admins/%d", manager.ID), token: mToken, wantCode: http.StatusNotFound},
	})
	_, err := app.UserRepo.GetUser(context.Background(), user.GetFilter{ID: education.ID})
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_userApi_makeStudentAdmin(t *testing.T) {
	setup(t)
	manager, choir, _ := staff(t)
	hero := linkedStudent(t, "CH1", "Choir One", "Choir", "")
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "CH2", FullName: "Choir Two", ServiceSection: "Choir", FilledBy: "self"})
	mToken := getToken(t, manager)

	runTests(t, []httpTest{
		{name: "manager required", method: http.MethodPost, path: "/api/users/students/CH1/make-admin", token: getToken(t, choir), wantCode: http.StatusForbidden},
		{
			name: "unknown student", method: http.MethodPost, path: "/api/users/students/nope/make-admin", token: mToken,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "student not found"}`),
		},
		{
			name: "no account", method: http.MethodPost, path: "/api/users/students/CH2/make-admin", token: mToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"error": "this student has no linked account"}`),
		},
	})

	rec := do(http.MethodPost, "/api/users/students/ch1/make-admin", mToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, hero.ID, usr.ID)
	assert.Equal(t, core.RoleAdmin, usr.Role)
	assert.Equal(t, "Choir", usr.Section)
	assert.Equal(t, "Choir One", usr.Name)
}

func Test_userApi_resetPassword(t *testing.T) {
	setup(t)
	_, choir, education := staff(t)
	hero := linkedStudent(t, "CH1", "Choir One", "Choir", "one@test.et")
	other := linkedStudent(t, "CH3", "Choir Three", "Choir", "")
	testutil.CreateStudent(t, app.StudentRepo, student.Student{ID: "CH2", FullName: "Choir Two", ServiceSection: "Choir", FilledBy: "self"})

	runTests(t, []httpTest{
		{
			name: "staff required", method: http.MethodPost, path: "/api/users/students/CH1/reset-password", token: getToken(t, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "another section", method: http.MethodPost, path: "/api/users/students/CH1/reset-password", token: getToken(t, education),
			wantCode: http.StatusForbidden, wantData: []byte(`{"error": "this student belongs to another section"}`),
		},
		{
			name: "no account", method: http.MethodPost, path: "/api/users/students/CH2/reset-password", token: getToken(t, choir),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"error": "this student has no linked account"}`),
		},
	})

	app.Mail.Reset()
	rec := do(http.MethodPost, "/api/users/students/CH1/reset-password", getToken(t, choir))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": "Password has been reset to the default password."}`, rec.Body.String())

	usr := getUser(t, hero.ID)
	assert.True(t, usr.MustChangePassword)
	assert.NoError(t, usr.CheckPassword(testutil.DefaultPassword))
	if sent := app.Mail.SentMessages(); assert.Len(t, sent, 1) {
		assert.Equal(t, "one@test.et", sent[0].To[0].Address)
	}

	t.Run("no email, no message", func(t *testing.T) {
		app.Mail.Reset()
		rec := do(http.MethodPost, "/api/users/students/CH3/reset-password", getToken(t, choir))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, app.Mail.SentMessages())
		assert.True(t, getUser(t, other.ID).MustChangePassword)
	})
}

func Test_userApi_changePassword(t *testing.T) {
	setup(t)
	hero := testutil.CreateUser(t, app.UserRepo, "Hero", "hero", "Tsion@1234", core.RoleStudent, "")
	hero.MustChangePassword = true
	_, err := app.UserRepo.UpdateUser(context.Background(), hero)
	require.NoError(t, err)
	token := getToken(t, hero)
	path := "/api/users/change-password"

	runTests(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized},
		{
			name: "missing fields", method: http.MethodPost, path: path, token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"current_password": "this field is required", "new_password": "this field is required"}`),
		},
		{
			name: "wrong current password", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "lol", "new_password": "Abune@1234"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"current_password": "incorrect password"}`),
		},
		{
			name: "same password", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "Tsion@1234", "new_password": "Tsion@1234"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"new_password": "the new password must differ from the current one"}`),
		},
		{
			name: "too short", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "Tsion@1234", "new_password": "abc"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"new_password": "password must contain at least 6 characters"}`),
		},
		{
			name: "whitespace", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "Tsion@1234", "new_password": "Abune 1234"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"new_password": "password must not contain whitespace"}`),
		},
		{
			name: "similar to username", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "Tsion@1234", "new_password": "hero12"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"new_password": "password cannot be similar to your username or name"}`),
		},
		{
			name: "success", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"current_password": "Tsion@1234", "new_password": "Abune@1234"}`),
			wantData: []byte(`{"success": "Password changed."}`),
		},
	})

	usr := getUser(t, hero.ID)
	assert.False(t, usr.MustChangePassword)
	assert.NoError(t, usr.CheckPassword("Abune@1234"))
}

func Test_userApi_updateProfile(t *testing.T) {
	setup(t)
	hero := testutil.CreateUser(t, app.UserRepo, "Hero", "hero", "Tsion@1234", core.RoleStudent, "")
	token := getToken(t, hero)

	t.Run("name and photo", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/users/profile", token,
			[]byte(`{"name": " Hero Name ", "photo_url": "https://example.org/me.png"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Hero Name", usr.Name)
		assert.Equal(t, "https://example.org/me.png", usr.PhotoURL)
	})

	t.Run("blank name is ignored", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/users/profile", token, []byte(`{"name": "  "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		usr := getUser(t, hero.ID)
		assert.Equal(t, "Hero Name", usr.Name)
		assert.Equal(t, "https://example.org/me.png", usr.PhotoURL)
	})

	t.Run("invalid inline photo", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/users/profile", token, []byte(`{"photo_url": "data:image/png;base64,lol"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
