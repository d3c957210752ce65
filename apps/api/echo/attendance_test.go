package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/attendance"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/testutil"
)

type batchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

func Test_attendanceApi_save(t *testing.T) {
	setup(t)
	ctx := context.Background()
	manager, choir, _ := staff(t)
	stdnt := testutil.CreateUser(t, app.UserRepo, "", "hero", "Hero@12345", core.RoleStudent, "")

	runTests(t, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/api/attendance",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "staff required", method: http.MethodPost, path: "/api/attendance", token: getToken(t, stdnt),
			body: []byte(`{"date": "2024-03-10", "records": [{"section": "Choir", "present": 1}]}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "invalid date", method: http.MethodPost, path: "/api/attendance", token: getToken(t, choir),
			body:     []byte(`{"date": "10/03/2024", "records": [{"section": "Choir", "present": 1}]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"date": "date must be a date formatted as YYYY-MM-DD"}`),
		},
		{
			name: "no records", method: http.MethodPost, path: "/api/attendance", token: getToken(t, choir),
			body:     []byte(`{"date": "2024-03-10", "records": []}`),
			wantCode: http.StatusBadRequest,
		},
	})

	save := func(t *testing.T, token, body string) batchResponse {
		rec := do(http.MethodPost, "/api/attendance", token, []byte(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res batchResponse
		unmarshal(t, rec, &res)
		return res
	}

	t.Run("saving twice keeps one row", func(t *testing.T) {
		res := save(t, getToken(t, choir), `{"date": "2024-03-10", "records": [{"section": " choir ", "present": 8, "absent": 2}]}`)
		assert.Equal(t, 1, res.Success)
		res = save(t, getToken(t, choir), `{"date": "2024-03-10", "records": [{"section": "Choir", "present": 9, "absent": 1}]}`)
		assert.Equal(t, 1, res.Success)

		entries, err := app.Attendance.History(ctx, attendance.HistoryFilter{}, manager.Actor())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Choir", entries[0].Section)
		assert.Equal(t, 9, entries[0].Present)
		assert.Equal(t, 10, entries[0].Total)
		assert.Equal(t, 90.0, entries[0].Percentage)
		assert.Equal(t, "choiradmin", entries[0].RecordedBy)
	})

	t.Run("records are independent", func(t *testing.T) {
		res := save(t, getToken(t, choir), `{"date": "2024-03-17", "records": [
			{"section": "Choir", "present": 2, "total": 3},
			{"section": "Education", "present": 5},
			{"section": "Choir", "present": 5, "total": 4}
		]}`)
		assert.Equal(t, 1, res.Success)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, []string{"cannot record attendance of another section", "present: present cannot exceed total"}, res.Errors)
	})

	t.Run("manager records any section", func(t *testing.T) {
		res := save(t, getToken(t, manager), `{"date": "2024-03-17", "records": [{"section": "Education", "present": 1, "total": 3, "percentage": 50}]}`)
		assert.Equal(t, 1, res.Success)

		entries, err := app.Attendance.History(ctx, attendance.HistoryFilter{From: "2024-03-17", Section: "education"}, manager.Actor())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 50.0, entries[0].Percentage)
	})

	t.Run("section spellings share one row", func(t *testing.T) {
		res := save(t, getToken(t, manager), `{"date": "2024-03-24", "records": [{"section": "choir", "present": 3, "total": 4}]}`)
		assert.Equal(t, 1, res.Success)
		res = save(t, getToken(t, choir), `{"date": "2024-03-24", "records": [{"section": "Choir", "present": 4, "total": 4}]}`)
		assert.Equal(t, 1, res.Success)

		entries, err := app.Attendance.History(ctx, attendance.HistoryFilter{From: "2024-03-24", To: "2024-03-24"}, manager.Actor())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 4, entries[0].Present)
		assert.Equal(t, 100.0, entries[0].Percentage)
		assert.Equal(t, "choiradmin", entries[0].RecordedBy)

		an, err := app.Attendance.Analytics(ctx, manager.Actor())
		require.NoError(t, err)
		for _, st := range an.Sections {
			if core.SameSection(st.Section, "Choir") {
				assert.Equal(t, 3, st.Sessions)
			}
		}
	})

	t.Run("repeated section notifies the stored counts", func(t *testing.T) {
		res := save(t, getToken(t, manager), `{"date": "2024-03-31", "records": [
			{"section": "Choir", "present": 1, "total": 4},
			{"section": "choir", "present": 3, "total": 4}
		]}`)
		assert.Equal(t, 2, res.Success)

		entries, err := app.Attendance.History(ctx, attendance.HistoryFilter{From: "2024-03-31"}, manager.Actor())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 3, entries[0].Present)

		ns, err := app.Notifications.ListFor(ctx, manager.Actor())
		require.NoError(t, err)
		var msgs []string
		for _, n := range ns {
			if n.Type == notification.TypeAttendance && strings.Contains(n.Message, "2024-03-31") {
				msgs = append(msgs, n.Message)
			}
		}
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0], "3/4 present (75.00%)")
	})
}

func Test_attendanceApi_queryAndAnalytics(t *testing.T) {
	setup(t)
	ctx := context.Background()
	manager, choir, education := staff(t)

	for _, b := range []attendance.Batch{
		{Date: "2024-03-03", Records: []attendance.Record{{Section: "Choir", Present: 3, Total: 4}, {Section: "Education", Present: 1, Total: 2}}},
		{Date: "2024-03-10", Records: []attendance.Record{{Section: "Choir", Present: 4, Total: 4}}},
	} {
		res, err := app.Attendance.SaveBatch(ctx, b, manager.Actor())
		require.NoError(t, err)
		require.Zero(t, res.FailedCount())
	}

	t.Run("admin history is limited to their section", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/attendance", getToken(t, choir))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []attendance.Entry
		unmarshal(t, rec, &entries)
		require.Len(t, entries, 2)
		assert.Equal(t, "2024-03-10", entries[0].Date)
		assert.Equal(t, "2024-03-03", entries[1].Date)
	})

	t.Run("manager history, date range", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/attendance?from=2024-03-01&to=2024-03-05", getToken(t, manager))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []attendance.Entry
		unmarshal(t, rec, &entries)
		require.Len(t, entries, 2)
		assert.Equal(t, "Choir", entries[0].Section)
		assert.Equal(t, "Education", entries[1].Section)
	})

	t.Run("invalid range", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/attendance?from=lol", getToken(t, manager))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"from": "must be a date formatted as YYYY-MM-DD"}`, rec.Body.String())
	})

	t.Run("admin cannot read another section", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/attendance?section=Choir", getToken(t, education))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("analytics", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/attendance/analytics", getToken(t, manager))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var an attendance.Analytics
		unmarshal(t, rec, &an)
		require.Len(t, an.Sections, 2)
		assert.Equal(t, attendance.SectionStats{
			Section: "Choir", Sessions: 2, AvgPercentage: 87.5, TotalPresent: 7,
		}, an.Sections[0])
		assert.Equal(t, attendance.Summary{TotalSessions: 2, TotalRecords: 3, OverallAverage: 75}, an.Summary)

		rec = do(http.MethodGet, "/api/attendance/analytics", getToken(t, education))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &an)
		require.Len(t, an.Sections, 1)
		assert.Equal(t, "Education", an.Sections[0].Section)
	})
}

func Test_attendanceApi_delete(t *testing.T) {
	setup(t)
	manager, choir, _ := staff(t)

	_, err := app.Attendance.SaveBatch(context.Background(), attendance.Batch{
		Date: "2024-03-10", Records: []attendance.Record{{Section: "Choir", Present: 1, Total: 1}},
	}, manager.Actor())
	require.NoError(t, err)

	notFound := []byte(`{"error": "attendance record not found"}`)
	runTests(t, []httpTest{
		{name: "manager required", method: http.MethodDelete, path: "/api/attendance/2024-03-10/Choir", token: getToken(t, choir), wantCode: http.StatusForbidden},
		{name: "invalid date", method: http.MethodDelete, path: "/api/attendance/lol/Choir", token: getToken(t, manager), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete", method: http.MethodDelete, path: "/api/attendance/2024-03-10/choir", token: getToken(t, manager), wantCode: http.StatusNoContent},
		{name: "already deleted", method: http.MethodDelete, path: "/api/attendance/2024-03-10/Choir", token: getToken(t, manager), wantCode: http.StatusNotFound, wantData: notFound},
	})
}
