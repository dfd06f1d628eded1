package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/user"
	"github.com/0xDevansh/aries-week/tests"
)

func trackNames(tracks []course.Track) []string {
	names := make([]string, 0, len(tracks))
	for _, t := range tracks {
		names = append(names, t.Name)
	}
	return names
}

func Test_courseApi_tracks(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.usrRepo, "Owner", "owner", "owner@test.cd", testPwd, []string{user.RoleAdminOwner}, true)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", testPwd, []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", testPwd, []string{user.RoleStudent}, true)
	ownerToken := getToken(t, app, owner)
	adminToken := getToken(t, app, admin)
	studentToken := getToken(t, app, student)

	base := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	week1 := testutil.CreateTrack(t, app.courseRepo, "Week 1", base)
	week2 := testutil.CreateTrack(t, app.courseRepo, "Week 2", base.AddDate(0, 0, 7))
	forbidden := marshalObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "auth required", path: "/v1/tracks", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "student sees the schedule", path: "/v1/tracks", token: studentToken, wantCode: http.StatusOK, wantData: marshalList(t, week1, week2)},
		{name: "owner sees the schedule", path: "/v1/tracks", token: ownerToken, wantCode: http.StatusOK, wantData: marshalList(t, week1, week2)},
		{name: "unassigned admin sees nothing", path: "/v1/tracks", token: adminToken, wantCode: http.StatusOK, wantData: marshalList(t)},
		{name: "retrieve", path: "/v1/tracks/" + week1.ID, token: studentToken, wantCode: http.StatusOK, wantData: marshalObj(t, week1)},
		{
			name: "retrieve unknown", path: "/v1/tracks/nope", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: course.ErrTrackNotFound.Error()}),
		},
		{
			name: "create: admin required", method: http.MethodPost, path: "/v1/tracks", token: studentToken,
			body: []byte(`{"name":"Week 3"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "create: owner required", method: http.MethodPost, path: "/v1/tracks", token: adminToken,
			body: []byte(`{"name":"Week 3"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "create: name required", method: http.MethodPost, path: "/v1/tracks", token: ownerToken,
			body: []byte(`{"name":"  "}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name: "create: bad dates", method: http.MethodPost, path: "/v1/tracks", token: ownerToken,
			body: []byte(`{"name":"Week 3","start_date":"2026-09-21T00:00:00Z","end_date":"2026-09-20T00:00:00Z"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "update: unassigned admin", method: http.MethodPut, path: "/v1/tracks/" + week1.ID, token: adminToken,
			body: []byte(`{"name":"W1"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "assign: owner required", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/assign", token: adminToken,
			body: []byte(`{"admin_id":"` + admin.ID + `"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "assign: student", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/assign", token: ownerToken,
			body: []byte(`{"admin_id":"` + student.ID + `"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: course.ErrNotAnAdmin.Error()}),
		},
		{
			name: "assign: unknown admin", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/assign", token: ownerToken,
			body: []byte(`{"admin_id":"nope"}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"admin_id":"user not found"}`),
		},
		{
			name: "assign", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/assign", token: ownerToken,
			body: []byte(`{"admin_id":"` + admin.ID + `"}`), wantCode: http.StatusOK,
			wantData: marshalObj(t, AssignResponse{AdminID: admin.ID, TrackID: week1.ID, Assigned: true}),
		},
		{name: "assigned admin sees the track", path: "/v1/tracks", token: adminToken, wantCode: http.StatusOK, wantData: marshalList(t, week1)},
		{
			name: "update: other track", method: http.MethodPut, path: "/v1/tracks/" + week2.ID, token: adminToken,
			body: []byte(`{"name":"W2"}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "update: blank name", method: http.MethodPut, path: "/v1/tracks/" + week1.ID, token: adminToken,
			body: []byte(`{"name":" "}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"name cannot be blank"}`),
		},
		{
			name: "update", method: http.MethodPut, path: "/v1/tracks/" + week1.ID, token: adminToken,
			body: []byte(`{"name":" Basics "}`), wantCode: http.StatusOK,
		},
		{name: "delete: other track", method: http.MethodDelete, path: "/v1/tracks/" + week2.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "delete: owner", method: http.MethodDelete, path: "/v1/tracks/" + week2.ID, token: ownerToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/tracks/" + week2.ID, token: ownerToken, wantCode: http.StatusNotFound},
		{
			name: "unassign", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/assign", token: ownerToken,
			body: []byte(`{"admin_id":"` + admin.ID + `"}`), wantCode: http.StatusOK,
			wantData: marshalObj(t, AssignResponse{AdminID: admin.ID, TrackID: week1.ID, Assigned: false}),
		},
		{name: "unassigned admin sees nothing again", path: "/v1/tracks", token: adminToken, wantCode: http.StatusOK, wantData: marshalList(t)},
	}
	runHTTPTests(t, app, tests)

	got, err := app.courseRepo.GetTrack(context.Background(), week1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Basics", got.Name)
	assert.Equal(t, week1.StartDate.Unix(), got.StartDate.Unix(), "dates must be kept")

	t.Run("create", func(t *testing.T) {
		rec := app.do(httpTest{
			method: http.MethodPost, path: "/v1/tracks", token: ownerToken,
			body: []byte(`{"name":"Week 3","start_date":"2026-09-21T00:00:00Z","end_date":"2026-09-27T23:59:59Z"}`),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var tr course.Track
		unmarshal(t, rec, &tr)
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, course.StatusUpcoming, tr.Status)

		rec = app.do(httpTest{path: "/v1/tracks", token: studentToken})
		var tracks []course.Track
		unmarshal(t, rec, &tracks)
		assert.Equal(t, []string{"Basics", "Week 3"}, trackNames(tracks))
	})
}

func Test_courseApi_tasks(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.usrRepo, "Owner", "owner", "owner@test.cd", testPwd, []string{user.RoleAdminOwner}, true)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", testPwd, []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", testPwd, []string{user.RoleStudent}, true)
	ownerToken := getToken(t, app, owner)
	adminToken := getToken(t, app, admin)
	studentToken := getToken(t, app, student)

	week1 := testutil.CreateTrack(t, app.courseRepo, "Week 1", time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC))
	setup2 := testutil.CreateTask(t, app.courseRepo, week1.ID, "Setup", 2)
	intro := testutil.CreateTask(t, app.courseRepo, week1.ID, "Intro", 1)

	tests := []httpTest{
		{name: "list in track order", path: "/v1/tracks/" + week1.ID + "/tasks", token: studentToken, wantCode: http.StatusOK, wantData: marshalList(t, intro, setup2)},
		{name: "list: unknown track", path: "/v1/tracks/nope/tasks", token: studentToken, wantCode: http.StatusNotFound},
		{
			name: "create: student", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: studentToken,
			body: []byte(`{"name":"Read"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create: unassigned admin", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: adminToken,
			body: []byte(`{"name":"Read"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create: bad url", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: ownerToken,
			body: []byte(`{"name":"Read","resources_url":"nope"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create: negative order", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: ownerToken,
			body: []byte(`{"name":"Read","task_order":-1}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create", method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: ownerToken,
			body: []byte(`{"name":"Read","resources_url":"https://example.com/read","task_order":3}`), wantCode: http.StatusCreated,
		},
		{
			name: "update: unassigned admin", method: http.MethodPut, path: "/v1/tasks/" + intro.ID, token: adminToken,
			body: []byte(`{"caption":"hi"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update: unknown", method: http.MethodPut, path: "/v1/tasks/nope", token: ownerToken,
			body: []byte(`{"caption":"hi"}`), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: course.ErrTaskNotFound.Error()}),
		},
		{
			name: "update", method: http.MethodPut, path: "/v1/tasks/" + intro.ID, token: ownerToken,
			body: []byte(`{"caption":" Welcome ","task_order":5}`), wantCode: http.StatusOK,
		},
		{name: "delete: student", method: http.MethodDelete, path: "/v1/tasks/" + setup2.ID, token: studentToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/tasks/" + setup2.ID, token: ownerToken, wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, app, tests)

	rec := app.do(httpTest{path: "/v1/tracks/" + week1.ID + "/tasks", token: studentToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []course.Task
	unmarshal(t, rec, &tasks)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Read", tasks[0].Name)
	assert.Equal(t, "Intro", tasks[1].Name)
	assert.Equal(t, "Welcome", tasks[1].Caption)
}

func Test_courseApi_refreshStatuses(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.usrRepo, "Owner", "owner", "owner@test.cd", testPwd, []string{user.RoleAdminOwner}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", testPwd, []string{user.RoleStudent}, true)

	now := time.Now().UTC()
	past := testutil.CreateTrack(t, app.courseRepo, "Past", now.AddDate(0, 0, -14))
	current := testutil.CreateTrack(t, app.courseRepo, "Current", now.AddDate(0, 0, -2))
	testutil.CreateTrack(t, app.courseRepo, "Future", now.AddDate(0, 0, 5))

	rec := app.do(httpTest{method: http.MethodPost, path: "/v1/tracks/refresh-status", token: getToken(t, app, student)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(httpTest{method: http.MethodPost, path: "/v1/tracks/refresh-status", token: getToken(t, app, owner)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res RefreshResponse
	unmarshal(t, rec, &res)
	assert.ElementsMatch(t, []string{past.ID, current.ID}, res.Updated)

	got, err := app.courseRepo.GetTrack(context.Background(), current.ID)
	require.NoError(t, err)
	assert.Equal(t, course.StatusCurrent, got.Status)
}

func Test_courseApi_curriculumChangesReachStudents(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.usrRepo, "Owner", "owner", "owner@test.cd", testPwd, []string{user.RoleAdminOwner}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", testPwd, []string{user.RoleStudent}, true)
	ownerToken := getToken(t, app, owner)
	week1 := testutil.CreateTrack(t, app.courseRepo, "Week 1", time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC))

	sub := app.broker.Subscribe(student.ID)
	defer sub.Cancel()

	signalled := func() bool {
		select {
		case <-sub.C:
			return true
		default:
			return false
		}
	}

	tests := []struct {
		name       string
		tt         httpTest
		wantSignal bool
	}{
		{
			name: "rejected write",
			tt: httpTest{
				method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: ownerToken,
				body: []byte(`{"name":"Read","resources_url":"nope"}`), wantCode: http.StatusBadRequest,
			},
		},
		{
			name: "task created",
			tt: httpTest{
				method: http.MethodPost, path: "/v1/tracks/" + week1.ID + "/tasks", token: ownerToken,
				body: []byte(`{"name":"Read"}`), wantCode: http.StatusCreated,
			},
			wantSignal: true,
		},
		{
			name: "track updated",
			tt: httpTest{
				method: http.MethodPut, path: "/v1/tracks/" + week1.ID, token: ownerToken,
				body: []byte(`{"description":"Basics"}`), wantCode: http.StatusOK,
			},
			wantSignal: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checkCodeAndData(t, tc.tt, app.do(tc.tt))
			if got := signalled(); got != tc.wantSignal {
				t.Errorf("signalled = %v, want %v", got, tc.wantSignal)
			}
		})
	}
}
