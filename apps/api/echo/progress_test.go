package echoapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
	"github.com/0xDevansh/aries-week/tests"
)

// createStudent stores an active student who completed onboarding.
func createStudent(t *testing.T, app testApp, uname string) user.User {
	t.Helper()
	usr := testutil.CreateUser(t, app.usrRepo, "Student "+uname, uname, uname+"@test.cd", testPwd, []string{user.RoleStudent}, true)
	usr.MobileNumber = "+243 810 000 000"
	usr, err := app.usrRepo.UpdateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

type progressFixture struct {
	week1, week2        course.Track
	intro, setup, build course.Task
}

func newProgressFixture(t *testing.T, app testApp) progressFixture {
	t.Helper()
	now := time.Now().UTC()
	var f progressFixture
	f.week1 = testutil.CreateTrack(t, app.courseRepo, "Week 1", now.AddDate(0, 0, -1), course.StatusCurrent)
	f.week2 = testutil.CreateTrack(t, app.courseRepo, "Week 2", now.AddDate(0, 0, 6))
	f.intro = testutil.CreateTask(t, app.courseRepo, f.week1.ID, "Intro", 1)
	f.setup = testutil.CreateTask(t, app.courseRepo, f.week1.ID, "Setup", 2)
	f.build = testutil.CreateTask(t, app.courseRepo, f.week2.ID, "Build", 1)
	return f
}

func Test_progressApi_access(t *testing.T) {
	app := setup(t)
	f := newProgressFixture(t, app)
	incomplete := testutil.CreateUser(t, app.usrRepo, "", "newbie", "newbie@test.cd", testPwd, []string{user.RoleStudent}, true)
	inactive := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", testPwd, []string{user.RoleStudent}, false)

	tests := []httpTest{
		{name: "auth required", path: "/v1/progress/dashboard", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "profile required", path: "/v1/progress/dashboard", token: getToken(t, app, incomplete),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "profile incomplete"}),
		},
		{
			name: "active account required", method: http.MethodPut, path: "/v1/progress/tasks/" + f.intro.ID,
			token: getToken(t, app, inactive), body: []byte(`{"status":"in_progress"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_progressApi_tasks(t *testing.T) {
	app := setup(t)
	f := newProgressFixture(t, app)
	usr := createStudent(t, app, "hero")
	token := getToken(t, app, usr)
	path := "/v1/progress/tasks/" + f.intro.ID

	tests := []httpTest{
		{
			name: "invalid status", method: http.MethodPut, path: path, token: token,
			body: []byte(`{"status":"done"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"must be one of not_started, in_progress or completed"}`),
		},
		{
			name: "status required", method: http.MethodPut, path: path, token: token,
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"status":"this field is required"}`),
		},
		{
			name: "unknown task", method: http.MethodPut, path: "/v1/progress/tasks/nope", token: token,
			body: []byte(`{"status":"in_progress"}`), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: course.ErrTaskNotFound.Error()}),
		},
		{
			name: "not started -> completed", method: http.MethodPut, path: path, token: token,
			body: []byte(`{"status":"completed"}`), wantCode: http.StatusConflict,
			wantData: marshalObj(t, httpErr{Error: progress.ErrInvalidTransition.Error()}),
		},
		{name: "start", method: http.MethodPut, path: path, token: token, body: []byte(`{"status":"in_progress","notes":" reading "}`), wantCode: http.StatusOK},
		{name: "complete", method: http.MethodPut, path: path, token: token, body: []byte(`{"status":"completed"}`), wantCode: http.StatusOK},
		{
			name: "completed -> in progress", method: http.MethodPut, path: path, token: token,
			body: []byte(`{"status":"in_progress"}`), wantCode: http.StatusConflict,
		},
	}
	runHTTPTests(t, app, tests)

	p, err := app.progRepo.GetTaskProgress(context.Background(), usr.ID, f.intro.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.Completed, p.Status)
	assert.Equal(t, "reading", p.Notes, "notes must be kept when omitted")
	assert.NotNil(t, p.CompletedAt)

	rec := app.do(httpTest{path: "/v1/progress/dashboard", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum progress.Summary
	unmarshal(t, rec, &sum)
	assert.Equal(t, usr.ID, sum.UserID)
	assert.Equal(t, 1, sum.TasksCompleted)
	assert.Equal(t, 3, sum.TasksTotal)
	assert.Equal(t, f.week1.ID, sum.CurrentTrackID)
	require.Len(t, sum.Tracks, 2)
	assert.Equal(t, 50, sum.Tracks[0].Percent)
	assert.False(t, sum.Tracks[0].CanComplete)
}

func Test_progressApi_completeWeek(t *testing.T) {
	app := setup(t)
	f := newProgressFixture(t, app)
	usr := createStudent(t, app, "hero")
	token := getToken(t, app, usr)
	now := time.Now().UTC()

	tests := []httpTest{
		{
			name: "upcoming track", method: http.MethodPut, path: "/v1/progress/tracks/" + f.week2.ID, token: token,
			body: []byte(`{"status":"in_progress"}`), wantCode: http.StatusConflict,
			wantData: marshalObj(t, httpErr{Error: progress.ErrTrackUpcoming.Error()}),
		},
		{
			name: "incomplete track", method: http.MethodPost, path: "/v1/progress/tracks/" + f.week1.ID + "/complete-week", token: token,
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: progress.ErrTrackIncomplete.Error()}),
		},
		{
			name: "unknown track", method: http.MethodPost, path: "/v1/progress/tracks/nope/complete-week", token: token,
			wantCode: http.StatusNotFound,
		},
		{
			name: "start track", method: http.MethodPut, path: "/v1/progress/tracks/" + f.week1.ID, token: token,
			body: []byte(`{"status":"in_progress"}`), wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, app, tests)
	assert.Empty(t, app.mailbox.Sent())

	testutil.SetTaskProgress(t, app.progRepo, usr.ID, f.intro.ID, progress.Completed, now)
	testutil.SetTaskProgress(t, app.progRepo, usr.ID, f.setup.ID, progress.Completed, now)

	rec := app.do(httpTest{method: http.MethodPost, path: "/v1/progress/tracks/" + f.week1.ID + "/complete-week", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res CompleteWeekResponse
	unmarshal(t, rec, &res)
	assert.Equal(t, f.week2.ID, res.NextTrackID)

	// the first task of the next week is started
	p, err := app.progRepo.GetTaskProgress(context.Background(), usr.ID, f.build.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.InProgress, p.Status)

	sent := app.mailbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "track_completed", sent[0].TemplateName)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)

	// completing twice neither fails nor mails again
	rec = app.do(httpTest{method: http.MethodPost, path: "/v1/progress/tracks/" + f.week1.ID + "/complete-week", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, app.mailbox.Sent(), 1)
}

type sseFrame struct {
	event string
	data  string
}

// readFrames parses the SSE frames of r into a channel, until r fails.
func readFrames(r *bufio.Reader) <-chan sseFrame {
	frames := make(chan sseFrame, 16)
	go func() {
		defer close(frames)
		var frame sseFrame
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				frame.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				frame.data = strings.TrimPrefix(line, "data: ")
			case line == "":
				frames <- frame
				frame = sseFrame{}
			}
		}
	}()
	return frames
}

func nextFrame(t *testing.T, frames <-chan sseFrame, event string) sseFrame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			require.True(t, ok, "stream closed before %q", event)
			if f.event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("no %q event received", event)
			return sseFrame{}
		}
	}
}

func Test_progressApi_events(t *testing.T) {
	origHeartbeat := heartbeatInterval
	heartbeatInterval = 50 * time.Millisecond
	t.Cleanup(func() { heartbeatInterval = origHeartbeat })

	app := setup(t)
	f := newProgressFixture(t, app)
	usr := createStudent(t, app, "hero")
	token := getToken(t, app, usr)

	srv := httptest.NewServer(app)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/progress/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	frames := readFrames(bufio.NewReader(res.Body))

	// initial dashboard
	var sum progress.Summary
	require.NoError(t, json.Unmarshal([]byte(nextFrame(t, frames, eventDashboard).data), &sum))
	assert.Equal(t, usr.ID, sum.UserID)
	assert.Equal(t, 0, sum.TasksCompleted)

	nextFrame(t, frames, eventHeartbeat)

	// a progress change pushes a fresh dashboard
	rec := app.do(httpTest{method: http.MethodPut, path: "/v1/progress/tasks/" + f.intro.ID, token: token, body: []byte(`{"status":"in_progress"}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(httpTest{method: http.MethodPut, path: "/v1/progress/tasks/" + f.intro.ID, token: token, body: []byte(`{"status":"completed"}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	deadline := time.Now().Add(5 * time.Second)
	for sum.TasksCompleted != 1 && time.Now().Before(deadline) {
		require.NoError(t, json.Unmarshal([]byte(nextFrame(t, frames, eventDashboard).data), &sum))
	}
	assert.Equal(t, 1, sum.TasksCompleted)

	// the subscription is released once the client leaves
	cancel()
	assert.Eventually(t, func() bool { return app.broker.Subscribers(usr.ID) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func Test_writeSSE(t *testing.T) {
	var sb strings.Builder
	err := writeSSE(&sb, "dashboard", map[string]int{"tasks_completed": 2})
	require.NoError(t, err)
	assert.Equal(t, "event: dashboard\ndata: {\"tasks_completed\":2}\n\n", sb.String())

	err = writeSSE(&sb, "dashboard", func() {})
	assert.Error(t, err)
}
