package progress_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
	inmemdb "github.com/0xDevansh/aries-week/storage/database/inmem"
	testutil "github.com/0xDevansh/aries-week/tests"
)

type fixture struct {
	svc        progress.Service
	repo       progress.Repository
	courseRepo course.Repository
	mailbox    *testutil.Mailbox
	notifier   *testutil.RecordingNotifier
	student    user.User
}

func newFixture(t *testing.T) *fixture {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	repo := inmemdb.NewProgressRepository(db)

	f := &fixture{
		repo:       repo,
		courseRepo: courseRepo,
		mailbox:    &testutil.Mailbox{},
		notifier:   &testutil.RecordingNotifier{},
	}
	usrSvc := user.NewService(nil, usrRepo, f.mailbox, core.NewTestConfig())
	f.svc = progress.NewService(nil, repo, course.NewService(nil, courseRepo, nil), usrSvc, f.mailbox, f.notifier)
	f.student = testutil.CreateUser(t, usrRepo, "Ada", "ada", "ada@test.cd", "", []string{user.RoleStudent}, true)
	return f
}

func TestService_SetTaskStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w1 := testutil.CreateTrack(t, f.courseRepo, "Week 1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := testutil.CreateTask(t, f.courseRepo, w1.ID, "Setup", 1)

	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	testutil.MockNow(t, now)
	notes := "half way"

	steps := []struct {
		name       string
		status     progress.Status
		notes      *string
		wantErr    error
		wantStatus progress.Status
		notified   int
	}{
		{name: "skip to completed", status: progress.Completed, wantErr: progress.ErrInvalidTransition, wantStatus: progress.NotStarted},
		{name: "begin", status: progress.InProgress, wantStatus: progress.InProgress, notified: 1},
		{name: "repeat is a no-op", status: progress.InProgress, wantStatus: progress.InProgress, notified: 1},
		{name: "notes only", status: progress.InProgress, notes: &notes, wantStatus: progress.InProgress, notified: 2},
		{name: "finish", status: progress.Completed, wantStatus: progress.Completed, notified: 3},
		{name: "no going back to in progress", status: progress.InProgress, wantErr: progress.ErrInvalidTransition, wantStatus: progress.Completed, notified: 3},
		{name: "unmark", status: progress.NotStarted, wantStatus: progress.NotStarted, notified: 4},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			_, err := f.svc.SetTaskStatus(ctx, f.student.ID, tk.ID, st.status, st.notes)
			if errors.Cause(err) != st.wantErr {
				t.Errorf("SetTaskStatus() error = %v, wantErr %v", err, st.wantErr)
			}

			snap, err := f.svc.Snapshot(ctx, f.student.ID)
			require.NoError(t, err)
			got := progress.NewTaskProgressSet(snap.TaskProgress).Lookup(tk.ID)
			assert.Equal(t, st.wantStatus, got.Status)
			assert.Equal(t, got.Status == progress.Completed, got.CompletedAt != nil, "completed_at iff completed")
			assert.Equal(t, st.notified, f.notifier.Count())
		})
	}

	_, err := f.repo.GetTaskProgress(ctx, f.student.ID, tk.ID)
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err), "not started is never stored")

	_, err = f.svc.SetTaskStatus(ctx, f.student.ID, "missing", progress.InProgress, nil)
	assert.Equal(t, course.ErrTaskNotFound, errors.Cause(err))
	_, err = f.svc.SetTaskStatus(ctx, f.student.ID, tk.ID, progress.Status("done"), nil)
	assert.Equal(t, progress.ErrInvalidStatus, errors.Cause(err))
}

func TestService_SetTrackStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w1 := testutil.CreateTrack(t, f.courseRepo, "Week 1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), course.StatusCurrent)
	a := testutil.CreateTask(t, f.courseRepo, w1.ID, "A", 1)
	b := testutil.CreateTask(t, f.courseRepo, w1.ID, "B", 2)
	upcoming := testutil.CreateTrack(t, f.courseRepo, "Week 2", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))
	empty := testutil.CreateTrack(t, f.courseRepo, "Week 3", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), course.StatusCurrent)

	_, err := f.svc.SetTrackStatus(ctx, f.student.ID, w1.ID, progress.Completed)
	assert.Equal(t, progress.ErrTrackIncomplete, errors.Cause(err))
	_, err = f.svc.SetTrackStatus(ctx, f.student.ID, empty.ID, progress.Completed)
	assert.Equal(t, progress.ErrTrackIncomplete, errors.Cause(err), "an empty track is never completable")
	_, err = f.svc.SetTrackStatus(ctx, f.student.ID, upcoming.ID, progress.InProgress)
	assert.Equal(t, progress.ErrTrackUpcoming, errors.Cause(err))
	_, err = f.svc.SetTrackStatus(ctx, f.student.ID, "missing", progress.InProgress)
	assert.Equal(t, course.ErrTrackNotFound, errors.Cause(err))

	p, err := f.svc.SetTrackStatus(ctx, f.student.ID, w1.ID, progress.InProgress)
	require.NoError(t, err)
	assert.Equal(t, progress.InProgress, p.Status)

	testutil.SetTaskProgress(t, f.repo, f.student.ID, a.ID, progress.Completed, time.Now())
	testutil.SetTaskProgress(t, f.repo, f.student.ID, b.ID, progress.Completed, time.Now())

	// all tasks done, no record yet: not completed until written
	sum, err := f.svc.Dashboard(ctx, f.student.ID)
	require.NoError(t, err)
	assert.True(t, sum.Tracks[0].CanComplete)
	assert.False(t, sum.Tracks[0].Completed)

	p, err = f.svc.SetTrackStatus(ctx, f.student.ID, w1.ID, progress.Completed)
	require.NoError(t, err)
	assert.Equal(t, progress.Completed, p.Status)
	assert.NotNil(t, p.CompletedAt)

	sent := f.mailbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "track_completed", sent[0].TemplateName)
	assert.Equal(t, "ada@test.cd", sent[0].To[0].Address)

	// the mail carries the week's summary
	require.Len(t, sent[0].Attachments, 1)
	att := sent[0].Attachments[0]
	assert.Equal(t, "week-1-summary.csv", att.Filename)
	assert.Equal(t, "text/csv", att.ContentType)
	summary, err := base64.StdEncoding.DecodeString(att.Content.String())
	require.NoError(t, err)
	assert.Contains(t, string(summary), "1,A,completed,")
	assert.Contains(t, string(summary), "2,B,completed,")

	sum, err = f.svc.Dashboard(ctx, f.student.ID)
	require.NoError(t, err)
	assert.True(t, sum.Tracks[0].Completed)
	assert.Equal(t, 1, sum.TracksCompleted)

	// completing twice sends nothing more
	_, err = f.svc.SetTrackStatus(ctx, f.student.ID, w1.ID, progress.Completed)
	require.NoError(t, err)
	assert.Len(t, f.mailbox.Sent(), 1)

	_, err = f.svc.SetTrackStatus(ctx, f.student.ID, w1.ID, progress.NotStarted)
	require.NoError(t, err)
	_, err = f.repo.GetTrackProgress(ctx, f.student.ID, w1.ID)
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))
}

func TestService_CompleteWeek(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w1 := testutil.CreateTrack(t, f.courseRepo, "Week 1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	w2 := testutil.CreateTrack(t, f.courseRepo, "Week 2", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))
	w3 := testutil.CreateTrack(t, f.courseRepo, "Week 3", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	a := testutil.CreateTask(t, f.courseRepo, w1.ID, "A", 1)
	w3Second := testutil.CreateTask(t, f.courseRepo, w3.ID, "W3 second", 2)
	w3First := testutil.CreateTask(t, f.courseRepo, w3.ID, "W3 first", 1)
	w2Task := testutil.CreateTask(t, f.courseRepo, w2.ID, "W2", 1)

	_, err := f.svc.CompleteWeek(ctx, f.student.ID, w1.ID)
	assert.Equal(t, progress.ErrTrackIncomplete, errors.Cause(err))

	testutil.SetTaskProgress(t, f.repo, f.student.ID, a.ID, progress.Completed, time.Now())
	testutil.SetTaskProgress(t, f.repo, f.student.ID, w2Task.ID, progress.Completed, time.Now())
	_, err = f.repo.UpsertTrackProgress(ctx, progress.TrackProgress{
		UserID:      f.student.ID,
		TrackID:     w2.ID,
		Status:      progress.Completed,
		CompletedAt: core.TimePtr(time.Now()),
	})
	require.NoError(t, err)

	// week 2 is already completed: week 3 is next
	nextID, err := f.svc.CompleteWeek(ctx, f.student.ID, w1.ID)
	require.NoError(t, err)
	assert.Equal(t, w3.ID, nextID)

	snap, err := f.svc.Snapshot(ctx, f.student.ID)
	require.NoError(t, err)
	tasks := progress.NewTaskProgressSet(snap.TaskProgress)
	assert.Equal(t, progress.InProgress, tasks.Lookup(w3First.ID).Status)
	assert.Equal(t, progress.NotStarted, tasks.Lookup(w3Second.ID).Status)
	assert.True(t, progress.NewTrackProgressSet(snap.TrackProgress).CompletedIDs()[w1.ID])

	sum := progress.Derive(snap)
	assert.Equal(t, w3.ID, sum.CurrentTrackID)
	require.NotNil(t, sum.CurrentTask)
	assert.Equal(t, w3First.ID, sum.CurrentTask.ID)

	// last week: nothing left
	testutil.SetTaskProgress(t, f.repo, f.student.ID, w3First.ID, progress.Completed, time.Now())
	testutil.SetTaskProgress(t, f.repo, f.student.ID, w3Second.ID, progress.Completed, time.Now())
	nextID, err = f.svc.CompleteWeek(ctx, f.student.ID, w3.ID)
	require.NoError(t, err)
	assert.Equal(t, "", nextID)
}
