package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateTrack stores a track starting at start (no dates when start is zero) and lasting a week.
func CreateTrack(t *testing.T, repo course.Repository, name string, start time.Time, status ...course.TrackStatus) course.Track {
	t.Helper()
	tr := course.Track{
		Name:      name,
		Status:    course.StatusUpcoming,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if len(status) > 0 {
		tr.Status = status[0]
	}
	if !start.IsZero() {
		tr.StartDate = core.TimePtr(start)
		tr.EndDate = core.TimePtr(start.Add(7*24*time.Hour - time.Second))
	}
	tr, err := repo.CreateTrack(context.Background(), tr)
	if err != nil {
		t.Fatalf("CreateTrack() failed: %v", err)
	}
	return tr
}

func CreateTask(t *testing.T, repo course.Repository, trackID, name string, order int) course.Task {
	t.Helper()
	tk := course.Task{
		TrackID:   trackID,
		Name:      name,
		Order:     order,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	tk, err := repo.CreateTask(context.Background(), tk)
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	return tk
}

// SetTaskProgress stores a progress record as is, bypassing the transition rules.
func SetTaskProgress(t *testing.T, repo progress.Repository, userID, taskID string, status progress.Status, at time.Time) progress.TaskProgress {
	t.Helper()
	p := progress.TaskProgress{
		UserID:    userID,
		TaskID:    taskID,
		Status:    status,
		UpdatedAt: at.UTC(),
	}
	if status == progress.Completed {
		p.CompletedAt = core.TimePtr(at)
	}
	p, err := repo.UpsertTaskProgress(context.Background(), p)
	if err != nil {
		t.Fatalf("SetTaskProgress() failed: %v", err)
	}
	return p
}

// MockNow freezes core.NowFunc at now until the test ends.
func MockNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now.UTC() }
	t.Cleanup(func() { core.NowFunc = orig })
}

// Mailbox is an EmailService that keeps the messages it is given.
type Mailbox struct {
	mu       sync.Mutex
	Messages []*core.EmailMessage
}

func (m *Mailbox) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, messages...)
}

func (m *Mailbox) Sent() []*core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.EmailMessage(nil), m.Messages...)
}

// RecordingNotifier remembers the users whose snapshot changed and counts curriculum changes.
type RecordingNotifier struct {
	mu         sync.Mutex
	Users      []string
	Curriculum int
}

func (n *RecordingNotifier) SnapshotChanged(_ context.Context, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Users = append(n.Users, userID)
}

func (n *RecordingNotifier) CurriculumChanged(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Curriculum++
}

func (n *RecordingNotifier) CurriculumCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Curriculum
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Users)
}

// Logger records the messages logged at Warn level and above.
type Logger struct {
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func (l *Logger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *Logger) Debug(string, ...interface{})       {}
func (l *Logger) Info(string, ...interface{})        {}
func (l *Logger) Warn(msg string, _ ...interface{})  { l.record(msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.record(msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.record(msg) }

func (l *Logger) Logged() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Errors...)
}
