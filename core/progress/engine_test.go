package progress

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core/course"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time {
	return t0.Add(time.Duration(h) * time.Hour)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func track(id string, start *time.Time) course.Track {
	return course.Track{ID: id, Name: id, StartDate: start}
}

func task(id, trackID string, order int) course.Task {
	return course.Task{ID: id, TrackID: trackID, Order: order, CreatedAt: t0}
}

func done(taskID string, completedAt time.Time) TaskProgress {
	return TaskProgress{TaskID: taskID, Status: Completed, CompletedAt: ptr(completedAt), UpdatedAt: completedAt}
}

func active(taskID string, updatedAt time.Time) TaskProgress {
	return TaskProgress{TaskID: taskID, Status: InProgress, UpdatedAt: updatedAt}
}

func TestTaskProgressSet_Lookup(t *testing.T) {
	set := NewTaskProgressSet([]TaskProgress{done("a", t0)})
	assert.Equal(t, Completed, set.Lookup("a").Status)

	miss := set.Lookup("b")
	assert.Equal(t, NotStarted, miss.Status)
	assert.Equal(t, "b", miss.TaskID)
	assert.Equal(t, NotStarted, NewTrackProgressSet(nil).Lookup("w1").Status)
}

func TestTrackPercent(t *testing.T) {
	tasks := []course.Task{task("a", "w", 1), task("b", "w", 2), task("c", "w", 3)}
	tests := []struct {
		name     string
		tasks    []course.Task
		progress []TaskProgress
		want     int
	}{
		{name: "empty track", tasks: nil, want: 0},
		{name: "none done", tasks: tasks, want: 0},
		{name: "one of three", tasks: tasks, progress: []TaskProgress{done("a", t0), active("b", t0)}, want: 33},
		{name: "two of three", tasks: tasks, progress: []TaskProgress{done("a", t0), done("b", t0)}, want: 67},
		{name: "all done", tasks: tasks, progress: []TaskProgress{done("a", t0), done("b", t0), done("c", t0)}, want: 100},
		{name: "half rounds up", tasks: tasks[:2], progress: []TaskProgress{done("a", t0)}, want: 50},
		{name: "1 of 8 rounds up", tasks: []course.Task{
			task("a", "w", 1), task("b", "w", 2), task("c", "w", 3), task("d", "w", 4),
			task("e", "w", 5), task("f", "w", 6), task("g", "w", 7), task("h", "w", 8),
		}, progress: []TaskProgress{done("a", t0)}, want: 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrackPercent(tt.tasks, NewTaskProgressSet(tt.progress)); got != tt.want {
				t.Errorf("TrackPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrackPercent_Monotonic(t *testing.T) {
	tasks := []course.Task{task("a", "w", 1), task("b", "w", 2), task("c", "w", 3), task("d", "w", 4)}
	set := NewTaskProgressSet(nil)
	prev := TrackPercent(tasks, set)
	for _, tk := range tasks {
		set[tk.ID] = done(tk.ID, t0)
		got := TrackPercent(tasks, set)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, 100, prev)
}

func TestCurrentTrack(t *testing.T) {
	jan, feb := ptr(t0), ptr(t0.AddDate(0, 1, 0))
	tracks := []course.Track{track("w2", feb), track("w1", jan), track("undated", nil)}
	tasks := []course.Task{
		task("a", "w1", 1), task("b", "w1", 2),
		task("c", "w2", 1), task("d", "w2", 2),
		task("x", "ghost", 1),
	}

	tests := []struct {
		name     string
		tracks   []course.Track
		progress []TaskProgress
		want     string
		wantOk   bool
	}{
		{name: "no tracks", tracks: nil, want: "", wantOk: false},
		{name: "earliest start date", tracks: tracks, want: "w1", wantOk: true},
		{name: "undated sort last", tracks: []course.Track{track("a", nil), track("b", feb)}, want: "b", wantOk: true},
		{name: "undated tie on id", tracks: []course.Track{track("z", nil), track("m", nil)}, want: "m", wantOk: true},
		{
			name:     "latest in progress wins over completed",
			tracks:   tracks,
			progress: []TaskProgress{active("a", at(1)), done("c", at(5))},
			want:     "w1", wantOk: true,
		},
		{
			name:     "latest in progress",
			tracks:   tracks,
			progress: []TaskProgress{active("a", at(1)), active("c", at(2))},
			want:     "w2", wantOk: true,
		},
		{
			name:     "in progress tie on smaller task id",
			tracks:   tracks,
			progress: []TaskProgress{active("c", at(2)), active("b", at(2))},
			want:     "w1", wantOk: true,
		},
		{
			name:     "latest completed",
			tracks:   tracks,
			progress: []TaskProgress{done("a", at(1)), done("d", at(3))},
			want:     "w2", wantOk: true,
		},
		{
			name:     "completed tie on smaller task id",
			tracks:   tracks,
			progress: []TaskProgress{done("d", at(3)), done("a", at(3))},
			want:     "w1", wantOk: true,
		},
		{
			name:     "orphan progress ignored",
			tracks:   tracks,
			progress: []TaskProgress{active("x", at(9)), done("c", at(1))},
			want:     "w2", wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CurrentTrack(tt.tracks, tasks, NewTaskProgressSet(tt.progress))
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("CurrentTrack() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	completed := map[string]bool{"w1": true, "w2": true}
	tests := []struct {
		trackID string
		want    State
	}{
		{trackID: "w1", want: StateCompleted},
		{trackID: "w2", want: StateCurrent}, // current and completed: current wins
		{trackID: "w3", want: StateUpcoming},
	}
	for _, tt := range tests {
		t.Run(tt.trackID, func(t *testing.T) {
			if got := Classify(tt.trackID, "w2", completed); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextIncompleteTaskIndex(t *testing.T) {
	tasks := []course.Task{task("a", "w", 1), task("b", "w", 2), task("c", "w", 3)}
	tests := []struct {
		name     string
		tasks    []course.Task
		progress []TaskProgress
		want     int
	}{
		{name: "empty", tasks: nil, want: -1},
		{name: "nothing started", tasks: tasks, want: 0},
		{name: "first done, second active", tasks: tasks, progress: []TaskProgress{done("a", t0), active("b", t0)}, want: 1},
		{name: "gap", tasks: tasks, progress: []TaskProgress{done("a", t0), done("c", t0)}, want: 1},
		{name: "all done", tasks: tasks, progress: []TaskProgress{done("a", t0), done("b", t0), done("c", t0)}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextIncompleteTaskIndex(tt.tasks, NewTaskProgressSet(tt.progress)); got != tt.want {
				t.Errorf("NextIncompleteTaskIndex() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanCompleteTrack(t *testing.T) {
	tasks := []course.Task{task("a", "w1", 1), task("b", "w1", 2), task("c", "w2", 1)}
	tests := []struct {
		name     string
		trackID  string
		progress []TaskProgress
		want     bool
	}{
		{name: "empty track", trackID: "w3", want: false},
		{name: "empty track with progress elsewhere", trackID: "w3", progress: []TaskProgress{done("a", t0)}, want: false},
		{name: "partially done", trackID: "w1", progress: []TaskProgress{done("a", t0), active("b", t0)}, want: false},
		{name: "all done", trackID: "w1", progress: []TaskProgress{done("a", t0), done("b", t0)}, want: true},
		{name: "other track ignored", trackID: "w2", progress: []TaskProgress{done("c", t0)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanCompleteTrack(tt.trackID, tasks, NewTaskProgressSet(tt.progress)); got != tt.want {
				t.Errorf("CanCompleteTrack() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	jan, feb := ptr(t0), ptr(t0.AddDate(0, 1, 0))
	snap := Snapshot{
		UserID: "u1",
		Tracks: []course.Track{track("w2", feb), track("w1", jan), track("empty", nil)},
		Tasks: []course.Task{
			task("c", "w2", 1),
			task("b", "w1", 2), task("a", "w1", 1),
			task("x", "ghost", 1),
		},
		TaskProgress: []TaskProgress{done("a", at(1)), done("b", at(2)), done("x", at(3))},
	}

	t.Run("all tasks of the current track completed", func(t *testing.T) {
		sum := Derive(snap)

		assert.Equal(t, "u1", sum.UserID)
		assert.Equal(t, "w1", sum.CurrentTrackID)
		require.Len(t, sum.Tracks, 3)
		assert.Equal(t, "w1", sum.Tracks[0].ID)
		assert.Equal(t, "w2", sum.Tracks[1].ID)
		assert.Equal(t, "empty", sum.Tracks[2].ID)

		w1 := sum.Tracks[0]
		assert.Equal(t, StateCurrent, w1.State, "completion requires an explicit track record")
		assert.Equal(t, 100, w1.Percent)
		assert.Equal(t, -1, w1.NextTaskIndex)
		assert.True(t, w1.CanComplete)
		assert.False(t, w1.Completed)
		require.Len(t, w1.Tasks, 2)
		assert.Equal(t, "a", w1.Tasks[0].ID)
		assert.Equal(t, Completed, w1.Tasks[0].Status)

		empty := sum.Tracks[2]
		assert.Equal(t, 0, empty.Percent)
		assert.False(t, empty.CanComplete)
		assert.Equal(t, StateUpcoming, empty.State)

		// current track is done: fall back to the first incomplete task in schedule order
		require.NotNil(t, sum.CurrentTask)
		assert.Equal(t, "c", sum.CurrentTask.ID)
		assert.Equal(t, NotStarted, sum.CurrentTask.Status)

		assert.Equal(t, 1, sum.OrphanedTasks)
		assert.Equal(t, 2, sum.TasksCompleted)
		assert.Equal(t, 3, sum.TasksTotal)
		assert.Equal(t, 0, sum.TracksCompleted)
		assert.Equal(t, 3, sum.TracksTotal)
		assert.Equal(t, 67, sum.OverallPercent)
	})

	t.Run("explicitly completed track", func(t *testing.T) {
		s := snap
		s.TrackProgress = []TrackProgress{{TrackID: "w1", Status: Completed, CompletedAt: ptr(at(3))}}
		s.TaskProgress = append([]TaskProgress{active("c", at(4))}, snap.TaskProgress...)
		sum := Derive(s)

		assert.Equal(t, "w2", sum.CurrentTrackID)
		assert.Equal(t, StateCompleted, sum.Tracks[0].State)
		assert.True(t, sum.Tracks[0].Completed)
		assert.Equal(t, StateCurrent, sum.Tracks[1].State)
		assert.Equal(t, 1, sum.TracksCompleted)
		require.NotNil(t, sum.CurrentTask)
		assert.Equal(t, "c", sum.CurrentTask.ID)
		assert.Equal(t, InProgress, sum.CurrentTask.Status)
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.True(t, reflect.DeepEqual(Derive(snap), Derive(snap)))
	})

	t.Run("empty snapshot", func(t *testing.T) {
		sum := Derive(Snapshot{UserID: "u1"})
		assert.Equal(t, "", sum.CurrentTrackID)
		assert.Empty(t, sum.Tracks)
		assert.Nil(t, sum.CurrentTask)
		assert.Equal(t, 0, sum.OverallPercent)
	})

	t.Run("deadline text", func(t *testing.T) {
		s := Snapshot{
			UserID: "u1",
			Tracks: []course.Track{track("w1", jan)},
			Tasks:  []course.Task{task("a", "w1", 1), task("b", "w1", 2)},
			Now:    t0,
		}
		s.Tasks[0].Deadline = ptr(t0.Add(26 * time.Hour))
		sum := Derive(s)
		assert.Equal(t, "1d 2h remaining", sum.Tracks[0].Tasks[0].TimeRemaining)
		assert.Equal(t, "", sum.Tracks[0].Tasks[1].TimeRemaining)
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{NotStarted, InProgress, true},
		{NotStarted, Completed, false},
		{InProgress, Completed, true},
		{InProgress, NotStarted, true},
		{Completed, NotStarted, true},
		{Completed, InProgress, false},
		{InProgress, InProgress, true},
		{Status("done"), Status("done"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}
