package progress

import (
	"time"

	"github.com/0xDevansh/aries-week/core/course"
)

// State is how a track is presented to a user.
type State string

// Track states
const (
	StateUpcoming  State = "upcoming"
	StateCurrent   State = "current"
	StateCompleted State = "completed"
)

type (
	TaskView struct {
		course.Task
		Status        Status     `json:"status"`
		Notes         string     `json:"notes"`
		CompletedAt   *time.Time `json:"completed_at"`
		TimeRemaining string     `json:"time_remaining,omitempty"`
	}

	TrackView struct {
		course.Track
		State         State      `json:"state"`
		Percent       int        `json:"percent"`
		Tasks         []TaskView `json:"tasks"`
		NextTaskIndex int        `json:"next_task_index"` // -1 when all tasks are completed
		CanComplete   bool       `json:"can_complete"`
		Completed     bool       `json:"completed"` // explicit TrackProgress
	}

	Summary struct {
		UserID         string      `json:"user_id"`
		CurrentTrackID string      `json:"current_track_id"`
		Tracks         []TrackView `json:"tracks"`
		CurrentTask    *TaskView   `json:"current_task"`

		TasksCompleted  int `json:"tasks_completed"`
		TasksTotal      int `json:"tasks_total"`
		TracksCompleted int `json:"tracks_completed"`
		TracksTotal     int `json:"tracks_total"`
		OverallPercent  int `json:"overall_percent"`
		OrphanedTasks   int `json:"orphaned_tasks"`
	}
)

// percent is 100*part/total rounded half up, 0 when total is 0.
func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// TrackPercent returns the rounded share of tasks completed; an empty track is at 0.
func TrackPercent(tasks []course.Task, progress TaskProgressSet) int {
	var done int
	for _, t := range tasks {
		if progress.IsCompleted(t.ID) {
			done++
		}
	}
	return percent(done, len(tasks))
}

// CurrentTrack picks the track a user is working on:
// the track of the most recently updated in-progress task, else the track of the most recently
// completed task, else the first scheduled track. Progress on tasks of unknown tracks is ignored.
// ok is false only when there are no tracks.
func CurrentTrack(tracks []course.Track, tasks []course.Task, progress TaskProgressSet) (string, bool) {
	if len(tracks) == 0 {
		return "", false
	}

	known := make(map[string]bool, len(tracks))
	for _, tr := range tracks {
		known[tr.ID] = true
	}
	trackOf := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if known[t.TrackID] {
			trackOf[t.ID] = t.TrackID
		}
	}

	var (
		latestActive, latestDone         *TaskProgress
		latestActiveTrack, latestDoneTrk string
	)
	for taskID, p := range progress {
		trackID, ok := trackOf[taskID]
		if !ok {
			continue
		}
		p := p
		switch p.Status {
		case InProgress:
			if latestActive == nil || later(p.UpdatedAt, taskID, latestActive.UpdatedAt, latestActive.TaskID) {
				latestActive, latestActiveTrack = &p, trackID
			}
		case Completed:
			if p.CompletedAt == nil {
				continue
			}
			if latestDone == nil || later(*p.CompletedAt, taskID, *latestDone.CompletedAt, latestDone.TaskID) {
				latestDone, latestDoneTrk = &p, trackID
			}
		}
	}

	switch {
	case latestActive != nil:
		return latestActiveTrack, true
	case latestDone != nil:
		return latestDoneTrk, true
	}

	first := tracks[0]
	for _, tr := range tracks[1:] {
		if course.TrackLess(tr, first) {
			first = tr
		}
	}
	return first.ID, true
}

// later reports whether (at, id) wins over (otherAt, otherID): the later time, then the smaller id.
func later(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id < otherID
}

// Classify returns the state of trackID; current wins over completed, which wins over upcoming.
func Classify(trackID, currentID string, completedIDs map[string]bool) State {
	switch {
	case trackID == currentID:
		return StateCurrent
	case completedIDs[trackID]:
		return StateCompleted
	default:
		return StateUpcoming
	}
}

// NextIncompleteTaskIndex returns the index of the first task that is not completed, or -1.
func NextIncompleteTaskIndex(tasksInOrder []course.Task, progress TaskProgressSet) int {
	for i, t := range tasksInOrder {
		if !progress.IsCompleted(t.ID) {
			return i
		}
	}
	return -1
}

// CanCompleteTrack reports whether trackID has tasks and all of them are completed.
func CanCompleteTrack(trackID string, tasks []course.Task, progress TaskProgressSet) bool {
	var n int
	for _, t := range tasks {
		if t.TrackID != trackID {
			continue
		}
		if !progress.IsCompleted(t.ID) {
			return false
		}
		n++
	}
	return n > 0
}

// Derive computes the dashboard of snap.UserID. It never fails: tasks of unknown tracks
// are counted in OrphanedTasks and left out of everything else.
func Derive(snap Snapshot) Summary {
	sum := Summary{
		UserID:      snap.UserID,
		Tracks:      make([]TrackView, 0, len(snap.Tracks)),
		TracksTotal: len(snap.Tracks),
	}

	tracks := make([]course.Track, len(snap.Tracks))
	copy(tracks, snap.Tracks)
	course.SortTracks(tracks)

	known := make(map[string]bool, len(tracks))
	for _, tr := range tracks {
		known[tr.ID] = true
	}
	tasks := make([]course.Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if !known[t.TrackID] {
			sum.OrphanedTasks++
			continue
		}
		tasks = append(tasks, t)
	}

	taskProgress := NewTaskProgressSet(snap.TaskProgress)
	completedIDs := NewTrackProgressSet(snap.TrackProgress).CompletedIDs()
	sum.CurrentTrackID, _ = CurrentTrack(tracks, tasks, taskProgress)

	for _, tr := range tracks {
		ordered := course.TasksOf(tr.ID, tasks)
		view := TrackView{
			Track:         tr,
			State:         Classify(tr.ID, sum.CurrentTrackID, completedIDs),
			Percent:       TrackPercent(ordered, taskProgress),
			Tasks:         make([]TaskView, 0, len(ordered)),
			NextTaskIndex: NextIncompleteTaskIndex(ordered, taskProgress),
			CanComplete:   CanCompleteTrack(tr.ID, ordered, taskProgress),
			Completed:     completedIDs[tr.ID],
		}
		for _, t := range ordered {
			view.Tasks = append(view.Tasks, newTaskView(t, taskProgress.Lookup(t.ID), snap.Now))
			sum.TasksTotal++
			if taskProgress.IsCompleted(t.ID) {
				sum.TasksCompleted++
			}
		}
		if view.Completed {
			sum.TracksCompleted++
		}

		if tr.ID == sum.CurrentTrackID && view.NextTaskIndex >= 0 {
			next := view.Tasks[view.NextTaskIndex]
			sum.CurrentTask = &next
		}
		sum.Tracks = append(sum.Tracks, view)
	}

	if sum.CurrentTask == nil {
		sum.CurrentTask = firstIncomplete(sum.Tracks)
	}
	sum.OverallPercent = percent(sum.TasksCompleted, sum.TasksTotal)
	return sum
}

// firstIncomplete returns the first incomplete task across views, in schedule order.
func firstIncomplete(views []TrackView) *TaskView {
	for _, v := range views {
		if v.NextTaskIndex >= 0 {
			tv := v.Tasks[v.NextTaskIndex]
			return &tv
		}
	}
	return nil
}

func newTaskView(t course.Task, p TaskProgress, now time.Time) TaskView {
	tv := TaskView{
		Task:        t,
		Status:      p.Status,
		Notes:       p.Notes,
		CompletedAt: p.CompletedAt,
	}
	if t.Deadline != nil && !now.IsZero() {
		tv.TimeRemaining = course.TimeRemaining(*t.Deadline, now)
	}
	return tv
}
