package progress

import (
	"time"

	"github.com/0xDevansh/aries-week/core/course"
)

// Status is the progress of a user on a task or a track.
type Status string

// Progress statuses
const (
	NotStarted Status = "not_started"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

var Statuses = []Status{NotStarted, InProgress, Completed}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// TaskProgress is the progress of a user on a task; CompletedAt is set iff Status is Completed.
// NotStarted is never stored.
type TaskProgress struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id"`
	TaskID      string     `json:"task_id"`
	Status      Status     `json:"status"`
	Notes       string     `json:"notes"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TrackProgress is the progress of a user on a track. A track is completed only through one of these.
type TrackProgress struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id"`
	TrackID     string     `json:"track_id"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskProgressSet indexes TaskProgress records by task ID.
type TaskProgressSet map[string]TaskProgress

func NewTaskProgressSet(records []TaskProgress) TaskProgressSet {
	set := make(TaskProgressSet, len(records))
	for _, p := range records {
		set[p.TaskID] = p
	}
	return set
}

// Lookup returns the progress on taskID; a missing record is NotStarted.
func (set TaskProgressSet) Lookup(taskID string) TaskProgress {
	if p, ok := set[taskID]; ok {
		return p
	}
	return TaskProgress{TaskID: taskID, Status: NotStarted}
}

func (set TaskProgressSet) IsCompleted(taskID string) bool {
	return set.Lookup(taskID).Status == Completed
}

// TrackProgressSet indexes TrackProgress records by track ID.
type TrackProgressSet map[string]TrackProgress

func NewTrackProgressSet(records []TrackProgress) TrackProgressSet {
	set := make(TrackProgressSet, len(records))
	for _, p := range records {
		set[p.TrackID] = p
	}
	return set
}

// Lookup returns the progress on trackID; a missing record is NotStarted.
func (set TrackProgressSet) Lookup(trackID string) TrackProgress {
	if p, ok := set[trackID]; ok {
		return p
	}
	return TrackProgress{TrackID: trackID, Status: NotStarted}
}

// CompletedIDs returns the set of explicitly completed track IDs.
func (set TrackProgressSet) CompletedIDs() map[string]bool {
	ids := make(map[string]bool, len(set))
	for id, p := range set {
		if p.Status == Completed {
			ids[id] = true
		}
	}
	return ids
}

// Snapshot is everything Derive needs to compute a user's dashboard.
type Snapshot struct {
	UserID        string
	Tracks        []course.Track
	Tasks         []course.Task
	TaskProgress  []TaskProgress
	TrackProgress []TrackProgress
	// Now drives the deadline texts; none are rendered when zero.
	Now time.Time
}
