package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
)

// DB is an in-memory store shared by the repositories of this package.
// One lock guards every table so cascading deletes stay consistent.
type DB struct {
	mu sync.RWMutex

	users         map[string]*user.User
	tracks        map[string]*course.Track
	tasks         map[string]*course.Task
	assignments   map[string]*course.Assignment
	taskProgress  map[string]*progress.TaskProgress  // {userID/taskID: }
	trackProgress map[string]*progress.TrackProgress // {userID/trackID: }
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		tracks:        make(map[string]*course.Track),
		tasks:         make(map[string]*course.Task),
		assignments:   make(map[string]*course.Assignment),
		taskProgress:  make(map[string]*progress.TaskProgress),
		trackProgress: make(map[string]*progress.TrackProgress),
	}
}

func newID() string {
	return uuid.New().String()
}

func progressKey(userID, id string) string {
	return userID + "/" + id
}

// deleteTaskCascade removes a task and every progress record on it; mu must be held.
func (db *DB) deleteTaskCascade(taskID string) {
	delete(db.tasks, taskID)
	for k, p := range db.taskProgress {
		if p.TaskID == taskID {
			delete(db.taskProgress, k)
		}
	}
}

// deleteTrackCascade removes a track with its tasks, progress records and assignments; mu must be held.
func (db *DB) deleteTrackCascade(trackID string) {
	delete(db.tracks, trackID)
	for id, t := range db.tasks {
		if t.TrackID == trackID {
			db.deleteTaskCascade(id)
		}
	}
	for k, p := range db.trackProgress {
		if p.TrackID == trackID {
			delete(db.trackProgress, k)
		}
	}
	for id, a := range db.assignments {
		if a.TrackID == trackID {
			delete(db.assignments, id)
		}
	}
}

// deleteUserCascade removes a user with its progress records and assignments; mu must be held.
func (db *DB) deleteUserCascade(userID string) bool {
	if _, ok := db.users[userID]; !ok {
		return false
	}
	delete(db.users, userID)
	for k, p := range db.taskProgress {
		if p.UserID == userID {
			delete(db.taskProgress, k)
		}
	}
	for k, p := range db.trackProgress {
		if p.UserID == userID {
			delete(db.trackProgress, k)
		}
	}
	for id, a := range db.assignments {
		if a.AdminID == userID {
			delete(db.assignments, id)
		}
	}
	return true
}
