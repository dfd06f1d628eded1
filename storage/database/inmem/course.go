package inmemdb

import (
	"context"
	"sort"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateTrack(_ context.Context, t course.Track, _ ...core.DBExecutor) (course.Track, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	stored := t
	repo.db.tracks[t.ID] = &stored
	return t, nil
}

func (repo *courseRepository) GetTrack(_ context.Context, id string, _ ...core.DBExecutor) (course.Track, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tracks[id]; ok {
		return *t, nil
	}
	return course.Track{}, course.ErrTrackNotFound
}

func (repo *courseRepository) QueryTracks(_ context.Context, filter *course.TrackFilter, _ ...core.DBExecutor) ([]course.Track, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids map[string]bool
	if filter != nil && filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	tracks := make([]course.Track, 0, len(repo.db.tracks))
	for _, t := range repo.db.tracks {
		if ids != nil && !ids[t.ID] {
			continue
		}
		if filter != nil && filter.Name != "" && t.Name != filter.Name {
			continue
		}
		tracks = append(tracks, *t)
	}
	course.SortTracks(tracks)
	return tracks, nil
}

func (repo *courseRepository) UpdateTrack(_ context.Context, t course.Track, _ ...core.DBExecutor) (course.Track, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tracks[t.ID]; !ok {
		return course.Track{}, course.ErrTrackNotFound
	}
	stored := t
	repo.db.tracks[t.ID] = &stored
	return t, nil
}

func (repo *courseRepository) DeleteTrack(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tracks[id]; !ok {
		return course.ErrTrackNotFound
	}
	repo.db.deleteTrackCascade(id)
	return nil
}

func (repo *courseRepository) CreateTask(_ context.Context, t course.Task, _ ...core.DBExecutor) (course.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tracks[t.TrackID]; !ok {
		return course.Task{}, course.ErrTrackNotFound
	}
	t.ID = newID()
	stored := t
	repo.db.tasks[t.ID] = &stored
	return t, nil
}

func (repo *courseRepository) GetTask(_ context.Context, id string, _ ...core.DBExecutor) (course.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return *t, nil
	}
	return course.Task{}, course.ErrTaskNotFound
}

func (repo *courseRepository) QueryTasks(_ context.Context, filter *course.TaskFilter, _ ...core.DBExecutor) ([]course.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var trackIDs map[string]bool
	if filter != nil && filter.TrackIDs != nil {
		trackIDs = make(map[string]bool, len(filter.TrackIDs))
		for _, id := range filter.TrackIDs {
			trackIDs[id] = true
		}
	}

	tasks := make([]course.Task, 0, len(repo.db.tasks))
	for _, t := range repo.db.tasks {
		if trackIDs == nil || trackIDs[t.TrackID] {
			tasks = append(tasks, *t)
		}
	}
	// group by track, then track order
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].TrackID != tasks[j].TrackID {
			return tasks[i].TrackID < tasks[j].TrackID
		}
		return course.TaskLess(tasks[i], tasks[j])
	})
	return tasks, nil
}

func (repo *courseRepository) UpdateTask(_ context.Context, t course.Task, _ ...core.DBExecutor) (course.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[t.ID]; !ok {
		return course.Task{}, course.ErrTaskNotFound
	}
	stored := t
	repo.db.tasks[t.ID] = &stored
	return t, nil
}

func (repo *courseRepository) DeleteTask(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[id]; !ok {
		return course.ErrTaskNotFound
	}
	repo.db.deleteTaskCascade(id)
	return nil
}

func (repo *courseRepository) ToggleAssignment(_ context.Context, adminID, trackID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, a := range repo.db.assignments {
		if a.AdminID == adminID && a.TrackID == trackID {
			delete(repo.db.assignments, id)
			return false, nil
		}
	}
	a := &course.Assignment{
		ID:        newID(),
		AdminID:   adminID,
		TrackID:   trackID,
		CreatedAt: core.NowFunc(),
	}
	repo.db.assignments[a.ID] = a
	return true, nil
}

func (repo *courseRepository) QueryAssignedTrackIDs(_ context.Context, adminID string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for _, a := range repo.db.assignments {
		if a.AdminID == adminID {
			ids = append(ids, a.TrackID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
