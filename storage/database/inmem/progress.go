package inmemdb

import (
	"context"
	"sort"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) QueryTaskProgress(_ context.Context, userID string, _ ...core.DBExecutor) ([]progress.TaskProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]progress.TaskProgress, 0)
	for _, p := range repo.db.taskProgress {
		if p.UserID == userID {
			records = append(records, *p)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })
	return records, nil
}

func (repo *progressRepository) GetTaskProgress(_ context.Context, userID, taskID string, _ ...core.DBExecutor) (progress.TaskProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.taskProgress[progressKey(userID, taskID)]; ok {
		return *p, nil
	}
	return progress.TaskProgress{}, progress.ErrNotFound
}

func (repo *progressRepository) UpsertTaskProgress(_ context.Context, p progress.TaskProgress, _ ...core.DBExecutor) (progress.TaskProgress, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := progressKey(p.UserID, p.TaskID)
	if existing, ok := repo.db.taskProgress[key]; ok {
		p.ID = existing.ID
	} else {
		p.ID = newID()
	}
	stored := p
	repo.db.taskProgress[key] = &stored
	return p, nil
}

func (repo *progressRepository) DeleteTaskProgress(_ context.Context, userID, taskID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.taskProgress, progressKey(userID, taskID))
	return nil
}

func (repo *progressRepository) QueryTrackProgress(_ context.Context, userID string, _ ...core.DBExecutor) ([]progress.TrackProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]progress.TrackProgress, 0)
	for _, p := range repo.db.trackProgress {
		if p.UserID == userID {
			records = append(records, *p)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TrackID < records[j].TrackID })
	return records, nil
}

func (repo *progressRepository) GetTrackProgress(_ context.Context, userID, trackID string, _ ...core.DBExecutor) (progress.TrackProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.trackProgress[progressKey(userID, trackID)]; ok {
		return *p, nil
	}
	return progress.TrackProgress{}, progress.ErrNotFound
}

func (repo *progressRepository) UpsertTrackProgress(_ context.Context, p progress.TrackProgress, _ ...core.DBExecutor) (progress.TrackProgress, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := progressKey(p.UserID, p.TrackID)
	if existing, ok := repo.db.trackProgress[key]; ok {
		p.ID = existing.ID
	} else {
		p.ID = newID()
	}
	stored := p
	repo.db.trackProgress[key] = &stored
	return p, nil
}

func (repo *progressRepository) DeleteTrackProgress(_ context.Context, userID, trackID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.trackProgress, progressKey(userID, trackID))
	return nil
}
