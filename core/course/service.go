package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/user"
)

var (
	// errors
	ErrTrackNotFound = errors.New("track not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotAnAdmin    = errors.New("tracks can only be assigned to admins")
)

type (
	// Notifier is told about every committed curriculum write.
	Notifier interface {
		CurriculumChanged(ctx context.Context)
	}

	Repository interface {
		CreateTrack(ctx context.Context, t Track, exec ...core.DBExecutor) (Track, error)
		GetTrack(ctx context.Context, id string, exec ...core.DBExecutor) (Track, error)
		// QueryTracks returns the tracks matching filter, in schedule order.
		QueryTracks(ctx context.Context, filter *TrackFilter, exec ...core.DBExecutor) ([]Track, error)
		UpdateTrack(ctx context.Context, t Track, exec ...core.DBExecutor) (Track, error)
		// DeleteTrack also deletes the tasks, progress rows and assignments of the track.
		DeleteTrack(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error)
		// QueryTasks returns the tasks matching filter, in track order.
		QueryTasks(ctx context.Context, filter *TaskFilter, exec ...core.DBExecutor) ([]Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		// DeleteTask also deletes the progress rows of the task.
		DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error

		// ToggleAssignment assigns trackID to adminID, or unassigns it if it already was.
		// It reports whether the track is assigned after the call.
		ToggleAssignment(ctx context.Context, adminID, trackID string, exec ...core.DBExecutor) (bool, error)
		QueryAssignedTrackIDs(ctx context.Context, adminID string, exec ...core.DBExecutor) ([]string, error)
	}

	Service interface {
		CreateTrack(ctx context.Context, nt NewTrack) (Track, error)
		GetTrack(ctx context.Context, id string) (Track, error)
		// ListTracks returns every track, in schedule order.
		ListTracks(ctx context.Context) ([]Track, error)
		// ListTracksFor returns the tracks admin manages: all of them for owners, the assigned ones otherwise.
		ListTracksFor(ctx context.Context, admin user.User) ([]Track, error)
		CanManageTrack(ctx context.Context, admin user.User, trackID string) (bool, error)
		UpdateTrack(ctx context.Context, t Track, ut UpdateTrack) (Track, error)
		DeleteTrack(ctx context.Context, id string) error

		CreateTask(ctx context.Context, trackID string, nt NewTask) (Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		// ListTasks returns the tasks of trackID in track order; an empty trackID lists all tasks.
		ListTasks(ctx context.Context, trackID string) ([]Task, error)
		UpdateTask(ctx context.Context, t Task, ut UpdateTask) (Task, error)
		DeleteTask(ctx context.Context, id string) error

		ToggleAssignment(ctx context.Context, admin user.User, trackID string) (bool, error)
		AssignedTrackIDs(ctx context.Context, adminID string) ([]string, error)

		// RefreshStatuses persists the date-derived status of every track whose stored status differs.
		// It returns the IDs of the updated tracks.
		RefreshStatuses(ctx context.Context, now time.Time) ([]string, error)
		Import(ctx context.Context, cur Curriculum) (ImportResult, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		notifier Notifier
	}
)

var _ Service = (*service)(nil) // interface compliance check

// NewService returns the course Service; db may be nil when repo is not SQL backed,
// notifier may be nil when nobody listens for curriculum changes.
func NewService(db core.DB, repo Repository, notifier Notifier) Service {
	return &service{db: db, repo: repo, notifier: notifier}
}

func (svc *service) notify(ctx context.Context) {
	if svc.notifier != nil {
		svc.notifier.CurriculumChanged(ctx)
	}
}

func (svc *service) CreateTrack(ctx context.Context, nt NewTrack) (Track, error) {
	now := core.NowFunc()
	t := Track{
		Name:        nt.Name,
		Description: nt.Description,
		Status:      nt.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nt.StartDate != nil {
		t.StartDate = core.TimePtr(*nt.StartDate)
	}
	if nt.EndDate != nil {
		t.EndDate = core.TimePtr(*nt.EndDate)
	}
	t, err := svc.repo.CreateTrack(ctx, t)
	if err != nil {
		return Track{}, errors.Wrap(err, "creating track")
	}
	svc.notify(ctx)
	return t, nil
}

func (svc *service) GetTrack(ctx context.Context, id string) (Track, error) {
	return svc.repo.GetTrack(ctx, id)
}

func (svc *service) ListTracks(ctx context.Context) ([]Track, error) {
	tracks, err := svc.repo.QueryTracks(ctx, nil)
	return tracks, errors.Wrap(err, "querying tracks")
}

func (svc *service) ListTracksFor(ctx context.Context, admin user.User) ([]Track, error) {
	if admin.IsOwner() {
		return svc.ListTracks(ctx)
	}
	if !admin.IsAdmin() {
		return []Track{}, nil
	}
	ids, err := svc.repo.QueryAssignedTrackIDs(ctx, admin.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assigned tracks")
	}
	if len(ids) == 0 {
		return []Track{}, nil
	}
	tracks, err := svc.repo.QueryTracks(ctx, &TrackFilter{IDs: ids})
	return tracks, errors.Wrap(err, "querying tracks")
}

func (svc *service) CanManageTrack(ctx context.Context, admin user.User, trackID string) (bool, error) {
	if admin.IsOwner() {
		return true, nil
	}
	if !admin.IsAdmin() {
		return false, nil
	}
	ids, err := svc.repo.QueryAssignedTrackIDs(ctx, admin.ID)
	if err != nil {
		return false, errors.Wrap(err, "querying assigned tracks")
	}
	for _, id := range ids {
		if id == trackID {
			return true, nil
		}
	}
	return false, nil
}

func (svc *service) UpdateTrack(ctx context.Context, t Track, ut UpdateTrack) (Track, error) {
	t = ut.Apply(t)
	t.UpdatedAt = core.NowFunc()
	t, err := svc.repo.UpdateTrack(ctx, t)
	if err != nil {
		return Track{}, errors.Wrap(err, "updating track")
	}
	svc.notify(ctx)
	return t, nil
}

func (svc *service) DeleteTrack(ctx context.Context, id string) error {
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		return svc.repo.DeleteTrack(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	svc.notify(ctx)
	return nil
}

func (svc *service) CreateTask(ctx context.Context, trackID string, nt NewTask) (Task, error) {
	if _, err := svc.repo.GetTrack(ctx, trackID); err != nil {
		return Task{}, err
	}
	now := core.NowFunc()
	t := Task{
		TrackID:      trackID,
		Name:         nt.Name,
		Caption:      nt.Caption,
		ResourcesURL: nt.ResourcesURL,
		Order:        nt.Order,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if nt.Deadline != nil {
		t.Deadline = core.TimePtr(*nt.Deadline)
	}
	t, err := svc.repo.CreateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}
	svc.notify(ctx)
	return t, nil
}

func (svc *service) GetTask(ctx context.Context, id string) (Task, error) {
	return svc.repo.GetTask(ctx, id)
}

func (svc *service) ListTasks(ctx context.Context, trackID string) ([]Task, error) {
	var filter *TaskFilter
	if trackID != "" {
		filter = &TaskFilter{TrackIDs: []string{trackID}}
	}
	tasks, err := svc.repo.QueryTasks(ctx, filter)
	return tasks, errors.Wrap(err, "querying tasks")
}

func (svc *service) UpdateTask(ctx context.Context, t Task, ut UpdateTask) (Task, error) {
	t = ut.Apply(t)
	t.UpdatedAt = core.NowFunc()
	t, err := svc.repo.UpdateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "updating task")
	}
	svc.notify(ctx)
	return t, nil
}

func (svc *service) DeleteTask(ctx context.Context, id string) error {
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		return svc.repo.DeleteTask(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	svc.notify(ctx)
	return nil
}

func (svc *service) ToggleAssignment(ctx context.Context, admin user.User, trackID string) (bool, error) {
	if !admin.IsAdmin() {
		return false, ErrNotAnAdmin
	}
	if _, err := svc.repo.GetTrack(ctx, trackID); err != nil {
		return false, err
	}
	assigned, err := svc.repo.ToggleAssignment(ctx, admin.ID, trackID)
	return assigned, errors.Wrap(err, "toggling assignment")
}

func (svc *service) AssignedTrackIDs(ctx context.Context, adminID string) ([]string, error) {
	ids, err := svc.repo.QueryAssignedTrackIDs(ctx, adminID)
	return ids, errors.Wrap(err, "querying assigned tracks")
}

func (svc *service) RefreshStatuses(ctx context.Context, now time.Time) ([]string, error) {
	tracks, err := svc.repo.QueryTracks(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying tracks")
	}

	updated := make([]string, 0)
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		for _, t := range tracks {
			status := DeriveStatus(t, now)
			if status == t.Status {
				continue
			}
			t.Status = status
			t.UpdatedAt = now.UTC()
			if _, err := svc.repo.UpdateTrack(ctx, t, exec); err != nil {
				return errors.Wrapf(err, "updating status of track %s", t.ID)
			}
			updated = append(updated, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(updated) > 0 {
		svc.notify(ctx)
	}
	return updated, nil
}
