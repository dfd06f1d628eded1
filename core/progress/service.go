package progress

import (
	"bytes"
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("progress not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTrackIncomplete   = errors.New("all tasks of the track must be completed first")
	ErrTrackUpcoming     = errors.New("this track has not started yet")
	ErrInvalidStatus     = errors.New("invalid progress status")
)

type (
	// Notifier is told about every committed progress write of a user.
	Notifier interface {
		SnapshotChanged(ctx context.Context, userID string)
	}

	Repository interface {
		QueryTaskProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]TaskProgress, error)
		// GetTaskProgress returns ErrNotFound when the user has no record for taskID.
		GetTaskProgress(ctx context.Context, userID, taskID string, exec ...core.DBExecutor) (TaskProgress, error)
		// UpsertTaskProgress creates or replaces the (UserID, TaskID) record.
		UpsertTaskProgress(ctx context.Context, p TaskProgress, exec ...core.DBExecutor) (TaskProgress, error)
		DeleteTaskProgress(ctx context.Context, userID, taskID string, exec ...core.DBExecutor) error

		QueryTrackProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]TrackProgress, error)
		// GetTrackProgress returns ErrNotFound when the user has no record for trackID.
		GetTrackProgress(ctx context.Context, userID, trackID string, exec ...core.DBExecutor) (TrackProgress, error)
		// UpsertTrackProgress creates or replaces the (UserID, TrackID) record.
		UpsertTrackProgress(ctx context.Context, p TrackProgress, exec ...core.DBExecutor) (TrackProgress, error)
		DeleteTrackProgress(ctx context.Context, userID, trackID string, exec ...core.DBExecutor) error
	}

	Service interface {
		Snapshot(ctx context.Context, userID string) (Snapshot, error)
		Dashboard(ctx context.Context, userID string) (Summary, error)
		// SetTaskStatus moves a task of userID to status; nil notes keep the stored ones.
		SetTaskStatus(ctx context.Context, userID, taskID string, status Status, notes *string) (TaskProgress, error)
		SetTrackStatus(ctx context.Context, userID, trackID string, status Status) (TrackProgress, error)
		// CompleteWeek completes trackID and starts the first task of the next incomplete track.
		// It returns the ID of that track, or "" when none is left.
		CompleteWeek(ctx context.Context, userID, trackID string) (string, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		courseSvc course.Service
		userSvc   user.Service
		mailSvc   core.EmailService
		notifier  Notifier
	}
)

var _ Service = (*service)(nil) // interface compliance check

// NewService returns the progress Service; db may be nil when repo is not SQL backed
// and notifier may be nil when nobody listens.
func NewService(
	db core.DB,
	repo Repository,
	courseSvc course.Service,
	userSvc user.Service,
	mailSvc core.EmailService,
	notifier Notifier,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		courseSvc: courseSvc,
		userSvc:   userSvc,
		mailSvc:   mailSvc,
		notifier:  notifier,
	}
}

func (svc *service) notify(ctx context.Context, userID string) {
	if svc.notifier != nil {
		svc.notifier.SnapshotChanged(ctx, userID)
	}
}

func (svc *service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	tracks, err := svc.courseSvc.ListTracks(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	tasks, err := svc.courseSvc.ListTasks(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	taskProgress, err := svc.repo.QueryTaskProgress(ctx, userID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "querying task progress")
	}
	trackProgress, err := svc.repo.QueryTrackProgress(ctx, userID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "querying track progress")
	}
	return Snapshot{
		UserID:        userID,
		Tracks:        tracks,
		Tasks:         tasks,
		TaskProgress:  taskProgress,
		TrackProgress: trackProgress,
		Now:           core.NowFunc(),
	}, nil
}

func (svc *service) Dashboard(ctx context.Context, userID string) (Summary, error) {
	snap, err := svc.Snapshot(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Derive(snap), nil
}

func (svc *service) getTaskProgress(ctx context.Context, userID, taskID string, exec core.DBExecutor) (TaskProgress, error) {
	p, err := svc.repo.GetTaskProgress(ctx, userID, taskID, exec)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return TaskProgress{UserID: userID, TaskID: taskID, Status: NotStarted}, nil
		}
		return TaskProgress{}, errors.Wrap(err, "getting task progress")
	}
	return p, nil
}

func (svc *service) getTrackProgress(ctx context.Context, userID, trackID string, exec core.DBExecutor) (TrackProgress, error) {
	p, err := svc.repo.GetTrackProgress(ctx, userID, trackID, exec)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return TrackProgress{UserID: userID, TrackID: trackID, Status: NotStarted}, nil
		}
		return TrackProgress{}, errors.Wrap(err, "getting track progress")
	}
	return p, nil
}

func (svc *service) SetTaskStatus(ctx context.Context, userID, taskID string, status Status, notes *string) (TaskProgress, error) {
	if !status.IsValid() {
		return TaskProgress{}, ErrInvalidStatus
	}
	if _, err := svc.courseSvc.GetTask(ctx, taskID); err != nil {
		return TaskProgress{}, err
	}

	var (
		res     TaskProgress
		changed bool
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		res, changed, err = svc.setTaskStatus(ctx, userID, taskID, status, notes, exec)
		return err
	})
	if err != nil {
		return TaskProgress{}, err
	}
	if changed {
		svc.notify(ctx, userID)
	}
	return res, nil
}

func (svc *service) setTaskStatus(
	ctx context.Context,
	userID, taskID string,
	status Status,
	notes *string,
	exec core.DBExecutor,
) (TaskProgress, bool, error) {
	cur, err := svc.getTaskProgress(ctx, userID, taskID, exec)
	if err != nil {
		return TaskProgress{}, false, err
	}

	if cur.Status == status {
		// only notes may change; updated_at is kept so the current track does not move
		if status == NotStarted || notes == nil || *notes == cur.Notes {
			return cur, false, nil
		}
		cur.Notes = *notes
		p, err := svc.repo.UpsertTaskProgress(ctx, cur, exec)
		return p, err == nil, errors.Wrap(err, "saving task notes")
	}

	if !CanTransition(cur.Status, status) {
		return TaskProgress{}, false, ErrInvalidTransition
	}

	if status == NotStarted {
		if err = svc.repo.DeleteTaskProgress(ctx, userID, taskID, exec); err != nil {
			return TaskProgress{}, false, errors.Wrap(err, "deleting task progress")
		}
		return TaskProgress{UserID: userID, TaskID: taskID, Status: NotStarted}, true, nil
	}

	now := core.NowFunc()
	p := cur
	p.Status = status
	p.UpdatedAt = now
	p.CompletedAt = nil
	if status == Completed {
		p.CompletedAt = &now
	}
	if notes != nil {
		p.Notes = *notes
	}
	p, err = svc.repo.UpsertTaskProgress(ctx, p, exec)
	return p, err == nil, errors.Wrap(err, "saving task progress")
}

func (svc *service) SetTrackStatus(ctx context.Context, userID, trackID string, status Status) (TrackProgress, error) {
	if !status.IsValid() {
		return TrackProgress{}, ErrInvalidStatus
	}
	track, err := svc.courseSvc.GetTrack(ctx, trackID)
	if err != nil {
		return TrackProgress{}, err
	}

	var (
		res     TrackProgress
		changed bool
	)
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		res, changed, err = svc.setTrackStatus(ctx, userID, track, status, exec)
		return err
	})
	if err != nil {
		return TrackProgress{}, err
	}
	if changed {
		if status == Completed {
			svc.sendTrackCompletedMail(ctx, userID, track)
		}
		svc.notify(ctx, userID)
	}
	return res, nil
}

func (svc *service) setTrackStatus(
	ctx context.Context,
	userID string,
	track course.Track,
	status Status,
	exec core.DBExecutor,
) (TrackProgress, bool, error) {
	cur, err := svc.getTrackProgress(ctx, userID, track.ID, exec)
	if err != nil {
		return TrackProgress{}, false, err
	}
	if cur.Status == status {
		return cur, false, nil
	}

	switch status {
	case NotStarted:
		if err = svc.repo.DeleteTrackProgress(ctx, userID, track.ID, exec); err != nil {
			return TrackProgress{}, false, errors.Wrap(err, "deleting track progress")
		}
		return TrackProgress{UserID: userID, TrackID: track.ID, Status: NotStarted}, true, nil

	case InProgress:
		if track.Status == course.StatusUpcoming {
			return TrackProgress{}, false, ErrTrackUpcoming
		}

	case Completed:
		tasks, err := svc.courseSvc.ListTasks(ctx, track.ID)
		if err != nil {
			return TrackProgress{}, false, err
		}
		records, err := svc.repo.QueryTaskProgress(ctx, userID, exec)
		if err != nil {
			return TrackProgress{}, false, errors.Wrap(err, "querying task progress")
		}
		if !CanCompleteTrack(track.ID, tasks, NewTaskProgressSet(records)) {
			return TrackProgress{}, false, ErrTrackIncomplete
		}
	}

	now := core.NowFunc()
	p := cur
	p.Status = status
	p.UpdatedAt = now
	p.CompletedAt = nil
	if status == Completed {
		p.CompletedAt = &now
	}
	p, err = svc.repo.UpsertTrackProgress(ctx, p, exec)
	return p, err == nil, errors.Wrap(err, "saving track progress")
}

func (svc *service) CompleteWeek(ctx context.Context, userID, trackID string) (string, error) {
	track, err := svc.courseSvc.GetTrack(ctx, trackID)
	if err != nil {
		return "", err
	}
	tracks, err := svc.courseSvc.ListTracks(ctx)
	if err != nil {
		return "", err
	}
	course.SortTracks(tracks)

	var (
		nextID    string
		completed bool
	)
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if _, completed, err = svc.setTrackStatus(ctx, userID, track, Completed, exec); err != nil {
			return err
		}

		next, ok, err := svc.nextTrack(ctx, userID, track, tracks, exec)
		if err != nil || !ok {
			return err
		}
		nextID = next.ID
		return svc.startFirstTask(ctx, userID, next.ID, exec)
	})
	if err != nil {
		return "", err
	}

	if completed {
		svc.sendTrackCompletedMail(ctx, userID, track)
	}
	svc.notify(ctx, userID)
	return nextID, nil
}

// nextTrack returns the first track scheduled after current that the user has not completed.
func (svc *service) nextTrack(
	ctx context.Context,
	userID string,
	current course.Track,
	sortedTracks []course.Track,
	exec core.DBExecutor,
) (course.Track, bool, error) {
	records, err := svc.repo.QueryTrackProgress(ctx, userID, exec)
	if err != nil {
		return course.Track{}, false, errors.Wrap(err, "querying track progress")
	}
	completed := NewTrackProgressSet(records).CompletedIDs()

	for _, t := range sortedTracks {
		if t.ID == current.ID || !course.TrackLess(current, t) {
			continue
		}
		if !completed[t.ID] {
			return t, true, nil
		}
	}
	return course.Track{}, false, nil
}

// startFirstTask moves the first task of trackID to in progress if the user has not started it.
func (svc *service) startFirstTask(ctx context.Context, userID, trackID string, exec core.DBExecutor) error {
	tasks, err := svc.courseSvc.ListTasks(ctx, trackID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	course.SortTasks(tasks)

	cur, err := svc.getTaskProgress(ctx, userID, tasks[0].ID, exec)
	if err != nil || cur.Status != NotStarted {
		return err
	}
	_, _, err = svc.setTaskStatus(ctx, userID, tasks[0].ID, InProgress, nil, exec)
	return err
}

func (svc *service) sendTrackCompletedMail(ctx context.Context, userID string, track course.Track) {
	usr, err := svc.userSvc.GetByID(ctx, userID)
	if err != nil || usr.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Track completed: " + track.Name,
		TemplateName: "track_completed",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"Track": track.Name,
		},
	}
	// the mail still goes out without its summary
	if summary, err := svc.trackSummary(ctx, userID, track); err == nil {
		_ = msg.Attach(bytes.NewReader(summary), trackSummaryFilename(track), trackSummaryContentType)
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) trackSummary(ctx context.Context, userID string, track course.Track) ([]byte, error) {
	tasks, err := svc.courseSvc.ListTasks(ctx, track.ID)
	if err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryTaskProgress(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying task progress")
	}
	return TrackSummaryCSV(tasks, NewTaskProgressSet(records))
}
