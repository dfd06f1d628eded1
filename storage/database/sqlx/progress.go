package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/progress"
)

type taskProgressRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	TaskID      string    `db:"task_id"`
	Status      string    `db:"status"`
	Notes       string    `db:"notes"`
	CompletedAt null.Time `db:"completed_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row taskProgressRow) toTaskProgress() progress.TaskProgress {
	return progress.TaskProgress{
		ID:          row.ID,
		UserID:      row.UserID,
		TaskID:      row.TaskID,
		Status:      progress.Status(row.Status),
		Notes:       row.Notes,
		CompletedAt: utcPtr(row.CompletedAt),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type trackProgressRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	TrackID     string    `db:"track_id"`
	Status      string    `db:"status"`
	CompletedAt null.Time `db:"completed_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row trackProgressRow) toTrackProgress() progress.TrackProgress {
	return progress.TrackProgress{
		ID:          row.ID,
		UserID:      row.UserID,
		TrackID:     row.TrackID,
		Status:      progress.Status(row.Status),
		CompletedAt: utcPtr(row.CompletedAt),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type progressRepository struct {
	base
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{base{db: db}}
}

func (repo progressRepository) QueryTaskProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]progress.TaskProgress, error) {
	var rows []taskProgressRow
	q := `SELECT id, user_id, task_id, status, notes, completed_at, updated_at
		FROM user_task_progress WHERE user_id = $1 ORDER BY task_id COLLATE "C"`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying task progress")
	}
	records := make([]progress.TaskProgress, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toTaskProgress())
	}
	return records, nil
}

func (repo progressRepository) GetTaskProgress(ctx context.Context, userID, taskID string, exec ...core.DBExecutor) (progress.TaskProgress, error) {
	var row taskProgressRow
	q := `SELECT id, user_id, task_id, status, notes, completed_at, updated_at
		FROM user_task_progress WHERE user_id = $1 AND task_id = $2`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, userID, taskID); err != nil {
		return progress.TaskProgress{}, trapNoRows(err, progress.ErrNotFound, "finding task progress")
	}
	return row.toTaskProgress(), nil
}

func (repo progressRepository) UpsertTaskProgress(ctx context.Context, p progress.TaskProgress, exec ...core.DBExecutor) (progress.TaskProgress, error) {
	q := `INSERT INTO user_task_progress (id, user_id, task_id, status, notes, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, task_id) DO UPDATE
		SET status = EXCLUDED.status, notes = EXCLUDED.notes,
			completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
		RETURNING id`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &p.ID, q,
		newID(), p.UserID, p.TaskID, string(p.Status), p.Notes, nullTime(p.CompletedAt), p.UpdatedAt.UTC())
	if err != nil {
		return progress.TaskProgress{}, errors.Wrap(err, "upserting task progress")
	}
	return p, nil
}

func (repo progressRepository) DeleteTaskProgress(ctx context.Context, userID, taskID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`DELETE FROM user_task_progress WHERE user_id = $1 AND task_id = $2`, userID, taskID)
	return errors.Wrap(err, "deleting task progress")
}

func (repo progressRepository) QueryTrackProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]progress.TrackProgress, error) {
	var rows []trackProgressRow
	q := `SELECT id, user_id, track_id, status, completed_at, updated_at
		FROM user_track_progress WHERE user_id = $1 ORDER BY track_id COLLATE "C"`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying track progress")
	}
	records := make([]progress.TrackProgress, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toTrackProgress())
	}
	return records, nil
}

func (repo progressRepository) GetTrackProgress(ctx context.Context, userID, trackID string, exec ...core.DBExecutor) (progress.TrackProgress, error) {
	var row trackProgressRow
	q := `SELECT id, user_id, track_id, status, completed_at, updated_at
		FROM user_track_progress WHERE user_id = $1 AND track_id = $2`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, userID, trackID); err != nil {
		return progress.TrackProgress{}, trapNoRows(err, progress.ErrNotFound, "finding track progress")
	}
	return row.toTrackProgress(), nil
}

func (repo progressRepository) UpsertTrackProgress(ctx context.Context, p progress.TrackProgress, exec ...core.DBExecutor) (progress.TrackProgress, error) {
	q := `INSERT INTO user_track_progress (id, user_id, track_id, status, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, track_id) DO UPDATE
		SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
		RETURNING id`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &p.ID, q,
		newID(), p.UserID, p.TrackID, string(p.Status), nullTime(p.CompletedAt), p.UpdatedAt.UTC())
	if err != nil {
		return progress.TrackProgress{}, errors.Wrap(err, "upserting track progress")
	}
	return p, nil
}

func (repo progressRepository) DeleteTrackProgress(ctx context.Context, userID, trackID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`DELETE FROM user_track_progress WHERE user_id = $1 AND track_id = $2`, userID, trackID)
	return errors.Wrap(err, "deleting track progress")
}
