package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
)

const (
	trackColumns = `id, name, description, status, start_date, end_date, created_at, updated_at`
	taskColumns  = `id, track_id, name, caption, resources_url, task_order, deadline, created_at, updated_at`
)

type trackRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	StartDate   null.Time `db:"start_date"`
	EndDate     null.Time `db:"end_date"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	return core.TimePtr(t.Time)
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func (row trackRow) toTrack() course.Track {
	return course.Track{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Status:      course.TrackStatus(row.Status),
		StartDate:   utcPtr(row.StartDate),
		EndDate:     utcPtr(row.EndDate),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type taskRow struct {
	ID           string    `db:"id"`
	TrackID      string    `db:"track_id"`
	Name         string    `db:"name"`
	Caption      string    `db:"caption"`
	ResourcesURL string    `db:"resources_url"`
	Order        int       `db:"task_order"`
	Deadline     null.Time `db:"deadline"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row taskRow) toTask() course.Task {
	return course.Task{
		ID:           row.ID,
		TrackID:      row.TrackID,
		Name:         row.Name,
		Caption:      row.Caption,
		ResourcesURL: row.ResourcesURL,
		Order:        row.Order,
		Deadline:     utcPtr(row.Deadline),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	base
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{base{db: db}}
}

func trapNoRows(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// checkAffected maps "0 rows affected" to notFound.
func checkAffected(res sql.Result, notFound error) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func (repo courseRepository) CreateTrack(ctx context.Context, t course.Track, exec ...core.DBExecutor) (course.Track, error) {
	t.ID = newID()
	q := `INSERT INTO tracks (` + trackColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		t.ID, t.Name, t.Description, string(t.Status), nullTime(t.StartDate), nullTime(t.EndDate),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return course.Track{}, errors.Wrap(err, "inserting track")
	}
	return t, nil
}

func (repo courseRepository) GetTrack(ctx context.Context, id string, exec ...core.DBExecutor) (course.Track, error) {
	var row trackRow
	q := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return course.Track{}, trapNoRows(err, course.ErrTrackNotFound, "finding track")
	}
	return row.toTrack(), nil
}

func (repo courseRepository) QueryTracks(ctx context.Context, filter *course.TrackFilter, exec ...core.DBExecutor) ([]course.Track, error) {
	var where whereBuilder
	if filter != nil {
		if filter.IDs != nil {
			where.add("id = ANY(?)", pq.Array(filter.IDs))
		}
		if filter.Name != "" {
			where.add("name = ?", filter.Name)
		}
	}

	var rows []trackRow
	q := `SELECT ` + trackColumns + ` FROM tracks` + where.String() +
		` ORDER BY start_date ASC NULLS LAST, id COLLATE "C"`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "querying tracks")
	}
	tracks := make([]course.Track, 0, len(rows))
	for _, row := range rows {
		tracks = append(tracks, row.toTrack())
	}
	return tracks, nil
}

func (repo courseRepository) UpdateTrack(ctx context.Context, t course.Track, exec ...core.DBExecutor) (course.Track, error) {
	q := `UPDATE tracks SET name = $2, description = $3, status = $4, start_date = $5, end_date = $6, updated_at = $7
		WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		t.ID, t.Name, t.Description, string(t.Status), nullTime(t.StartDate), nullTime(t.EndDate), t.UpdatedAt.UTC())
	if err != nil {
		return course.Track{}, errors.Wrap(err, "updating track")
	}
	if err = checkAffected(res, course.ErrTrackNotFound); err != nil {
		return course.Track{}, err
	}
	return t, nil
}

// DeleteTrack relies on ON DELETE CASCADE for tasks, progress and assignments.
func (repo courseRepository) DeleteTrack(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting track")
	}
	return checkAffected(res, course.ErrTrackNotFound)
}

func (repo courseRepository) CreateTask(ctx context.Context, t course.Task, exec ...core.DBExecutor) (course.Task, error) {
	t.ID = newID()
	q := `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		t.ID, t.TrackID, t.Name, t.Caption, t.ResourcesURL, t.Order, nullTime(t.Deadline),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
			return course.Task{}, course.ErrTrackNotFound
		}
		return course.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, nil
}

func (repo courseRepository) GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (course.Task, error) {
	var row taskRow
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return course.Task{}, trapNoRows(err, course.ErrTaskNotFound, "finding task")
	}
	return row.toTask(), nil
}

func (repo courseRepository) QueryTasks(ctx context.Context, filter *course.TaskFilter, exec ...core.DBExecutor) ([]course.Task, error) {
	var where whereBuilder
	if filter != nil && filter.TrackIDs != nil {
		where.add("track_id = ANY(?)", pq.Array(filter.TrackIDs))
	}

	var rows []taskRow
	q := `SELECT ` + taskColumns + ` FROM tasks` + where.String() +
		` ORDER BY track_id COLLATE "C", task_order, created_at, id COLLATE "C"`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]course.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask())
	}
	return tasks, nil
}

func (repo courseRepository) UpdateTask(ctx context.Context, t course.Task, exec ...core.DBExecutor) (course.Task, error) {
	q := `UPDATE tasks SET name = $2, caption = $3, resources_url = $4, task_order = $5, deadline = $6, updated_at = $7
		WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		t.ID, t.Name, t.Caption, t.ResourcesURL, t.Order, nullTime(t.Deadline), t.UpdatedAt.UTC())
	if err != nil {
		return course.Task{}, errors.Wrap(err, "updating task")
	}
	if err = checkAffected(res, course.ErrTaskNotFound); err != nil {
		return course.Task{}, err
	}
	return t, nil
}

func (repo courseRepository) DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return checkAffected(res, course.ErrTaskNotFound)
}

func (repo courseRepository) ToggleAssignment(ctx context.Context, adminID, trackID string, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx,
		`DELETE FROM admin_track_assignments WHERE admin_id = $1 AND track_id = $2`, adminID, trackID)
	if err != nil {
		return false, errors.Wrap(err, "deleting assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return false, nil
	}

	_, err = exe.ExecContext(ctx,
		`INSERT INTO admin_track_assignments (id, admin_id, track_id, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (admin_id, track_id) DO NOTHING`,
		newID(), adminID, trackID, core.NowFunc())
	if err != nil {
		return false, errors.Wrap(err, "inserting assignment")
	}
	return true, nil
}

func (repo courseRepository) QueryAssignedTrackIDs(ctx context.Context, adminID string, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	q := `SELECT track_id FROM admin_track_assignments WHERE admin_id = $1 ORDER BY track_id COLLATE "C"`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &ids, q, adminID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return ids, nil
}
