package course

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/0xDevansh/aries-week/core"
)

type TrackStatus string

// Track statuses
const (
	StatusUpcoming  TrackStatus = "upcoming"
	StatusCurrent   TrackStatus = "current"
	StatusCompleted TrackStatus = "completed"
)

var TrackStatuses = []TrackStatus{StatusUpcoming, StatusCurrent, StatusCompleted}

func (s TrackStatus) IsValid() bool {
	for _, st := range TrackStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Track is a scheduled unit of curriculum (a "week").
type Track struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      TrackStatus `json:"status"` // stored; see DeriveStatus
	StartDate   *time.Time  `json:"start_date"`
	EndDate     *time.Time  `json:"end_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Task is a unit of work within a Track.
type Task struct {
	ID           string     `json:"id"`
	TrackID      string     `json:"track_id"`
	Name         string     `json:"name"`
	Caption      string     `json:"caption"`
	ResourcesURL string     `json:"resources_url"`
	Order        int        `json:"task_order"`
	Deadline     *time.Time `json:"deadline"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Assignment grants a (non owner) admin the management of a Track.
type Assignment struct {
	ID        string    `json:"id"`
	AdminID   string    `json:"admin_id"`
	TrackID   string    `json:"track_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackLess orders tracks by start date (undated last), then by ID.
func TrackLess(a, b Track) bool {
	switch {
	case a.StartDate == nil && b.StartDate == nil:
		return a.ID < b.ID
	case a.StartDate == nil:
		return false
	case b.StartDate == nil:
		return true
	case !a.StartDate.Equal(*b.StartDate):
		return a.StartDate.Before(*b.StartDate)
	}
	return a.ID < b.ID
}

// TaskLess orders tasks by task order, then creation time, then ID.
func TaskLess(a, b Task) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortTracks sorts tracks in place, in schedule order.
func SortTracks(tracks []Track) {
	sort.SliceStable(tracks, func(i, j int) bool { return TrackLess(tracks[i], tracks[j]) })
}

// SortTasks sorts tasks in place, in track order.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return TaskLess(tasks[i], tasks[j]) })
}

// TasksOf returns the tasks of trackID, in track order.
func TasksOf(trackID string, tasks []Task) []Task {
	out := make([]Task, 0)
	for _, t := range tasks {
		if t.TrackID == trackID {
			out = append(out, t)
		}
	}
	SortTasks(out)
	return out
}

// NewTrack contains information needed to create a new Track.
type NewTrack struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description"`
	Status      TrackStatus `json:"status" validate:"omitempty,track_status"`
	StartDate   *time.Time  `json:"start_date"`
	EndDate     *time.Time  `json:"end_date"`
}

func (nt *NewTrack) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	if nt.Status == "" {
		nt.Status = StatusUpcoming
	}
	if err := validate.Struct(nt); err != nil {
		return err
	}
	return checkDateRange(nt.StartDate, nt.EndDate)
}

// UpdateTrack defines what information may be provided to modify an existing Track.
// Nil fields are left untouched.
type UpdateTrack struct {
	Name        *string      `json:"name" validate:"omitempty,max=200"`
	Description *string      `json:"description"`
	Status      *TrackStatus `json:"status" validate:"omitempty,track_status"`
	StartDate   *time.Time   `json:"start_date"`
	EndDate     *time.Time   `json:"end_date"`
	ClearDates  bool         `json:"clear_dates"`
}

func (ut *UpdateTrack) Validate(orig Track, validate *validator.Validate) error {
	if ut.Name != nil {
		name := core.CleanString(*ut.Name)
		if name == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "name cannot be blank"})
		}
		ut.Name = &name
	}
	if ut.Description != nil {
		desc := core.CleanString(*ut.Description)
		ut.Description = &desc
	}
	if err := validate.Struct(ut); err != nil {
		return err
	}

	// validate the resulting date range
	start, end := orig.StartDate, orig.EndDate
	if ut.ClearDates {
		start, end = nil, nil
	}
	if ut.StartDate != nil {
		start = ut.StartDate
	}
	if ut.EndDate != nil {
		end = ut.EndDate
	}
	return checkDateRange(start, end)
}

// Apply returns orig updated with the provided fields.
func (ut UpdateTrack) Apply(orig Track) Track {
	t := orig
	if ut.Name != nil {
		t.Name = *ut.Name
	}
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	if ut.Status != nil {
		t.Status = *ut.Status
	}
	if ut.ClearDates {
		t.StartDate, t.EndDate = nil, nil
	}
	if ut.StartDate != nil {
		t.StartDate = core.TimePtr(*ut.StartDate)
	}
	if ut.EndDate != nil {
		t.EndDate = core.TimePtr(*ut.EndDate)
	}
	return t
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Caption      string     `json:"caption"`
	ResourcesURL string     `json:"resources_url" validate:"omitempty,url"`
	Order        int        `json:"task_order" validate:"min=0"`
	Deadline     *time.Time `json:"deadline"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Caption = core.CleanString(nt.Caption)
	nt.ResourcesURL = core.CleanString(nt.ResourcesURL)
	return validate.Struct(nt)
}

// UpdateTask defines what information may be provided to modify an existing Task.
type UpdateTask struct {
	Name          *string    `json:"name" validate:"omitempty,max=200"`
	Caption       *string    `json:"caption"`
	ResourcesURL  *string    `json:"resources_url"`
	Order         *int       `json:"task_order" validate:"omitempty,min=0"`
	Deadline      *time.Time `json:"deadline"`
	ClearDeadline bool       `json:"clear_deadline"`
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	if ut.Name != nil {
		name := core.CleanString(*ut.Name)
		if name == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "name cannot be blank"})
		}
		ut.Name = &name
	}
	if ut.Caption != nil {
		caption := core.CleanString(*ut.Caption)
		ut.Caption = &caption
	}
	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.ResourcesURL != nil {
		url := core.CleanString(*ut.ResourcesURL) // "" clears it
		ut.ResourcesURL = &url
		if url != "" {
			if err := validate.Var(url, "url"); err != nil {
				return core.NewValidationError(nil, core.FieldError{Field: "resources_url", Error: "must be a valid URL"})
			}
		}
	}
	return nil
}

// Apply returns orig updated with the provided fields.
func (ut UpdateTask) Apply(orig Task) Task {
	t := orig
	if ut.Name != nil {
		t.Name = *ut.Name
	}
	if ut.Caption != nil {
		t.Caption = *ut.Caption
	}
	if ut.ResourcesURL != nil {
		t.ResourcesURL = *ut.ResourcesURL
	}
	if ut.Order != nil {
		t.Order = *ut.Order
	}
	if ut.ClearDeadline {
		t.Deadline = nil
	}
	if ut.Deadline != nil {
		t.Deadline = core.TimePtr(*ut.Deadline)
	}
	return t
}

// TrackFilter restricts QueryTracks; nil IDs means all tracks.
type TrackFilter struct {
	IDs  []string
	Name string
}

// TaskFilter restricts QueryTasks; nil TrackIDs means all tasks.
type TaskFilter struct {
	TrackIDs []string
}
