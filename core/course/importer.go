package course

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/0xDevansh/aries-week/core"
)

const dateLayout = "2006-01-02"

// Curriculum is the YAML document loaded by the importtracks admin command.
//
//	tracks:
//	  - name: Week 1
//	    start_date: 2024-01-01
//	    end_date: 2024-01-07
//	    tasks:
//	      - name: Setup
//	        deadline: 2024-01-03T18:00:00Z
type Curriculum struct {
	Tracks []CurriculumTrack `yaml:"tracks"`
}

type CurriculumTrack struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Status      TrackStatus      `yaml:"status"`
	StartDate   string           `yaml:"start_date"`
	EndDate     string           `yaml:"end_date"`
	Tasks       []CurriculumTask `yaml:"tasks"`
}

type CurriculumTask struct {
	Name         string `yaml:"name"`
	Caption      string `yaml:"caption"`
	ResourcesURL string `yaml:"resources_url"`
	Order        *int   `yaml:"order"`
	Deadline     string `yaml:"deadline"`
}

// ImportResult counts what Import did.
type ImportResult struct {
	TracksCreated int `json:"tracks_created"`
	TracksUpdated int `json:"tracks_updated"`
	TasksCreated  int `json:"tasks_created"`
	TasksUpdated  int `json:"tasks_updated"`
}

// ParseCurriculum decodes a YAML curriculum from r.
func ParseCurriculum(r io.Reader) (Curriculum, error) {
	var cur Curriculum
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cur); err != nil {
		if err == io.EOF {
			return cur, nil
		}
		return Curriculum{}, errors.Wrap(err, "decoding curriculum")
	}
	return cur, nil
}

// parseDate accepts "2006-01-02" or RFC3339; "" is no date.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return core.TimePtr(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Errorf("invalid date %q", s)
	}
	return core.TimePtr(t), nil
}

// Import loads cur into the repository. Tracks are matched by name and updated in place,
// tasks are matched by name within their track. Nothing is deleted.
func (svc *service) Import(ctx context.Context, cur Curriculum) (ImportResult, error) {
	var res ImportResult
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		for i, ct := range cur.Tracks {
			name := core.CleanString(ct.Name)
			if name == "" {
				return core.NewValidationError(errors.Errorf("track #%d: name is required", i+1))
			}
			if ct.Status != "" && !ct.Status.IsValid() {
				return core.NewValidationError(errors.Errorf("track %q: invalid status %q", name, ct.Status))
			}
			start, err := parseDate(ct.StartDate)
			if err != nil {
				return core.NewValidationError(errors.Wrapf(err, "track %q", name))
			}
			end, err := parseDate(ct.EndDate)
			if err != nil {
				return core.NewValidationError(errors.Wrapf(err, "track %q", name))
			}
			if err = checkDateRange(start, end); err != nil {
				return err
			}

			track, created, err := svc.importTrack(ctx, name, ct, start, end, exec)
			if err != nil {
				return err
			}
			if created {
				res.TracksCreated++
			} else {
				res.TracksUpdated++
			}

			nCreated, nUpdated, err := svc.importTasks(ctx, track, ct.Tasks, exec)
			if err != nil {
				return err
			}
			res.TasksCreated += nCreated
			res.TasksUpdated += nUpdated
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	svc.notify(ctx)
	return res, nil
}

func (svc *service) importTrack(ctx context.Context, name string, ct CurriculumTrack, start, end *time.Time, exec core.DBExecutor) (Track, bool, error) {
	existing, err := svc.repo.QueryTracks(ctx, &TrackFilter{Name: name}, exec)
	if err != nil {
		return Track{}, false, errors.Wrap(err, "querying tracks")
	}

	now := core.NowFunc()
	if len(existing) > 0 {
		t := existing[0]
		t.Description = core.CleanString(ct.Description)
		if ct.Status != "" {
			t.Status = ct.Status
		}
		t.StartDate, t.EndDate = start, end
		t.UpdatedAt = now
		t, err = svc.repo.UpdateTrack(ctx, t, exec)
		return t, false, errors.Wrap(err, "updating track")
	}

	status := ct.Status
	if status == "" {
		status = StatusUpcoming
	}
	t, err := svc.repo.CreateTrack(ctx, Track{
		Name:        name,
		Description: core.CleanString(ct.Description),
		Status:      status,
		StartDate:   start,
		EndDate:     end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, exec)
	return t, true, errors.Wrap(err, "creating track")
}

func (svc *service) importTasks(ctx context.Context, track Track, cts []CurriculumTask, exec core.DBExecutor) (int, int, error) {
	existing, err := svc.repo.QueryTasks(ctx, &TaskFilter{TrackIDs: []string{track.ID}}, exec)
	if err != nil {
		return 0, 0, errors.Wrap(err, "querying tasks")
	}
	byName := make(map[string]Task, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	var created, updated int
	for i, ctk := range cts {
		name := core.CleanString(ctk.Name)
		if name == "" {
			return 0, 0, core.NewValidationError(errors.Errorf("track %q: task #%d: name is required", track.Name, i+1))
		}
		deadline, err := parseDate(ctk.Deadline)
		if err != nil {
			return 0, 0, core.NewValidationError(errors.Wrapf(err, "task %q", name))
		}
		order := i
		if ctk.Order != nil {
			order = *ctk.Order
		}

		now := core.NowFunc()
		if t, ok := byName[name]; ok {
			t.Caption = core.CleanString(ctk.Caption)
			t.ResourcesURL = core.CleanString(ctk.ResourcesURL)
			t.Order = order
			t.Deadline = deadline
			t.UpdatedAt = now
			if _, err = svc.repo.UpdateTask(ctx, t, exec); err != nil {
				return 0, 0, errors.Wrap(err, "updating task")
			}
			updated++
			continue
		}

		t := Task{
			TrackID:      track.ID,
			Name:         name,
			Caption:      core.CleanString(ctk.Caption),
			ResourcesURL: core.CleanString(ctk.ResourcesURL),
			Order:        order,
			Deadline:     deadline,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err = svc.repo.CreateTask(ctx, t, exec); err != nil {
			return 0, 0, errors.Wrap(err, "creating task")
		}
		byName[name] = t
		created++
	}
	return created, updated, nil
}
