package progress

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core/course"
)

const trackSummaryContentType = "text/csv"

var trackSummaryHeader = []string{"order", "task", "status", "completed_at", "notes"}

// TrackSummaryCSV lists the tasks of a track in track order with the user's progress on each.
func TrackSummaryCSV(tasks []course.Task, progress TaskProgressSet) ([]byte, error) {
	sorted := append([]course.Task(nil), tasks...)
	course.SortTasks(sorted)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(trackSummaryHeader); err != nil {
		return nil, errors.Wrap(err, "writing summary header")
	}
	for i, t := range sorted {
		p := progress.Lookup(t.ID)
		var completedAt string
		if p.CompletedAt != nil {
			completedAt = p.CompletedAt.UTC().Format(time.RFC3339)
		}
		row := []string{strconv.Itoa(i + 1), t.Name, string(p.Status), completedAt, p.Notes}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrapf(err, "writing summary of task %s", t.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flushing summary")
	}
	return buf.Bytes(), nil
}

// trackSummaryFilename turns "Week 1: Basics" into "week-1-basics-summary.csv".
func trackSummaryFilename(track course.Track) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(track.Name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		name = "track"
	}
	return name + "-summary.csv"
}
