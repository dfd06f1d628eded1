package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDevansh/aries-week/core/course"
)

func TestTrackSummaryCSV(t *testing.T) {
	setup := task("setup", "w1", 2)
	setup.Name = "Setup, tools"
	intro := task("intro", "w1", 1)
	intro.Name = "Intro"
	build := task("build", "w1", 3)
	build.Name = "Build"

	notes := done("intro", at(2))
	notes.Notes = `said "hi"`
	set := NewTaskProgressSet([]TaskProgress{notes, active("setup", at(3))})

	got, err := TrackSummaryCSV([]course.Task{setup, build, intro}, set)
	require.NoError(t, err)

	want := "order,task,status,completed_at,notes\n" +
		"1,Intro,completed,2024-01-01T02:00:00Z,\"said \"\"hi\"\"\"\n" +
		"2,\"Setup, tools\",in_progress,,\n" +
		"3,Build,not_started,,\n"
	assert.Equal(t, want, string(got))
}

func Test_trackSummaryFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Week 1", want: "week-1-summary.csv"},
		{name: "Week 1: Basics!", want: "week-1-basics-summary.csv"},
		{name: "  ***  ", want: "track-summary.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trackSummaryFilename(course.Track{Name: tt.name}); got != tt.want {
				t.Errorf("trackSummaryFilename() = %v, want %v", got, tt.want)
			}
		})
	}
}
