package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
)

// importTracks loads the YAML curriculum at path into the schedule.
func (cli *commandLine) importTracks(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening curriculum")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	cur, err := course.ParseCurriculum(file)
	if err != nil {
		return err
	}
	res, err := cli.courseSvc.Import(context.Background(), cur)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "tracks: %d created, %d updated; tasks: %d created, %d updated\n",
		res.TracksCreated, res.TracksUpdated, res.TasksCreated, res.TasksUpdated)
	return nil
}

func (cli *commandLine) refreshStatuses() error {
	ids, err := cli.courseSvc.RefreshStatuses(context.Background(), core.NowFunc())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d track(s) updated\n", len(ids))
	return nil
}
