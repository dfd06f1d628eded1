package main

import (
	"context"
	"fmt"
	"os"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	logsvc "github.com/0xDevansh/aries-week/services/logger"
	"github.com/0xDevansh/aries-week/storage/database"
	sqlxrepos "github.com/0xDevansh/aries-week/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)
	logger.Enable(false)

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	db, err := database.Open(ctx, conf)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:        db.DB,
		usrRepo:   sqlxrepos.NewUserRepository(db),
		courseSvc: course.NewService(db, sqlxrepos.NewCourseRepository(db), nil),
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
