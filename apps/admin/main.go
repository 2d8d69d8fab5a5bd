package main

import (
	"context"
	"fmt"
	"os"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := di.NewLogger(conf, "ADMIN")
	defer logger.Close()

	// set up DB
	errAndDie(logger, database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(logger, err)

	cache, closeCache, err := di.NewCache(context.Background(), conf)
	errAndDie(logger, err)

	repos := di.NewSQLRepositories(db)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: repos.Users,
		svc:     di.NewServices(conf, logger, repos, di.NewEmailService(conf, logger), cache),
		out:     os.Stdout,
	}
	err = cli.run(os.Args)

	if closeCache != nil {
		_ = closeCache()
	}
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
