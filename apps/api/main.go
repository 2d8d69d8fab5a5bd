package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	echoapi "github.com/edurpg/edurpg/apps/api/echo"
	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/user"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := di.NewLogger(conf, "API")
	defer logger.Close()

	dbLogger := di.NewLogger(conf, "DB")

	// set up DB
	db, err := di.SetUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up cache
	cache, closeCache, err := di.NewCache(context.Background(), conf)
	if err != nil {
		// the leaderboard falls back to the database
		logger.Error(fmt.Sprintf("setting up cache: %v", err), err)
	}
	if closeCache != nil {
		defer func() { _ = closeCache() }()
	}

	// set up services
	mailSvc := di.NewEmailService(conf, logger)
	services := di.NewServices(conf, logger, di.NewSQLRepositories(db), mailSvc, cache)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := di.NewValidator()

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(conf, logger)

	if cache != nil {
		if n, err := services.Leaderboard.Rebuild(context.Background()); err != nil {
			logger.Error(fmt.Sprintf("rebuilding leaderboard: %v", err), err)
		} else {
			logger.Info(fmt.Sprintf("leaderboard loaded: %d scores", n))
		}
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Services:   services,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
