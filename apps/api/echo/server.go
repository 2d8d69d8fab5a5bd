package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Services   *di.Services
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	limit := rateLimitMiddleware(conf.Server.RateLimit, conf.Server.RateBurst)
	authLimit := rateLimitMiddleware(conf.Server.AuthRateLimit, conf.Server.AuthRateBurst)
	svc := s.deps.Services

	registerUserAPI(v1, jwt, limit, authLimit, conf, svc.Users, s.deps.Validate)
	authed := v1.Group("", jwt, limit)
	registerProfileAPI(authed, svc)
	registerXPAPI(authed, svc, s.deps.Validate)
	registerWalletAPI(authed, svc, s.deps.Validate)
	registerLeaderboardAPI(authed, svc)
	registerGuildAPI(authed, svc, s.deps.Validate)
	registerQuestAPI(authed, svc, s.deps.Validate)
	registerJobAPI(authed, svc, s.deps.Validate)
	registerItemAPI(authed, svc, s.deps.Validate)
	registerBadgeAPI(authed, svc, s.deps.Validate)
	registerMarketAPI(authed, svc, s.deps.Validate)
	registerTradeAPI(authed, svc, s.deps.Validate)
	registerRewardAPI(authed, svc, s.deps.Validate)
	registerAchievementAPI(authed, svc, s.deps.Validate)
	registerTeacherStatsAPI(authed, svc)
	registerNotificationAPI(authed, svc)
}

// Start blocks until the server stops. Listening errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
