package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/archive"
	"github.com/mohammad-safakhou/scout/internal/email"
	"github.com/mohammad-safakhou/scout/internal/judge"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/store"
	"github.com/mohammad-safakhou/scout/internal/subscription"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// Run wires every component and serves the API until the listener fails.
func Run(cfgPath, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	cfg := config.LoadConfig(cfgPath)
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return err
	}
	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		baseLogger.Printf("migrate: %v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	// A missing API key leaves the judge nil: dispatch still works, filtering
	// passes results through and summaries are templated.
	j := judge.FromConfig(cfg.LLM, tele)
	if j == nil {
		baseLogger.Printf("llm.api_key not set, running degraded (no relevance filtering or summaries)")
	}

	registry := agent.NewRegistry()
	reddit := agent.NewRedditCrawler(cfg.Search)
	registry.Register(reddit.Platform(), reddit)
	github := agent.NewGitHubCrawler(cfg.Search)
	registry.Register(github.Platform(), github)

	synth := agent.NewLLMSynthesizer(j, cfg.Search)
	dispatcher := agent.NewDispatcher(registry, synth)
	pipe := pipeline.New(dispatcher, pipeline.NewFilter(j, cfg.Search, tele), pipeline.NewSummarizer(j), tele)

	arch, err := archive.New()
	if err != nil {
		return err
	}

	rdb, err := subscription.Conn(ctx, cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}
	subs := subscription.NewStore(rdb, cfg.Notifications)
	mailer := email.NewSender(cfg.Notifications.Email)
	checker := subscription.NewChecker(subs, pipe, mailer, cfg.Notifications)
	checker.Start()

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(authMiddleware(auth.Secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: c.Get("user_id").(string)})
	})

	sh := &SearchHandler{Store: st, Pipeline: pipe, Archive: arch}
	sh.Register(api, auth.Secret)

	subh := &SubscriptionsHandler{Subs: subs, Store: st}
	subh.Register(api, auth.Secret)

	ah := &ArchiveHandler{Archive: arch}
	ah.Register(api, auth.Secret)

	if addr == "" {
		addr = cfg.Server.Listen
	}
	if addr == "" {
		addr = ":10010"
	} else if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
