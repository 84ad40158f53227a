package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/codeassist/internal/config"
	"github.com/ehr/codeassist/internal/domain/folder"
	"github.com/ehr/codeassist/internal/domain/prediction"
	"github.com/ehr/codeassist/internal/domain/terminology"
	"github.com/ehr/codeassist/internal/domain/workflow"
	"github.com/ehr/codeassist/internal/platform/auth"
	"github.com/ehr/codeassist/internal/platform/cache"
	"github.com/ehr/codeassist/internal/platform/db"
	"github.com/ehr/codeassist/internal/platform/logging"
	"github.com/ehr/codeassist/internal/platform/middleware"
)

const version = "0.1.0"

// app holds the collaborators shared by every session.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *cache.Redis

	folders   folder.Store
	terms     *terminology.Service
	predictor *prediction.Client
	sessions  *workflow.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.NeedsDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
	}

	var searchCache cache.Cache = cache.NewMemory(cfg.SearchCacheTTL, 2*cfg.SearchCacheTTL)
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = r
		searchCache = r
		logger.Info().Msg("connected to redis search cache")
	}

	repo, err := a.dictionary()
	if err != nil {
		a.close()
		return nil, err
	}
	a.terms = terminology.NewService(repo,
		terminology.WithCache(searchCache, cfg.SearchCacheTTL),
		terminology.WithLogger(logger.With().Str("component", "terminology").Logger()))

	a.folders, err = newFolderStore(cfg, a.pool)
	if err != nil {
		a.close()
		return nil, err
	}

	a.predictor = prediction.NewClient(cfg.UpstreamAPIBase, cfg.PredictTimeout, prediction.WithDefaults(prediction.Request{
		Model:               cfg.DefaultLLMModel,
		ExplainMethod:       cfg.DefaultExplainMethod,
		ConfidenceThreshold: cfg.DefaultConfidenceThreshold,
		ICDVersion:          cfg.DefaultICDVersion,
	}))

	wfLogger := logger.With().Str("component", "workflow").Logger()
	a.sessions = workflow.NewRegistry(cfg.SessionTTL, func() *workflow.Controller {
		return workflow.NewController(a.predictor, a.folders, a.terms,
			workflow.WithLogger(wfLogger),
			workflow.WithDebounce(cfg.SearchDebounce),
			workflow.WithSearchLimit(cfg.SearchLimit))
	})
	return a, nil
}

// dictionary opens the configured code dictionary. A missing description
// file leaves the in-memory dictionary empty: manual codes are accepted
// without descriptions.
func (a *app) dictionary() (terminology.Repository, error) {
	if a.cfg.TerminologyBackend == config.BackendPostgres {
		return terminology.NewRepoPG(a.pool), nil
	}
	system := terminology.SystemFor("icd", a.cfg.DefaultICDVersion)
	repo, err := terminology.LoadDescriptionFile(a.cfg.DescriptionFile, system)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn().Str("file", a.cfg.DescriptionFile).Msg("description file not found, dictionary is empty")
		return terminology.NewMemoryRepo(), nil
	}
	if err != nil {
		return nil, err
	}
	for _, s := range terminology.Systems {
		a.logger.Info().Str("system", string(s)).Int("codes", repo.Len(s)).Msg("dictionary loaded")
	}
	return repo, nil
}

func newFolderStore(cfg *config.Config, pool *pgxpool.Pool) (folder.Store, error) {
	if cfg.FolderBackend == config.BackendPostgres {
		if pool == nil {
			return nil, fmt.Errorf("postgres folder store needs a database pool")
		}
		return folder.NewPGStore(pool), nil
	}
	store, err := folder.NewFSStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openFolderStore is newFolderStore for one-shot CLI commands.
func openFolderStore(ctx context.Context, cfg *config.Config) (folder.Store, func(), error) {
	var pool *pgxpool.Pool
	if cfg.FolderBackend == config.BackendPostgres {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		pool = p
	}
	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
	}
	store, err := newFolderStore(cfg, pool)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing redis")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// skipRequestTimeout exempts prediction calls, which are bounded by
// PREDICT_TIMEOUT instead.
func skipRequestTimeout(c echo.Context) bool {
	return c.Path() == workflow.PredictRoute
}

// router builds the HTTP server.
func (a *app) router() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-User-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, skipRequestTimeout))

	// Auth middleware
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	var checks []db.Check
	if a.redis != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: a.redis.Ping})
	}
	e.GET("/health/db", db.HealthHandler(a.pool, checks...))

	apiV1 := e.Group("/api/v1")
	terminology.NewHandler(a.terms).RegisterRoutes(apiV1)
	folder.NewHandler(a.folders).RegisterRoutes(apiV1)
	workflow.NewHandler(a.sessions).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, Console: cfg.IsDev(), File: cfg.LogFile})
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.close()

	e := a.router()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("folders", cfg.FolderBackend).
			Str("terminology", cfg.TerminologyBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
