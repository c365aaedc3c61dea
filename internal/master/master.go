// Package master wires the alignd API server: database, object storage,
// job queue, model catalog and the HTTP surface.
package master

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/alignment"
	"github.com/alignlab/alignd/internal/api"
	"github.com/alignlab/alignd/internal/catalog"
	"github.com/alignlab/alignd/internal/config"
	alignctx "github.com/alignlab/alignd/internal/context"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/internal/mirror"
	"github.com/alignlab/alignd/internal/queue"
	"github.com/alignlab/alignd/internal/storage"
	"github.com/alignlab/alignd/internal/user"
)

// Master is the alignd API server.
type Master struct {
	config *config.Config
	echo   *echo.Echo
}

// New creates a master from the given configuration.
func New(cfg *config.Config) *Master {
	return &Master{config: cfg}
}

// Run sets up every subsystem and serves the API until ctx is canceled.
func (m *Master) Run(ctx context.Context) error {
	cfg := m.config

	pgDB, err := db.Setup(cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := pgDB.Close(); err != nil {
			log.WithError(err).Error("failed to close database connection")
		}
	}()

	files, err := storage.New(cfg.Storage)
	if err != nil {
		return err
	}

	nc, js, err := queue.Connect(cfg.Queue)
	if err != nil {
		return err
	}
	defer nc.Close()
	publisher := queue.NewPublisher(js, cfg.Queue.Subject)

	userService := user.New(cfg.Security.TokenKey)

	catalogStore := catalog.NewPostgresStore()
	resolver := catalog.NewResolver(catalogStore)
	syncer := catalog.NewSyncer(mirror.New(cfg.Mirror), catalogStore)
	catalogService := catalog.NewService(catalogStore, syncer)

	alignmentService := alignment.NewService(
		alignment.NewPostgresStore(), resolver, files, userService, publisher)

	m.echo = newEchoServer()
	auth := userService.ProcessAuthentication
	user.RegisterAPIHandler(m.echo, userService, auth)
	catalog.RegisterAPIHandler(m.echo, catalogService, auth)
	alignment.RegisterAPIHandler(m.echo, alignmentService, auth)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.WithField("address", addr).Info("accepting incoming connections")
		if err := m.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return m.echo.Shutdown(shutdownCtx)
	}
}

func newEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.JSONErrorHandler
	e.Use(middleware.Recover())
	// Every handler downstream runs under the alignd context.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&alignctx.AlignContext{Context: c})
		}
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}
