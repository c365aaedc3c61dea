package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alignlab/alignd/internal/alignment"
	"github.com/alignlab/alignd/internal/catalog"
	"github.com/alignlab/alignd/internal/config"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/internal/queue"
	"github.com/alignlab/alignd/internal/storage"
	"github.com/alignlab/alignd/internal/worker"
	"github.com/alignlab/alignd/version"
)

var (
	configPath string
	workDir    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alignd-worker",
		Short:   "alignd-worker processes queued forced alignment jobs",
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := setLogLevel(cfg.LogLevel); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWorker(ctx, cfg)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&workDir, "work-dir", os.TempDir(),
		"scratch directory for alignment runs")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	// Migrations are the master's job; the worker only connects.
	pgDB, err := db.Connect(cfg.DB)
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

	store := alignment.NewPostgresStore()
	engine := worker.NewMFAEngine(files, store, catalog.NewPostgresStore(), workDir)
	return worker.New(cfg.Worker, store, engine).Run(ctx, js, cfg.Queue)
}

func setLogLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %q", level)
	}
	log.SetLevel(l)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("fatal error running alignd-worker")
		os.Exit(1)
	}
}
