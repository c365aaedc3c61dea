package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alignlab/alignd/internal/config"
	"github.com/alignlab/alignd/internal/master"
	"github.com/alignlab/alignd/version"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alignd-master",
		Short:   "alignd-master is the API server of the alignd forced alignment service",
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

			return master.New(cfg).Run(ctx)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	return cmd
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
		log.WithError(err).Error("fatal error running alignd-master")
		os.Exit(1)
	}
}
