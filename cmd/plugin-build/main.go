package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/hoophq/plugin-secretsmanager/internal/builder"
	"github.com/hoophq/plugin-secretsmanager/internal/config"
	"github.com/hoophq/plugin-secretsmanager/internal/executor"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "plugin-build",
		Short:   "Compile the secretsmanager plugin and package it as a tar.gz archive",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(log); err != nil {
				exitWithError(log, err)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log.Infof("starting plugin-build (version=%s)", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return builder.New(log, cfg, executor.NewOS(log)).Run(ctx)
}

func exitWithError(log *logrus.Logger, err error) {
	if errors.Is(err, config.ErrVersionMissing) {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	log.Errorf("ERROR: %v", err)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	os.Exit(1)
}
