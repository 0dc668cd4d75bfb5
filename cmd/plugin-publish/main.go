package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoophq/plugin-secretsmanager/internal/config"
	"github.com/hoophq/plugin-secretsmanager/internal/publisher"
	"github.com/hoophq/plugin-secretsmanager/pkg/client"
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
		Use:     "plugin-publish",
		Short:   "Upload a built secretsmanager plugin release to the plugin registry",
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
	log.Infof("starting plugin-publish (version=%s)", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := cfg.CreateS3Client(ctx)
	if err != nil {
		return err
	}

	p := publisher.New(log, cfg, storage, client.New(cfg.RegistryURL))
	pv, err := p.Publish(ctx)
	if err != nil {
		return err
	}

	// print the new version record for operator confirmation
	record, err := json.MarshalIndent(pv, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(record))
	return nil
}

func exitWithError(log *logrus.Logger, err error) {
	if errors.Is(err, config.ErrVersionMissing) {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	log.Errorf("ERROR: %v", err)
	os.Exit(1)
}
