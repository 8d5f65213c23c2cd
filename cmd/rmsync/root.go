package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/logging"
	"github.com/custodia-labs/rickandmorty-sync/internal/runtime"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rmsync",
		Short: "Offline-first cache of the Rick and Morty API",
		Long: `rmsync keeps a local cache of Rick and Morty characters, episodes and
locations. Lists are always read from the cache; pages are fetched from the
remote API when a window reaches the end of what is cached.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().String("database", "", "override DATABASE_URL")

	root.AddGroup(
		&cobra.Group{ID: "read", Title: "Read Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)

	root.AddCommand(
		newListCmd(),
		newGetCmd(),
		newRelatedCmd(),
		newRefreshCmd(),
		newWarmCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig reads the environment and applies the persistent flag
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if db, _ := cmd.Flags().GetString("database"); db != "" {
		cfg.Database.URL = db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withServices builds the service graph, runs fn and tears everything down.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, svc *runtime.Services) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	svc, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start services", "error", err)
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close services", "error", err)
		}
	}()

	return fn(ctx, cfg, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func domainArg(s string) (domain.Domain, error) {
	d, err := domain.ParseDomain(s)
	if err != nil {
		return "", fmt.Errorf("%w (want character, episode or location)", err)
	}
	return d, nil
}
