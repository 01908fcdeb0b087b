// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpool/internal/api"
	"github.com/tombee/mcpool/internal/config"
	"github.com/tombee/mcpool/internal/log"
	"github.com/tombee/mcpool/internal/mcp"
	"github.com/tombee/mcpool/internal/mcp/storage"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var settingsPath string

	root := &cobra.Command{
		Use:           "mcpoold",
		Short:         "MCP client pool daemon",
		Long:          "mcpoold maintains a pool of connections to MCP tool servers and keeps it converged with file- and database-defined configuration.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings.yaml (default: ~/.config/mcpool/settings.yaml)")

	root.AddCommand(newServeCmd(&settingsPath))
	root.AddCommand(newListCmd(&settingsPath))
	root.AddCommand(newToolsCmd(&settingsPath))
	return root
}

func newServeCmd(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pool and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*settingsPath)
			if err != nil {
				return err
			}
			logger := log.New(log.FromEnv())
			slog.SetDefault(logger)

			store, closeStore, err := buildStore(settings, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			pool := mcp.NewPool(mcp.PoolConfig{
				Store:          store,
				Logger:         log.WithComponent(logger, "pool"),
				ConnectTimeout: settings.ConnectTimeout(),
			})
			defer pool.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := pool.Init(ctx); err != nil {
				return err
			}

			server := &http.Server{
				Addr:    settings.Listen,
				Handler: api.NewServer(pool, store, log.WithComponent(logger, "api")).Routes(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("mcpool api listening", "addr", settings.Listen)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			return server.Shutdown(context.Background())
		},
	}
}

func newListCmd(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers with sanitized configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*settingsPath)
			if err != nil {
				return err
			}
			logger := log.New(log.FromEnv())

			store, closeStore, err := buildStore(settings, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			for i := range records {
				records[i].Config = mcp.Sanitize(records[i].Config)
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
}

func newToolsCmd(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Connect to all configured servers and print the aggregated tool map",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*settingsPath)
			if err != nil {
				return err
			}
			logger := log.New(log.FromEnv())

			store, closeStore, err := buildStore(settings, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			pool := mcp.NewPool(mcp.PoolConfig{
				Store:          store,
				Logger:         log.WithComponent(logger, "pool"),
				ConnectTimeout: settings.ConnectTimeout(),
			})
			defer pool.Close()

			pool.Sync(cmd.Context())
			return printJSON(cmd.OutOrStdout(), pool.Tools())
		},
	}
}

// buildStore assembles the config store for the configured storage mode.
func buildStore(settings *config.Settings, logger *slog.Logger) (mcp.ConfigStore, func(), error) {
	logger = log.WithComponent(logger, "storage")
	fileStore := storage.NewFileStore(storage.FileStoreConfig{
		Path:           settings.ConfigFile,
		Logger:         logger,
		DebounceWindow: settings.DebounceWindow(),
	})

	switch settings.Storage {
	case config.StorageFile:
		return fileStore, func() { _ = fileStore.Close() }, nil

	case config.StorageDB:
		dbStore, err := storage.NewDBStore(storage.DBStoreConfig{
			Path:   settings.DatabasePath,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return dbStore, func() { _ = dbStore.Close() }, nil

	case config.StorageHybrid:
		dbStore, err := storage.NewDBStore(storage.DBStoreConfig{
			Path:   settings.DatabasePath,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		hybrid := storage.NewHybridStore(fileStore, dbStore, logger)
		return hybrid, func() { _ = hybrid.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage mode: %s", settings.Storage)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
