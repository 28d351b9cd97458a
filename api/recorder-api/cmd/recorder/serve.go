// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	internal_recording_service "github.com/rapidaai/recorder/api/recorder-api/internal/service/recording"
	internal_store "github.com/rapidaai/recorder/api/recorder-api/internal/store"
	recorder_routers "github.com/rapidaai/recorder/api/recorder-api/router"
	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
	storage_files "github.com/rapidaai/recorder/pkg/storages/file-storage"
)

const shutdownTimeout = 30 * time.Second

func NewServeCmd() *cobra.Command {
	var runMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recording HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if runMigrations {
				if err := internal_store.Migrate(&cfg.PostgresConfig, logger); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", true, "Apply database migrations before serving")
	return cmd
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return internal_store.Migrate(&cfg.PostgresConfig, logger)
		},
	}
}

type application struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	postgres connectors.PostgresConnector
	redis    connectors.RedisConnector
	server   *http.Server
	shutdown func(context.Context) error
}

func newApplication(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		postgres: connectors.NewPostgresConnector(&cfg.PostgresConfig, logger),
		redis:    connectors.NewRedisConnector(&cfg.RedisConfig, logger),
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, conn := range []connectors.Connector{app.postgres, app.redis} {
		conn := conn
		g.Go(func() error {
			if err := conn.Connect(gCtx); err != nil {
				return fmt.Errorf("failed to connect %s: %w", conn.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	service := internal_recording_service.NewRecordingService(
		cfg,
		logger,
		internal_store.NewRecordingRepository(app.postgres, logger),
		internal_store.NewStateStore(app.redis.GetConnection(), logger, cfg.Recording.StateTTL),
		storage_files.NewStorage(cfg.AssetStoreConfig, logger),
	)
	app.shutdown = service.Shutdown

	engine := recorder_routers.NewEngine(cfg, logger)
	recorder_routers.HealthCheckRoutes(cfg, engine, logger, app.postgres, app.redis)
	recorder_routers.RecordingApiRoute(cfg, engine, logger, service)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func serve(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) error {
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("recorder-api listening on %s", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Infof("shutting down recorder-api")
	}
	return app.close()
}

// close stops accepting requests first, then finalizes open recordings
// before releasing the connectors they persist through.
func (app *application) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := app.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("recordings: %w", err))
	}
	for _, conn := range []connectors.Connector{app.postgres, app.redis} {
		if err := conn.Disconnect(ctx); err != nil {
			app.logger.Warnf("failed to disconnect %s: %v", conn.Name(), err)
		}
	}
	return errors.Join(errs...)
}
