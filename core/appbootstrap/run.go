// Package appbootstrap wires the configuration, database, stores and
// HTTP server into a running process.
package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crisishub/api"
	"crisishub/config"
	"crisishub/core/bootstrap"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

const shutdownGrace = 10 * time.Second

// Run starts the service and blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	logger := utils.NewLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("compose runtime: %w", err)
	}

	if err := bootstrap.EnsureDefaultAdmin(ctx, comp.serverDeps.Users, cfg, logger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	policy, err := rbac.NewPolicy()
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	for _, w := range comp.workers {
		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	defer func() {
		for _, w := range comp.workers {
			w.Stop()
		}
	}()

	srv := api.NewServer(cfg, comp.serverDeps, policy, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("shutting down on %s", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
