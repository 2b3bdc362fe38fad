package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coraza-store/internal/app"
	"coraza-store/internal/user"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var skipMigrations bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), !skipMigrations)
		},
	}
	serve.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")

	root := &cobra.Command{
		Use:           "coraza-store",
		Short:         "Coraza store API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newMigrateCmd(), newBootstrapAdminCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.LoadEnvironment(true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := app.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			return app.Migrate(cmd.Context(), database, logger)
		},
	}
}

func newBootstrapAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create or reset the administrator from ADMIN_USERNAME / ADMIN_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.LoadEnvironment(true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.AdminUsername == "" {
				return errors.New("ADMIN_USERNAME is not set")
			}

			database, err := app.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			return app.BootstrapAdmin(cmd.Context(), user.NewRepository(database), cfg, logger)
		},
	}
}

func runServe(parent context.Context, runMigrations bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := app.Build(ctx, app.Options{
		LoadDotEnv:     true,
		RunMigrations:  runMigrations,
		BootstrapAdmin: true,
	})
	if err != nil {
		return err
	}
	defer runtime.Close()

	logger := runtime.Logger
	if runtime.Scheduler != nil {
		runtime.Scheduler.Start()
	}

	server := &http.Server{
		Addr:              runtime.Config.BindAddress,
		Handler:           runtime.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_start", map[string]any{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server_failed", map[string]any{"error": err.Error()})
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("server_shutdown", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if runtime.Scheduler != nil {
		runtime.Scheduler.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return nil
}
