package api

import (
	"context"
	"net/http"
	"sync"

	"coraza-store/internal/app"
	"coraza-store/internal/httpx"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entry point. The runtime is built once per
// instance; the in-process cleanup scheduler is never started here, so
// cleanup runs through /internal/maintenance/cleanup.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(context.Background(), app.Options{
			LoadDotEnv:     false,
			RunMigrations:  app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
			BootstrapAdmin: app.EnvBoolOrDefault("BOOTSTRAP_ADMIN_ON_STARTUP", false),
		})
	})

	if initErr != nil {
		httpx.WriteMessage(w, http.StatusInternalServerError, "application_bootstrap_failed")
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
