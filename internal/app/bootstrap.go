package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"coraza-store/internal/account"
	"coraza-store/internal/activation"
	"coraza-store/internal/audit"
	"coraza-store/internal/auth"
	"coraza-store/internal/db"
	"coraza-store/internal/loader"
	"coraza-store/internal/loginhistory"
	"coraza-store/internal/maintenance"
	"coraza-store/internal/media"
	"coraza-store/internal/observability"
	"coraza-store/internal/product"
	"coraza-store/internal/stats"
	"coraza-store/internal/user"
)

type Options struct {
	LoadDotEnv     bool
	RunMigrations  bool
	BootstrapAdmin bool
	// Registry defaults to a fresh registry per runtime.
	Registry *prometheus.Registry
}

type Runtime struct {
	Config  Config
	Logger  *observability.Logger
	Handler http.Handler
	// Scheduler is nil unless CLEANUP_SCHEDULE is set. The caller starts and
	// stops it.
	Scheduler *maintenance.Scheduler
	Close     func() error
}

func LoadEnvironment(loadDotEnv bool) (Config, *observability.Logger, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return Config{}, nil, err
	}

	logger := observability.NewLogger(cfg.Environment, cfg.LogLevel)
	observability.TrustProxyHeaders(cfg.TrustProxyHeaders)
	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, cfg.Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	return cfg, logger, nil
}

func OpenDatabase(ctx context.Context, cfg Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

func Migrate(ctx context.Context, database *sql.DB, logger *observability.Logger) error {
	applied, err := db.RunMigrations(ctx, database)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations_applied", map[string]any{"count": len(applied), "versions": applied})
	return nil
}

type AdminUpserter interface {
	UpsertAdmin(ctx context.Context, username, email, passwordHash string) (user.User, error)
}

// BootstrapAdmin creates or resets the administrator named by ADMIN_USERNAME.
// It does nothing when no admin credentials are configured.
func BootstrapAdmin(ctx context.Context, admins AdminUpserter, cfg Config, logger *observability.Logger) error {
	if cfg.AdminUsername == "" && cfg.AdminPassword == "" {
		return nil
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if !auth.PasswordLengthOK(cfg.AdminPassword) {
		return fmt.Errorf("ADMIN_PASSWORD must be %d to %d bytes", auth.MinPasswordLength, auth.MaxPasswordBytes)
	}

	email := cfg.AdminEmail
	if email == "" {
		email = strings.ToLower(cfg.AdminUsername) + "@coraza.clothing"
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	admin, err := admins.UpsertAdmin(ctx, cfg.AdminUsername, email, hash)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	logger.Info("admin_bootstrapped", map[string]any{"user_id": admin.ID.String(), "username": admin.Username})
	return nil
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, logger, err := LoadEnvironment(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	database, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	closers := []func() error{database.Close}
	fail := func(err error) (*Runtime, error) {
		closeAll(closers)
		return nil, err
	}

	if options.RunMigrations {
		if err := Migrate(ctx, database, logger); err != nil {
			return fail(err)
		}
	}

	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}

	tokens, err := auth.NewTokenService(cfg.SecretKey)
	if err != nil {
		return fail(err)
	}

	userRepo := user.NewRepository(database)
	historyRepo := loginhistory.NewRepository(database)
	auditRepo := audit.NewRepository(database)
	productRepo := product.NewRepository(database)
	keyRepo := activation.NewRepository(database)
	statsRepo := stats.NewRepository(database)

	if options.BootstrapAdmin {
		if err := BootstrapAdmin(ctx, userRepo, cfg, logger); err != nil {
			return fail(err)
		}
	}

	recorder := audit.NewRecorder(auditRepo, logger).WithFailureCounter(metrics.AuditFailures)
	if cfg.AMQPURL != "" {
		publisher := audit.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		recorder.WithPublisher(publisher)
		// Closers run in reverse: drain the queue before the connection goes.
		closers = append(closers, publisher.Close, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return recorder.Close(ctx)
		})
	}

	var limiter auth.RateLimiter
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client.Close)
		limiter = auth.NewRedisLimiter(client, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
	} else {
		limiter = auth.NewMemoryLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
	}

	var uploader media.ImageUploader
	var uploads http.Handler
	if cfg.CloudinaryURL != "" {
		cloudinary, err := media.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return fail(fmt.Errorf("init cloudinary: %w", err))
		}
		uploader = cloudinary
	} else {
		local, err := media.NewLocalStorage(cfg.UploadDir, "/uploads")
		if err != nil {
			return fail(err)
		}
		uploader = local
		uploads = local.FileServer()
	}

	cleaner := maintenance.NewCleaner(historyRepo, auditRepo, maintenance.Retention{
		LoginHistory: cfg.LoginHistoryRetention,
		ActionLogs:   cfg.ActionLogRetention,
		BatchSize:    cfg.CleanupBatchSize,
	}, logger)

	var scheduler *maintenance.Scheduler
	if cfg.CleanupSchedule != "" {
		scheduler, err = maintenance.NewScheduler(cfg.CleanupSchedule, cleaner, logger)
		if err != nil {
			return fail(err)
		}
	}

	accounts := account.NewService(userRepo, historyRepo, tokens).WithMetrics(metrics)

	handler := newRouter(handlers{
		logger:         logger,
		metrics:        metrics,
		cors:           observability.CORSConfig{AllowedOrigins: cfg.AllowedOrigins, MaxAge: 3600},
		authenticator:  auth.NewAuthenticator(tokens, userRepo, logger),
		internalSecret: InternalSecret,
		loginLimiter:   limiter,
		health:         healthHandler(database),
		uploads:        uploads,
		accounts:       account.NewHandler(accounts, logger),
		users:          user.NewHandler(userRepo, recorder, logger),
		products:       product.NewHandler(productRepo, recorder, logger),
		images:         media.NewUploadHandler(uploader, recorder, logger),
		keys:           activation.NewHandler(keyRepo, recorder, logger),
		loader:         loader.NewHandler(accounts, userRepo, keyRepo, productRepo, tokens, recorder, logger),
		actionLogs:     audit.NewHandler(auditRepo, logger),
		loginHistory:   loginhistory.NewHandler(historyRepo, logger),
		stats:          stats.NewHandler(statsRepo, logger),
		cleanup:        maintenance.NewCleanupHandler(cleaner, logger),
	})

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Handler:   handler,
		Scheduler: scheduler,
		Close: func() error {
			observability.FlushSentry()
			err := closeAll(closers)
			_ = logger.Sync()
			return err
		},
	}, nil
}

// closeAll runs closers in reverse order and joins their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
