package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"opendays/config"
	"opendays/handlers"
	"opendays/ui"
	"opendays/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("starting", "environment", cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]func(context.Context) error{}

	// Local database: users, and contact submissions when no Postgres is configured.
	sqliteDB, err := utils.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer sqliteDB.Close()
	if err := utils.MigrateSQLite(ctx, sqliteDB); err != nil {
		return err
	}
	healthChecks["sqlite"] = sqliteDB.PingContext

	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = utils.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		if err := utils.MigratePostgres(ctx, pgPool); err != nil {
			return err
		}
		healthChecks["postgres"] = pgPool.Ping
	}

	var redisClient *redis.Client
	if cfg.SessionBackend == config.BackendRedis || cfg.RateLimitBackend == config.BackendRedis {
		redisClient, err = utils.OpenRedisPool(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	tmpl, err := ui.Templates()
	if err != nil {
		return err
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		token, err := utils.GenerateToken(32)
		if err != nil {
			return err
		}
		secret = []byte(token)
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}

	policies := utils.DefaultPolicies().With(utils.PolicyLimits{
		Contact:       cfg.ContactRateLimit,
		Login:         cfg.LoginRateLimit,
		Register:      cfg.RegisterRateLimit,
		PasswordReset: cfg.ResetRateLimit,
	}, cfg.RateLimitWindow)

	app := &handlers.App{
		Logger:                logger,
		Templates:             tmpl,
		Policies:              policies,
		Hasher:                utils.NewHasher(cfg.BcryptCost),
		Static:                os.DirFS(cfg.StaticDir),
		HealthChecks:          healthChecks,
		RequireLogin:          cfg.RequireLogin,
		TrustProxy:            cfg.TrustProxy,
		ForgotPasswordGeneric: cfg.ForgotPasswordGeneric,
	}

	app.Limiter = newLimiter(cfg, redisClient)
	app.Sessions = utils.NewSessionManager(newSessionStore(cfg, redisClient), secret, cfg.SessionTTL, cfg.SecureCookies)
	app.Users = newUserStore(cfg, sqliteDB, pgPool)
	app.Mailer = newMailer(cfg, logger)

	if cfg.ThrottleRPS > 0 {
		app.Throttle = utils.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst)
		app.Throttle.StartJanitor(ctx, 2*time.Minute)
	}

	var contacts utils.ContactStore = utils.NewSQLiteContactStore(sqliteDB)
	if pgPool != nil {
		contacts = utils.NewPostgresContactStore(pgPool)
	}
	app.Pipeline = &handlers.SubmissionPipeline{
		Limiter: app.Limiter,
		Policy:  policies.Contact,
		Store:   contacts,
		Logger:  logger,
	}

	if !cfg.ForgotPasswordGeneric {
		logger.Warn("forgot-password reveals whether an email is registered; set FORGOT_PASSWORD_GENERIC=true to hide it")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLimiter(cfg *config.Config, client *redis.Client) utils.RateLimiter {
	if cfg.RateLimitBackend == config.BackendRedis {
		return utils.NewRedisLimiter(client)
	}
	return utils.NewMemoryLimiter()
}

func newSessionStore(cfg *config.Config, client *redis.Client) utils.SessionStore {
	if cfg.SessionBackend == config.BackendRedis {
		return utils.NewRedisSessionStore(client)
	}
	return utils.NewMemorySessionStore()
}

func newUserStore(cfg *config.Config, sqliteDB *sql.DB, pool *pgxpool.Pool) utils.UserStore {
	if cfg.UserStore == "postgres" && pool != nil {
		return utils.NewPostgresUserStore(pool)
	}
	return utils.NewSQLiteUserStore(sqliteDB)
}

func newMailer(cfg *config.Config, logger *slog.Logger) utils.Mailer {
	if cfg.SendGridAPIKey == "" {
		return utils.NoopMailer{}
	}
	return utils.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, cfg.SupportURL, logger)
}
