package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"theme-store/internal/config"
	"theme-store/internal/db"
	"theme-store/internal/email"
	apihttp "theme-store/internal/http"
	"theme-store/internal/repository"
	"theme-store/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		logger.Info("schema applied")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
	}

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	settingsRepo := repository.NewPgSettingsRepository(pool)

	settings := service.NewSettingsProvider(logger, settingsRepo, cfg.Store.OTPSettings())
	if err := settings.Reload(ctx); err != nil {
		logger.Warn("initial settings load failed, using environment defaults", zap.Error(err))
	}
	go settings.Run(ctx, cfg.SettingsReloadInterval)

	emailSender := newEmailSender(cfg, settings, logger)

	var (
		locker     service.IssueLocker
		limiter    service.ClientRateLimiter
		tokenStore service.RefreshTokenStore
	)
	if redisClient != nil {
		locker = service.NewRedisIssueLocker(redisClient, 10*time.Second)
		limiter = service.NewRedisClientRateLimiter(redisClient, time.Minute, cfg.AuthRateLimitPerMinute)
		tokenStore = service.NewRedisRefreshTokenStore(redisClient)
	} else {
		locker = service.NewMemoryIssueLocker()
		limiter = service.NewMemoryClientRateLimiter(time.Minute, cfg.AuthRateLimitPerMinute)
		tokenStore = service.NewMemoryRefreshTokenStore()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	userSvc := service.NewUserService(logger, userRepo)
	jwtSvc.WithAccountLookup(userSvc)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	otpSvc := service.NewOTPService(logger, otpRepo, userRepo, settings, emailSender, locker, jwtSvc, cfg.SiteURL)

	janitor := service.NewOTPJanitor(logger, otpRepo, settings)
	go janitor.Run(ctx, cfg.OTPCleanupInterval)

	authHandler := apihttp.NewAuthHandler(logger, otpSvc, userSvc, jwtSvc)
	healthHandler := apihttp.NewHealthHandler(logger, healthChecks(pool, redisClient))
	router := apihttp.NewRouter(logger, authHandler, healthHandler, jwtSvc, limiter, cfg.CORSOrigins())

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newEmailSender decide el transporte en cada envío: la API HTTP cuando hay API key
// (entorno o settings), y si no SMTP, o un sender deshabilitado si SMTP no está configurado.
func newEmailSender(cfg *config.Config, settings *service.SettingsProvider, logger *zap.Logger) email.Sender {
	apiKey := func() string { return settings.Current().EmailAPIKey }

	var fallback email.Sender
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			fallback = sender
		}
	}

	var api email.Sender
	if cfg.EmailAPIBaseURL != "" {
		api = email.NewHTTPSender(cfg.EmailAPIBaseURL, apiKey, nil)
	}
	if api != nil && apiKey() == "" && fallback == nil {
		logger.Warn("email api key not configured yet")
	}
	return email.NewKeyedSender(api, apiKey, fallback)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]apihttp.HealthCheck {
	checks := map[string]apihttp.HealthCheck{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx, pool) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
