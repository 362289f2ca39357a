package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shifahealth/platform/cmd/mainconfig"
	"github.com/shifahealth/platform/internal/api/router"
	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/auth"
	"github.com/shifahealth/platform/internal/clinics"
	appconfig "github.com/shifahealth/platform/internal/config"
	"github.com/shifahealth/platform/internal/guard"
	httpmiddleware "github.com/shifahealth/platform/internal/http/middleware"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/notify"
	"github.com/shifahealth/platform/internal/observability/metrics"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting shifa platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.SessionSecret == "" || cfg.ClinicSecret == "" {
		logger.Error("SESSION_SECRET and CLINIC_TOKEN_SECRET are required")
		os.Exit(1)
	}

	ctx := context.Background()

	// Storage. Without DATABASE_URL the server runs on in-memory stores,
	// which is only useful for local development.
	var (
		users           identity.Repository
		membershipsRepo membership.Repository
		clinicsRepo     clinics.Repository
		auditService    *audit.Service
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		users = identity.NewPostgresRepository(pool)
		membershipsRepo = membership.NewPostgresRepository(pool)
		clinicsRepo = clinics.NewPostgresRepository(pool)

		auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open audit db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
		auditService = audit.NewService(auditDB)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		users = identity.NewInMemoryRepository()
		membershipsRepo = membership.NewInMemoryRepository()
		clinicsRepo = clinics.NewInMemoryRepository()
	}

	// Membership cache.
	var invalidator selection.Invalidator
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, membership cache disabled", "error", err)
		} else {
			cached := membership.NewCachedRepository(membershipsRepo, redisClient, cfg.MembershipCacheTTL, logger)
			membershipsRepo = cached
			invalidator = cached
		}
	}

	// Email notifications.
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			sender = sg
		} else {
			logger.Warn("SENDGRID_API_KEY not set, email notifications disabled")
			sender = notify.NewStubEmailSender(logger)
		}
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	default:
		sender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(sender, logger)

	tenancyMetrics := metrics.NewTenancyMetrics(prometheus.DefaultRegisterer)

	issuer := identity.NewTokenIssuer(cfg.SessionSecret, cfg.ClinicSecret, cfg.SessionTTL, cfg.ClinicTokenTTL)
	cookies := selection.NewCookieStore(cfg.SecureCookies, cfg.ClinicTokenTTL)
	selections := selection.NewService(membershipsRepo, issuer, cookies, invalidator, auditService, tenancyMetrics, logger)
	routeGuard := guard.New(issuer, cfg.SessionCookie, membershipsRepo, selections, auditService, tenancyMetrics, logger)

	var loginLimiter *httpmiddleware.LoginLimiter
	if cfg.LoginRatePerSecond > 0 {
		loginLimiter = httpmiddleware.NewLoginLimiter(cfg.LoginRatePerSecond, cfg.LoginRateBurst)
	}

	routerCfg := &router.Config{
		Logger:             logger,
		Auth:               auth.NewHandler(users, issuer, cookies, cfg.SessionCookie, cfg.SessionTTL, cfg.SecureCookies, loginLimiter, auditService, tenancyMetrics, logger),
		Clinics:            clinics.NewHandler(membershipsRepo, selections, logger),
		Members:            clinics.NewMembersHandler(membershipsRepo, users, clinicsRepo, invalidator, notifier, auditService, logger),
		Guard:              routeGuard,
		Audit:              auditService,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
