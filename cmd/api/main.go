package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "storefront/api/swagger" // swagger docs
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handler"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/ratelimit"
	"storefront/internal/repository"
	"storefront/internal/security"
	"storefront/internal/service"
	"storefront/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const notifyTimeout = 15 * time.Second

// @title           Storefront API
// @version         1.0
// @description     Accounts, sessions and verification codes for the storefront backend.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := logging.New(logging.Options{
		Service: "storefront-api",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if cfg.Release() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := database.NewConnection(cfg.DatabaseDSN, logger, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("connected to PostgreSQL")

	cipher, err := security.NewCipher(cfg.Secrets.EncryptionAlgorithm, cfg.Secrets.EncryptionKey, cfg.Secrets.EncryptionIV)
	if err != nil {
		return err
	}
	hasher, err := security.NewPasswordHasher(cfg.Secrets.BcryptCost)
	if err != nil {
		return err
	}
	issuer := security.NewTokenIssuer(cfg.Secrets.JWTSecret, cfg.Secrets.AccessTokenTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger, cfg.CORSOrigins)
	go wsHub.Run(ctx)

	notifier := notify.NewAsync(newNotifier(cfg, logger), logger, notifyTimeout)
	limiter, closeLimiter := newLimiter(cfg, logger)
	defer closeLimiter()

	// Repository -> Service -> Handler
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(db)
	txManager := repository.NewTransactionManager(db)

	auditService := service.NewAuditService(repository.NewAuditRepository(db), wsHub, logger)
	codeService := service.NewVerificationService(codeRepo, txManager, cipher, notifier, logger, service.VerificationSettings{
		CodeLength: cfg.Secrets.CodeLength,
		CodeTTL:    cfg.Secrets.CodeTTL,
		PublicURL:  cfg.PublicURL,
	})
	authService := service.NewAuthService(userRepo, tokenRepo, txManager, codeService, auditService, hasher, issuer, logger, service.AuthSettings{
		AccessTokenTTL:  cfg.Secrets.AccessTokenTTL,
		RefreshTokenTTL: cfg.Secrets.RefreshTokenTTL,
	})

	housekeeping := service.NewHousekeepingService(codeRepo, tokenRepo, logger, cfg.HousekeepingInterval)
	housekeeping.Start()
	defer housekeeping.Stop()

	router := handler.NewRouter(handler.Dependencies{
		Auth:           authService,
		Users:          service.NewUserService(userRepo, txManager, auditService),
		Orders:         service.NewOrderService(repository.NewOrderRepository(db)),
		PaymentMethods: service.NewPaymentMethodService(repository.NewPaymentMethodRepository(db), cipher),
		Audit:          auditService,
		Limiter:        limiter,
		Cookies: middleware.CookieOptions{
			Secure:     cfg.Release(),
			AccessTTL:  cfg.Secrets.AccessTokenTTL,
			RefreshTTL: cfg.Secrets.RefreshTokenTTL,
		},
		Hub:         wsHub,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace_period", cfg.ShutdownGracePeriod)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	notifier.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

// newNotifier sends email over SMTP when a host is configured and logs
// everything else.
func newNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	logOnly := notify.LogNotifier{Logger: logger}
	router := notify.Router{Email: logOnly, SMS: logOnly}
	if cfg.SMTP.Host != "" {
		router.Email = notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)
		logger.Info("email delivery via SMTP", "host", cfg.SMTP.Host)
	} else {
		logger.Warn("SMTP_HOST not set, verification emails are only logged")
	}
	return router
}

// newLimiter shares counters through Redis when REDIS_ADDR is set.
func newLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, func()) {
	limits := ratelimit.Config{
		Requests: cfg.AuthLimit.Requests,
		Window:   cfg.AuthLimit.Window,
		Burst:    cfg.AuthLimit.Burst,
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(limits), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("rate limiting via redis", "addr", cfg.RedisAddr)
	return ratelimit.NewRedisLimiter(client, "storefront:ratelimit", limits), func() { _ = client.Close() }
}
