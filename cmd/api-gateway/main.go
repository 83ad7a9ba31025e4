package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/voice-news-api/api/swagger"
	"github.com/noah-isme/voice-news-api/internal/handler"
	"github.com/noah-isme/voice-news-api/internal/repository"
	"github.com/noah-isme/voice-news-api/internal/security"
	"github.com/noah-isme/voice-news-api/internal/service"
	"github.com/noah-isme/voice-news-api/pkg/cache"
	"github.com/noah-isme/voice-news-api/pkg/config"
	"github.com/noah-isme/voice-news-api/pkg/database"
	"github.com/noah-isme/voice-news-api/pkg/logger"
)

// @title Voice News API
// @version 1.0.0
// @description News catalogue with JWT access tokens and rotating Redis-backed refresh tokens
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	signingKey, err := security.NewSigningKey(cfg.JWT.Secret, cfg.JWT.Algorithm)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	codec := security.NewCodec(signingKey, cfg.JWT.Issuer)

	metrics := service.NewMetricsService()
	validate := validator.New()

	auditRepo := repository.NewAuditRepository(db)
	auditSvc := service.NewAuditService(auditRepo, logr, service.AuditServiceConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: 200 * time.Millisecond,
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	refreshStore := repository.NewRefreshTokenRepository(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.OperationTimeout, logr).WithObserver(metrics)
	tokenSvc := service.NewTokenService(codec, refreshStore, logr, service.TokenServiceConfig{
		AccessTTL:      cfg.JWT.AccessTTL,
		RefreshTTL:     cfg.JWT.RefreshTTL,
		StrictRotation: cfg.Auth.StrictRotation,
	})
	tokenSvc.SetMetrics(metrics)

	userRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(userRepo, tokenSvc, auditSvc, validate, logr, service.AuthConfig{})
	tokenSvc.SetClaimsResolver(authSvc.ResolveClaims)
	userSvc := service.NewUserService(userRepo, tokenSvc, auditSvc, validate, logr, service.AuthConfig{})

	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.News.CacheTTL, logr, cfg.News.CacheEnabled)
	newsSvc := service.NewNewsService(repository.NewNewsRepository(db), cacheSvc, auditSvc, validate, logr, service.NewsServiceConfig{
		CacheTTL:    cfg.News.CacheTTL,
		LatestLimit: cfg.News.LatestLimit,
	})

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Verifier:       tokenSvc,
		Requests:       metrics,
		Audit:          auditSvc,
		Auth:           handler.NewAuthHandler(authSvc),
		Users:          handler.NewUserHandler(userSvc),
		News:           handler.NewNewsHandler(newsSvc),
		AuditLogs:      handler.NewAuditHandler(auditSvc),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
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

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
