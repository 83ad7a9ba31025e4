package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/voice-news-api/internal/middleware"
	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/voice-news-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/voice-news-api/pkg/middleware/requestid"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Logger   *zap.Logger
	Verifier middleware.AccessTokenVerifier
	Requests middleware.RequestObserver
	Audit    middleware.AuditRecorder

	Auth      *AuthHandler
	Users     *UserHandler
	News      *NewsHandler
	AuditLogs *AuditHandler
	Metrics   *MetricsHandler
}

// NewRouter builds the gin engine. The bearer gate runs on every route and never
// rejects; protected groups add RequireAuth and RBAC.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Requests))
	r.Use(middleware.Authenticate(cfg.Verifier, cfg.Logger))

	r.GET("/health", cfg.Metrics.Health)
	r.GET("/ready", cfg.Metrics.Ready)
	r.GET("/metrics", cfg.Metrics.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", cfg.Auth.Register)
	auth.POST("/login", cfg.Auth.Login)
	auth.POST("/refresh", cfg.Auth.Refresh)
	auth.POST("/logout", cfg.Auth.Logout)
	authed := auth.Group("", middleware.AuditDenied(cfg.Audit, "auth"), middleware.RequireAuth())
	authed.POST("/logout-all", cfg.Auth.LogoutAll)
	authed.GET("/sessions", cfg.Auth.Sessions)
	authed.GET("/me", cfg.Auth.Me)
	authed.POST("/change-password", cfg.Auth.ChangePassword)

	news := api.Group("/news", middleware.WithResponseMeta())
	news.GET("", cfg.News.List)
	news.GET("/latest", cfg.News.Latest)
	news.GET("/by-tag", cfg.News.ByTag)
	news.GET("/search", cfg.News.Search)
	news.GET("/by-date-range", cfg.News.ByDateRange)
	news.GET("/by-source", cfg.News.BySource)
	news.GET("/export", cfg.News.Export)
	news.GET("/:id", cfg.News.Get)
	editors := news.Group("", middleware.AuditDenied(cfg.Audit, "news"), middleware.RequireRoles(models.RoleAdmin, models.RoleEditor))
	editors.POST("", cfg.News.Create)
	editors.DELETE("/batch", cfg.News.DeleteBatch)
	editors.PUT("/:id", cfg.News.Update)
	editors.DELETE("/:id", cfg.News.Delete)

	users := api.Group("/users", middleware.AuditDenied(cfg.Audit, "users"), middleware.RequireAuth())
	users.GET("", middleware.RequireRoles(models.RoleAdmin), cfg.Users.List)
	users.POST("", middleware.RequireRoles(models.RoleAdmin), cfg.Users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf), cfg.Users.Get)
	users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf), cfg.Users.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), cfg.Users.Delete)

	admin := api.Group("", middleware.AuditDenied(cfg.Audit, "admin"), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/audit-logs", cfg.AuditLogs.List)
	admin.GET("/metrics/summary", cfg.Metrics.Summary)

	return r
}
