// Package httptransport 提供搜索服务的 HTTP 接入层。
package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsearch/backend/internal/config"
	"mailsearch/backend/internal/health"
	"mailsearch/backend/internal/middleware"
	"mailsearch/backend/internal/monitoring"
	"mailsearch/backend/internal/search"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	Orchestrator *search.Orchestrator
	Health       *health.HealthChecker
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mon.PanicRecovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))
	router.Use(mon.HTTPMetrics())
	router.Use(mon.RateLimitMetrics())

	// 搜索触发的日期窗口扫描代价高，入口处统一限流
	router.Use(middleware.NewRateLimiter(10, 20).Handler())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	searchHandler := NewSearchHandler(deps.Orchestrator, deps.Config.Search.MaxSearchResults, deps.Logger)
	accessHandler := NewAccessHandler(deps.Orchestrator, deps.Logger)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/emails/search", searchHandler.Search)
		v1.GET("/mailbox/access", accessHandler.Check)
	}

	// 运维端点
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Health.CheckHealth())
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	return router
}
