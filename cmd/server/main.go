package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsearch/backend/internal/cache"
	"mailsearch/backend/internal/config"
	"mailsearch/backend/internal/connection"
	"mailsearch/backend/internal/health"
	"mailsearch/backend/internal/logger"
	"mailsearch/backend/internal/mailstore"
	"mailsearch/backend/internal/mailstore/imapstore"
	"mailsearch/backend/internal/mailstore/memstore"
	"mailsearch/backend/internal/monitoring"
	"mailsearch/backend/internal/pool"
	"mailsearch/backend/internal/search"
	httptransport "mailsearch/backend/internal/transport/http"
)

// main 启动邮件搜索 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailsearch server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("mailstore_backend", cfg.Mailstore.Backend),
	)

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 会话工厂：每次调用返回一条独立的存储会话
	var dial func() mailstore.Store
	if cfg.Mailstore.Backend == "imap" {
		dial = func() mailstore.Store {
			return imapstore.NewStore(imapstore.Options{
				Host:            cfg.Mailstore.Host,
				Port:            cfg.Mailstore.Port,
				Username:        cfg.Mailstore.Username,
				Password:        cfg.Mailstore.Password,
				TLS:             cfg.Mailstore.TLS,
				ExtendedLogin:   cfg.Mailstore.UseExtendedLogin,
				SharedNamespace: cfg.Mailstore.SharedNamespace,
				BatchSize:       cfg.Search.BatchProcessingSize,
			}, log)
		}
		log.Info("using IMAP mail store",
			zap.String("host", cfg.Mailstore.Host),
			zap.Int("port", cfg.Mailstore.Port),
		)
	} else {
		// 内存存储（开发环境），所有会话共享同一份数据
		devStore := memstore.NewStore()
		dial = func() mailstore.Store { return devStore }
		log.Info("using in-memory mail store (development mode)")
	}

	// 初始化连接管理
	manager := connection.NewManager(dial, connection.Config{
		SharedMailboxEmail: cfg.Mailstore.SharedMailboxEmail,
		MaxRetries:         cfg.Mailstore.MaxConnectionRetries,
		BackoffBase:        cfg.Mailstore.ConnectBackoffBase,
	}, log)
	manager.SetMetrics(metrics)

	if !manager.SharedConfigured() {
		log.Warn("shared mailbox not configured, shared scope disabled",
			zap.String("hint", "set MAILSEARCH_MAILSTORE_SHARED_MAILBOX_EMAIL to enable"),
		)
	}

	// 初始化结果缓存
	resultCache := cache.NewResultCache(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	// 初始化搜索编排器
	orchestrator := search.NewOrchestrator(
		manager,
		resultCache,
		search.Normalizer{
			MaxBodyChars:         cfg.Search.MaxBodyChars,
			MaxRecipientsDisplay: cfg.Search.MaxRecipientsDisplay,
			CleanHTML:            cfg.Search.CleanHTMLContent,
		},
		search.NewRetention(cfg.Search.PersonalRetentionMonths, cfg.Search.SharedRetentionMonths),
		search.Options{
			SearchAllFolders: cfg.Search.SearchAllFolders,
			BatchSize:        cfg.Search.BatchProcessingSize,
		},
		log,
	)
	orchestrator.SetMetrics(metrics)

	// 范围搜索协程池：两个邮箱范围各占一个工作协程
	workers := pool.NewWorkerPool(2, 4, log)
	orchestrator.SetWorkerPool(workers)

	// 初始化健康检查：就绪与否取决于是否存在可用的存储会话
	storeProbe := func() error {
		if !manager.Connected() {
			return fmt.Errorf("no mail store session established")
		}
		return nil
	}
	healthChecker := health.NewHealthChecker(storeProbe, log)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.MailStoreDisconnectedRule(storeProbe))

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		Orchestrator: orchestrator,
		Health:       healthChecker,
		Metrics:      metrics,
		Logger:       log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期缓存条目 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		log.Info("starting cache purge task", zap.Duration("interval", 10*time.Minute))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("cache purge task stopped")
				return nil
			case <-ticker.C:
				if purged := resultCache.PurgeExpired(); purged > 0 {
					log.Info("expired cache entries purged", zap.Int("count", purged))
				}
				metrics.UpdateCacheEntries(resultCache.Len())
			}
		}
	})

	// 告警监控 goroutine
	group.Go(func() error {
		log.Info("starting alert monitoring", zap.Duration("interval", time.Minute))
		alertManager.StartMonitoring(groupCtx, time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关闭 HTTP 服务器
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 关闭存储会话
		manager.Close()

		workers.Stop()
		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
