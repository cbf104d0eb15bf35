package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/lgulliver/stockpile/cmd/api-gateway/middleware"
	"github.com/lgulliver/stockpile/cmd/api-gateway/routes"
	"github.com/lgulliver/stockpile/docs"
	"github.com/lgulliver/stockpile/internal/auth"
	"github.com/lgulliver/stockpile/internal/common"
	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/internal/upload"
	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/utils"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting Stockpile API Gateway")

	blobStorage, err := storage.NewStorageFactory(&cfg.Storage).CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	sessions, closeSessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Upload.SessionStore).Msg("Failed to initialize session store")
	}
	defer closeSessions()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	uploadService := upload.NewService(blobStorage, sessions, &cfg.Upload, upload.NewMetrics(registry))
	authService := auth.NewService(&cfg.Auth)

	checker, err := utils.NewProtocolChecker(cfg.Upload.ProtocolVersion, cfg.Upload.ProtocolConstraint)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid protocol version settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := upload.NewSweeper(uploadService, cfg.Upload.SessionTTL, cfg.Upload.CleanupInterval)
	go sweeper.Run(ctx)

	router := setupRouter(cfg, uploadService, authService, checker, registry)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Type).
			Str("session_store", cfg.Upload.SessionStore).
			Bool("auth", authService.Enabled()).
			Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Give in-flight finalizes time to commit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("Server shutdown complete")
}

// newSessionStore builds the configured session backend and its closer
func newSessionStore(cfg *config.Config) (upload.SessionStore, func(), error) {
	switch cfg.Upload.SessionStore {
	case "database":
		db, err := common.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return upload.NewGormSessionStore(db), func() { db.Close() }, nil
	case "redis":
		cache, err := common.NewCache(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return upload.NewRedisSessionStore(cache, cfg.Upload.SessionTTL), func() { cache.Close() }, nil
	default:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		return upload.NewMemorySessionStore(), func() {}, nil
	}
}

func setupRouter(cfg *config.Config, uploadService routes.UploadServiceInterface, authService *auth.Service, checker *utils.ProtocolChecker, gatherer prometheus.Gatherer) *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          "stockpile-api-gateway",
			"protocol_version": checker.ServerVersion(),
			"time":             time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if u, err := url.Parse(cfg.Upload.PublicBaseURL); err == nil && u.Host != "" {
		docs.SwaggerInfo.Host = u.Host
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.FileRoutes(router, uploadService)

	api := router.Group("/api/v1")
	{
		authGuard := middleware.AuthMiddleware(authService)

		routes.AuthRoutes(api, authService, authGuard)
		routes.UploadRoutes(api, uploadService, cfg.Upload.MaxChunkSize,
			middleware.ProtocolVersionMiddleware(checker),
			authGuard,
		)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-API-Key, "+middleware.ProtocolHeader)
		c.Header("Access-Control-Expose-Headers", middleware.ProtocolHeader)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
