// Package main provides the entry point for the uprelay service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uprelay/uprelay/internal/common/config"
	"github.com/uprelay/uprelay/internal/common/logger"
	"github.com/uprelay/uprelay/internal/relay/journal"
	"github.com/uprelay/uprelay/internal/relay/listing"
	"github.com/uprelay/uprelay/internal/relay/service"
	"github.com/uprelay/uprelay/internal/relay/storage"
	httpapi "github.com/uprelay/uprelay/pkg/api/http"
)

var (
	configPath = flag.String("config", "", "path to config file")
	version    = "dev"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logCfg := logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		Output:      cfg.Logger.Output,
		Development: cfg.Logger.Development,
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.WithComponent("main")
	log.Info("starting uprelay",
		zap.String("version", version),
		zap.String("backend", cfg.Storage.Backend),
	)

	// Initialize storage backend
	backend, err := storage.NewBackend(context.Background(), &cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize storage backend", zap.Error(err))
	}
	defer backend.Close()

	// Initialize upload journal; the relay runs without it if it fails
	var journalStore journal.Store
	if store, err := journal.NewBadgerStore(cfg.Journal.Path); err != nil {
		log.Error("failed to open upload journal, batches will not be recorded", zap.Error(err))
	} else {
		journalStore = store
		defer store.Close()
	}

	// Signed download links only exist on backends that can mint them
	downloadLinks := cfg.Storage.Backend == "s3"
	aggregator := listing.NewAggregator(backend, cfg.Storage.Listing.PageSize, downloadLinks)

	relay := service.NewRelayService(backend, aggregator, journalStore,
		cfg.Storage.Upload.MaxBatchFiles, cfg.Storage.Upload.SignedURLTTL)

	handler := httpapi.NewHandler(relay)

	// Setup Gin
	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger())

	// Register routes
	handler.RegisterRoutes(router)
	registerStatic(router, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// registerStatic mounts the web assets and, on the local backend, the
// uploaded files themselves.
func registerStatic(router *gin.Engine, cfg *config.Config) {
	router.StaticFile("/login.html", filepath.Join(cfg.Web.AssetsDir, "login.html"))
	router.StaticFile("/index.html", filepath.Join(cfg.Web.AssetsDir, "index.html"))
	router.Static("/assets", filepath.Join(cfg.Web.AssetsDir, "assets"))

	if cfg.Storage.Backend != "s3" {
		router.Static("/files", cfg.Storage.Local.Root)
	}
}

// ginLogger returns a Gin middleware that logs requests using zap.
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		requestID := uuid.New().String()
		c.Header("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger.WithRequestID(requestID).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
