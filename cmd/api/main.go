package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/redoswald/todopus/internal/app"
	"github.com/redoswald/todopus/internal/archive"
	"github.com/redoswald/todopus/internal/assistant"
	"github.com/redoswald/todopus/internal/blob"
	"github.com/redoswald/todopus/internal/config"
	"github.com/redoswald/todopus/internal/email"
	"github.com/redoswald/todopus/internal/search"
	"github.com/redoswald/todopus/internal/session"
	"github.com/redoswald/todopus/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		logger.Info("refresh sessions backed by redis")
		service = app.NewService(dataStore, redisStore, cfg.TokenSecret, cfg.AccessTTL, cfg.RefreshTTL, logger)
	} else {
		logger.Info("refresh sessions backed by postgres")
		service = app.NewService(dataStore, dataStore, cfg.TokenSecret, cfg.AccessTTL, cfg.RefreshTTL, logger)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		if meiliClient != nil {
			defer meiliClient.Close()
		}
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	searchService.ReindexAllFromPG(ctx)
	service.SetSearch(searchService)

	if strings.TrimSpace(cfg.AssistantKey) != "" {
		service.SetAssistant(assistant.NewClient(cfg.AssistantURL, cfg.AssistantKey, cfg.AssistantModel, cfg.AssistantLimit))
		logger.Info("assistant proposals enabled", zap.String("model", cfg.AssistantModel))
	}

	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			logger.Fatal("create archive dir failed", zap.Error(err))
		}
		service.SetArchive(archive.New(cfg.ArchiveDir))
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := blob.New(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Fatal("minio connection failed", zap.Error(err))
		}
		service.SetBlobs(blobs)
		logger.Info("attachments enabled", zap.String("bucket", cfg.MinioBucket))
	}

	mailerService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailerService.IsConfigured() {
		service.SetMailer(mailerService)
		logger.Info("share invitation email enabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("todopus api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
