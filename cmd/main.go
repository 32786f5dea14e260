package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudsync/internal/MinIO"
	"cloudsync/internal/config"
	"cloudsync/internal/handler/authHandler"
	"cloudsync/internal/handler/fileHandler"
	"cloudsync/internal/handler/folderHandler"
	"cloudsync/internal/handler/shareHandler"
	"cloudsync/internal/repository/BlackListRepo"
	"cloudsync/internal/repository/fileRepo"
	"cloudsync/internal/repository/folderRepo"
	"cloudsync/internal/repository/gcRepo"
	"cloudsync/internal/repository/refreshToken"
	"cloudsync/internal/repository/userRepo"
	"cloudsync/internal/server"
	"cloudsync/internal/service/authService"
	"cloudsync/internal/service/fileService"
	"cloudsync/internal/service/folderService"
	"cloudsync/internal/service/gcService"
	"cloudsync/internal/service/shareToken"
	"cloudsync/pkg/database/postgres"
	"cloudsync/pkg/database/redis"
	"cloudsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, err := logger.New(context.Background(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger(ctx)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, err := postgres.Migrate(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("database schema ready", zap.Uint("version", version))

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("cannot connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	blobs, err := MinIO.New(ctx, cfg.MinIO)
	if err != nil {
		log.Fatal("cannot connect to MinIO", zap.Error(err))
	}

	users := userRepo.New(pool)
	auth, err := authService.New(users, refreshToken.New(redisClient), BlackListRepo.NewBlackListRepo(redisClient),
		authService.Config{
			JWTSecret:      cfg.JWTSecret,
			DefaultQuota:   cfg.Storage.DefaultQuota,
			TokenCacheSize: cfg.TokenCacheSize,
			BcryptCost:     cfg.BcryptCost,
		})
	if err != nil {
		log.Fatal("cannot build auth service", zap.Error(err))
	}

	files := fileRepo.New(pool)
	gc := gcService.New(gcRepo.New(pool), blobs, cfg.GC)
	fileSvc := fileService.New(files, blobs, shareToken.New(files), gc, cfg.Storage.Upload)
	folderSvc := folderService.New(folderRepo.New(pool), gc)

	checks := server.Checks{
		"postgres": server.PingFunc(pool.Ping),
		"redis":    server.RedisPinger(redisClient),
		"minio":    blobs,
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(log, auth, server.Handlers{
		Auth:   authHandler.New(auth),
		Files:  fileHandler.NewFileHandler(fileSvc, cfg.Storage.MaxUploadBytes),
		Folder: folderHandler.New(folderSvc),
		Share:  shareHandler.New(fileSvc),
	}, checks)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, health := server.NewHealthServer()
	lis, err := net.Listen("tcp", net.JoinHostPort("", cfg.GRPCHealthPort))
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.GRPCHealthPort), zap.Error(err))
	}

	go gc.Run(ctx)
	go server.WatchHealth(ctx, health, checks, cfg.HealthInterval)
	go func() {
		log.Info("grpc health server started", zap.String("port", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc health server failed", zap.Error(err))
		}
	}()
	go func() {
		log.Info("http server started", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("server stopped")
}
