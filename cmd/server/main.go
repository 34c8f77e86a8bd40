package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"comic-shelf/internal/config"
	apphttp "comic-shelf/internal/http"
	"comic-shelf/internal/repository/sqlite"
	"comic-shelf/internal/service"
	"comic-shelf/internal/storage"
	"comic-shelf/internal/upload"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
	logger.Info("bye")
}

// run serves the API until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	store, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	pipeline := upload.NewPipeline(store, upload.Config{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MaxPages:    cfg.Upload.MaxPages,
		Logger:      logger,
	})

	tokens, err := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	users := service.NewUserService(sqlite.NewUserRepository(db), tokens, cfg.Auth.BcryptCost, logger)
	comics := service.NewComicService(sqlite.NewComicRepository(db), pipeline, logger)

	// best effort
	if _, err := users.SeedAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.WithError(err).Warn("seed admin user")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = 8 << 20
	apphttp.NewHandler(apphttp.Config{
		Users:          users,
		Comics:         comics,
		Storage:        store,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Production:     cfg.IsProduction(),
		MaxUploadBytes: pipeline.MaxRequestBytes(),
		LoginRate:      cfg.Auth.LoginRate,
	}).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "env": cfg.Server.Env}).Info("comic-shelf listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	return nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Driver != "s3" {
		local, err := storage.NewLocalService(cfg.Upload.Dir)
		if err != nil {
			return nil, err
		}
		logger.WithField("dir", cfg.Upload.Dir).Info("storing uploads on local disk")
		return local, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	remote, err := storage.NewS3Service(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{"bucket": cfg.Storage.Bucket, "region": cfg.Storage.Region}).Info("storing uploads in s3")
	return remote, nil
}
