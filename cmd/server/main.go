package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/deepcatcher-api/internal/classifier"
	"github.com/Brownie44l1/deepcatcher-api/internal/config"
	"github.com/Brownie44l1/deepcatcher-api/internal/handlers"
	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
	"github.com/Brownie44l1/deepcatcher-api/internal/model"
	"github.com/Brownie44l1/deepcatcher-api/internal/pipeline"
	"github.com/Brownie44l1/deepcatcher-api/internal/userservice"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, source, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg)
	zerolog.DefaultContextLogger = &logger
	if source != "" {
		logger.Info().Str("file", source).Msg("config loaded")
	}

	meta, err := model.LoadMetadata(cfg.Model.MetadataPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load model metadata")
	}
	if err := classifier.CheckLabels(meta.Classes); err != nil {
		logger.Fatal().Err(err).Msg("Model labels do not match")
	}
	if meta.ImageSize != cfg.Model.ImageSize {
		logger.Fatal().
			Int("metadata", meta.ImageSize).
			Int("config", cfg.Model.ImageSize).
			Msg("Model image size does not match config")
	}

	logger.Info().Str("path", cfg.Model.Path).Msg("Loading model")
	session, err := model.NewSession(cfg.Model.Path, meta, cfg.Model.SharedLibrary)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize model session")
	}
	defer session.Close()

	size := int64(meta.ImageSize)
	clf := classifier.New(session, classifier.Config{
		InputShape:   [4]int64{1, size, size, imageproc.Channels},
		ApplySoftmax: cfg.Model.ApplySoftmax,
	})

	service, err := userservice.NewClient(
		cfg.UserService.BaseURL,
		cfg.UserService.AuthScheme,
		&http.Client{Timeout: cfg.UserService.Timeout},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid user-service config")
	}

	orchestrator := pipeline.New(clf, service, meta.ImageSize, logger)
	handler := handlers.NewHandler(orchestrator, clf, meta.Classes, meta.ImageSize, cfg.Upload.MaxBytes)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(logger), handlers.EnableCORS(cfg.Server.AllowedOrigin))
	handler.Register(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Server.Port).
			Strs("classes", meta.Classes).
			Str("user_service", cfg.UserService.BaseURL).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Forced shutdown")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "deepcatcher-api").Logger()
}
