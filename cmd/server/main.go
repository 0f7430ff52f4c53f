// Command server boots the inspection server: loads configuration, wires
// the Image Store, Template Store, History Ring and Pipeline Orchestrator
// behind the Service Facade, and serves the collaborator HTTP surface
// until signaled to stop. Grounded on the teacher's cmd/main.go
// (panic-recovery defer, signal.Notify, context-timeout shutdown) and
// internal/app/app_with_cache.go's construction order.
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

	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/config"
	"github.com/uragamarco/proyecto-balistica/internal/history"
	"github.com/uragamarco/proyecto-balistica/internal/httpapi"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/pipeline"
	"github.com/uragamarco/proyecto-balistica/internal/service"
	"github.com/uragamarco/proyecto-balistica/internal/templatestore"
)

func main() {
	configPath := flag.String("config", "configs/default.yml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("loading configuration: " + err.Error())
	}

	logger, err := config.NewLogger(cfg.Logging.Level, cfg.Logging.Output)
	if err != nil {
		panic("initializing logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	defer func() {
		if r := recover(); r != nil {
			logger.Fatal("recovered panic", zap.Any("reason", r), zap.Stack("stack"))
		}
	}()

	logger.Info("starting inspection server",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	images := imagestore.New(cfg.Store.MaxImages, cfg.Store.MaxBytes(), cfg.Store.EvictionBatchSize, logger)

	templates, err := templatestore.Open(cfg.Template.StoragePath, cfg.Template.MaxTemplates, logger)
	if err != nil {
		logger.Fatal("opening template store", zap.Error(err))
	}
	defer func() {
		if err := templates.Close(); err != nil {
			logger.Error("closing template store", zap.Error(err))
		}
	}()

	hist := history.New(cfg.History.BufferSize, logger)
	orch := pipeline.New(images, cfg.Store.ThumbnailMaxWidth, cfg.Store.ThumbnailJPEGQuality, logger)
	facade := service.New(images, templates, hist, orch, logger)
	router := httpapi.New(images, templates, hist, facade, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router.Engine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during graceful shutdown", zap.Error(err))
	}

	logger.Info("server stopped", zap.Int("images_cached", images.Count()), zap.Int("templates", len(templates.List())))
}
