package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/mfcarvalho/legalconsult/internal/config"
	"github.com/mfcarvalho/legalconsult/internal/gcp"
	"github.com/mfcarvalho/legalconsult/internal/models"
	"github.com/mfcarvalho/legalconsult/internal/server"
	"github.com/mfcarvalho/legalconsult/internal/services"
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	genAI, err := gcp.NewGenAI(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.GeminiModel)
	if err != nil {
		return err
	}
	defer genAI.Close()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		slog.Warn("Cloud Storage client unavailable, gs:// URLs disabled.", "error", err)
		storageClient = nil
	} else {
		defer storageClient.Close()
	}

	docs := services.NewDocumentStore(storageClient, cfg.MaxDocumentBytes())
	cacheMgr := services.NewCacheManager(genAI, genAI.Model(), cfg.CacheTTL)
	chat := services.NewChatService(services.NewQueryEngine(genAI))

	// Expired sessions tear down their provider-side cache in the background.
	registry := services.NewRegistry(cfg.SessionTTL, func(conv *models.Conversation) {
		teardownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := cacheMgr.Delete(teardownCtx, conv); err != nil {
			slog.Warn("Failed to delete cache for expired session.", "conversationID", conv.ID, "error", err)
		}
	})

	if cfg.SweepOrphans {
		if swept, err := cacheMgr.SweepOrphans(ctx, registry.LiveCacheNames()); err != nil {
			slog.Warn("Orphan cache sweep failed.", "error", err)
		} else if swept > 0 {
			slog.Info("Swept orphaned cached sessions.", "count", swept)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	handler := server.NewHandler(registry, docs, cacheMgr, chat, cfg.MaxDocumentBytes())
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening.", "port", cfg.Port, "model", cfg.GeminiModel, "cacheTTL", cacheMgr.DefaultTTL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown did not complete cleanly.", "error", err)
	}

	// Deleting sessions here releases every remaining provider-side cache.
	registry.Shutdown()
	return nil
}
