package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studyware/coursechat/internal/api"
	"github.com/studyware/coursechat/internal/chunker"
	"github.com/studyware/coursechat/internal/config"
	"github.com/studyware/coursechat/internal/embedding/openai"
	"github.com/studyware/coursechat/internal/llm"
	"github.com/studyware/coursechat/internal/service"
	"github.com/studyware/coursechat/internal/session"
	"github.com/studyware/coursechat/internal/vectorstore"
	"github.com/studyware/coursechat/internal/vectorstore/memory"
	"github.com/studyware/coursechat/internal/vectorstore/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	reindex    = flag.Bool("reindex", false, "Clear the index and re-ingest all documents")
)

func main() {
	flag.Parse()

	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Vector index backend
	var (
		backend    vectorstore.Backend
		closeStore func() error
	)
	switch cfg.Store.Backend {
	case "sqlite":
		sq, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			logger.Fatal("Failed to open vector store", zap.Error(err))
		}
		backend = sq
		closeStore = sq.Close
	case "memory":
		backend = memory.New()
	}

	embedder := openai.NewClient(openai.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})

	store := vectorstore.New(backend, embedder, vectorstore.Options{
		MaxResults:       cfg.Store.MaxResults,
		ResolveThreshold: cfg.Store.ResolveThreshold,
	})

	chatModel := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	ck, err := chunker.New(chunker.Config{
		Size:    cfg.Chunker.Size,
		Overlap: cfg.Chunker.Overlap,
		Unit:    cfg.Chunker.Unit,
	})
	if err != nil {
		logger.Fatal("Invalid chunker config", zap.Error(err))
	}

	sessions := session.NewStore(cfg.Session.MaxHistory)

	svc, err := service.New(logger, store, chatModel, ck, sessions)
	if err != nil {
		logger.Fatal("Failed to create service", zap.Error(err))
	}

	// Ingestion is a one-time startup phase; the server starts accepting
	// queries only after it completes.
	ingestCtx, cancelIngest := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancelIngest()

	var courses, chunks int
	if *reindex {
		courses, chunks, err = svc.Reindex(ingestCtx, cfg.Docs.Path)
	} else {
		courses, chunks, err = svc.IngestDirectory(ingestCtx, cfg.Docs.Path)
	}
	if err != nil {
		logger.Fatal("Failed to ingest documents", zap.Error(err))
	}
	logger.Info("Ingestion complete",
		zap.Int("courses_added", courses),
		zap.Int("chunks_added", chunks),
		zap.String("docs_path", cfg.Docs.Path),
	)

	handler := api.NewHandler(svc, logger, cfg.Docs.Path)
	router := api.SetupRouter(handler, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: []string{"*"},
	})

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting CourseChat server", zap.String("address", cfg.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close vector store", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
