package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"prod-assistant/internal/api"
	"prod-assistant/internal/api/handlers"
	"prod-assistant/internal/service"
	"prod-assistant/internal/vectorstore"
	"prod-assistant/pkg/config"
	"prod-assistant/pkg/logger"

	"go.uber.org/zap"
)

// @title Product Assistant API
// @version 1.0
// @description Question answering over scraped product listings and reviews

// @host localhost:8000
// @BasePath /

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting product assistant",
		zap.String("vector_store", cfg.VectorStore),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	ctx := context.Background()

	// Models
	llmService := service.NewLLMService(cfg, appLogger)
	defer llmService.Close()

	chatModel, err := llmService.ChatModel(ctx)
	if err != nil {
		appLogger.Fatal("Failed to initialize chat model", zap.Error(err))
	}

	embedder, err := llmService.Embedder(ctx)
	if err != nil {
		appLogger.Fatal("Failed to initialize embedder", zap.Error(err))
	}

	// Retrieval pipeline is built lazily on the first query
	retrieverService, err := service.NewRetrieverService(cfg, vectorstore.NewOpener(cfg, appLogger), embedder, chatModel, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize retriever", zap.Error(err))
	}
	defer retrieverService.Close()

	generationService := service.NewGenerationService(retrieverService, chatModel, appLogger)
	evaluationService := service.NewEvaluationService(llmService.Factory(), embedder, &cfg.Evaluation, appLogger)
	newAgent := service.NewAgentFactory(llmService.Factory(), retrieverService, appLogger)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(func() handlers.ChatAgent { return newAgent() }, appLogger)
	evalHandler := handlers.NewEvaluationHandler(generationService, evaluationService, appLogger)

	// Setup router
	app := api.SetupRouter(chatHandler, evalHandler, cfg, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
