package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"prod-assistant/internal/service"
	"prod-assistant/internal/vectorstore"
	"prod-assistant/pkg/config"
	"prod-assistant/pkg/logger"

	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "evaluate [query]",
	Short: "Answer a query and score the answer",
	Long: `Runs the retrieval and generation workflow for the query, then scores the
answer with the context precision and response relevancy metrics.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runEvaluate,
}

func init() {
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "log the documents retrieved for the query")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmService := service.NewLLMService(cfg, appLogger)
	defer llmService.Close()

	chatModel, err := llmService.ChatModel(ctx)
	if err != nil {
		return err
	}
	embedder, err := llmService.Embedder(ctx)
	if err != nil {
		return err
	}

	retriever, err := service.NewRetrieverService(cfg, vectorstore.NewOpener(cfg, appLogger), embedder, chatModel, appLogger)
	if err != nil {
		return err
	}
	defer retriever.Close()

	contexts, answer, err := service.NewGenerationService(retriever, chatModel, appLogger).Invoke(ctx, query, debug)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	cmd.Printf("Query:  %s\n", query)
	cmd.Printf("Answer: %s\n\n", answer)

	evaluator := service.NewEvaluationService(llmService.Factory(), embedder, &cfg.Evaluation, appLogger)
	results := []service.EvaluationResult{
		evaluator.ContextPrecision(ctx, query, answer, contexts),
		evaluator.ResponseRelevancy(ctx, query, answer, contexts),
	}

	for _, r := range results {
		cmd.Println(formatResult(r))
	}

	return nil
}

func formatResult(r service.EvaluationResult) string {
	if !r.OK() {
		return fmt.Sprintf("%-20s error: %v", r.Metric, r.Err)
	}
	return fmt.Sprintf("%-20s %.4f", r.Metric, r.Score)
}
