package service

import (
	"context"
	"fmt"
	"os"
	"sync"

	"prod-assistant/internal/vectorstore"
	"prod-assistant/pkg/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// RetrieverService builds the MMR + compression pipeline on first use and
// reuses it for every later query.
type RetrieverService struct {
	cfg      *config.Config
	open     vectorstore.Opener
	embedder embeddings.Embedder
	llm      llms.Model
	logger   *zap.Logger

	mu         sync.Mutex
	retriever  schema.Retriever
	closeStore func()
}

// NewRetrieverService fails with a *config.MissingEnvError naming every
// required secret that is not set.
func NewRetrieverService(cfg *config.Config, open vectorstore.Opener, embedder embeddings.Embedder, llm llms.Model, logger *zap.Logger) (*RetrieverService, error) {
	if err := config.CheckEnv(os.LookupEnv, cfg.RequiredEnv()); err != nil {
		return nil, err
	}

	return &RetrieverService{
		cfg:      cfg,
		open:     open,
		embedder: embedder,
		llm:      llm,
		logger:   logger,
	}, nil
}

// Load returns the retrieval pipeline, constructing it once. A failed
// construction is not remembered, the next call tries again.
func (s *RetrieverService) Load(ctx context.Context) (schema.Retriever, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retriever != nil {
		return s.retriever, nil
	}

	store, closeStore, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	mmr := NewMMRRetriever(store, s.embedder, s.cfg.Retriever, s.logger)
	s.retriever = NewCompressionRetriever(mmr, NewLLMChainExtractor(s.llm, s.logger))
	s.closeStore = closeStore

	s.logger.Info("Retriever loaded",
		zap.String("vector_store", s.cfg.VectorStore),
		zap.String("collection", s.cfg.AstraDB.CollectionName),
		zap.Int("top_k", s.cfg.Retriever.TopK),
		zap.Int("fetch_k", s.cfg.Retriever.FetchK),
		zap.Float64("lambda_mult", s.cfg.Retriever.LambdaMult),
		zap.Float64("score_threshold", s.cfg.Retriever.ScoreThreshold),
	)

	return s.retriever, nil
}

// Query runs the pipeline for text.
func (s *RetrieverService) Query(ctx context.Context, text string) ([]schema.Document, error) {
	retriever, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	docs, err := retriever.GetRelevantDocuments(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve documents: %w", err)
	}

	return docs, nil
}

func (s *RetrieverService) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	return s.Query(ctx, query)
}

func (s *RetrieverService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeStore != nil {
		s.closeStore()
		s.closeStore = nil
	}
	s.retriever = nil
}

var _ schema.Retriever = (*RetrieverService)(nil)
