package service

import (
	"context"
	"fmt"

	"prod-assistant/internal/models"
	"prod-assistant/internal/vectorstore"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const defaultIngestBatchSize = 50

// IngestService embeds scraped products and writes them to a vector store.
type IngestService struct {
	embedder  embeddings.Embedder
	batchSize int
	logger    *zap.Logger
}

func NewIngestService(embedder embeddings.Embedder, batchSize int, logger *zap.Logger) *IngestService {
	if batchSize <= 0 {
		batchSize = defaultIngestBatchSize
	}
	return &IngestService{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProductDocuments turns each product into one document: the reviews are the
// searchable text and the listing fields travel as metadata.
func ProductDocuments(products []*models.Product) []schema.Document {
	docs := make([]schema.Document, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: sanitizeUTF8(p.TopReviews),
			Metadata:    p.Metadata(),
		})
	}
	return docs
}

// Dimension reports the embedding size so the store can be prepared for it.
func (s *IngestService) Dimension(ctx context.Context) (int, error) {
	vec, err := s.embedder.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("failed to embed probe: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("embedder returned an empty vector")
	}
	return len(vec), nil
}

// Ingest embeds and stores the products in batches. It returns how many
// documents were written before the first failure.
func (s *IngestService) Ingest(ctx context.Context, store vectorstore.Store, products []*models.Product) (int, error) {
	docs := ProductDocuments(products)
	written := 0

	for start := 0; start < len(docs); start += s.batchSize {
		batch := docs[start:min(start+s.batchSize, len(docs))]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.PageContent
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("failed to embed documents: %w", err)
		}

		if _, err := store.AddDocuments(ctx, batch, vectors); err != nil {
			return written, fmt.Errorf("failed to add documents: %w", err)
		}

		written += len(batch)
		s.logger.Info("Ingested batch",
			zap.Int("batch_size", len(batch)),
			zap.Int("written", written),
			zap.Int("total", len(docs)),
		)
	}

	return written, nil
}
