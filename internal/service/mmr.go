package service

import (
	"context"
	"fmt"
	"math"

	"prod-assistant/internal/vectorstore"
	"prod-assistant/pkg/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity returns 0 for empty, zero or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	x, y := toFloat64(a), toFloat64(b)
	norm := floats.Norm(x, 2) * floats.Norm(y, 2)
	if norm == 0 {
		return 0
	}
	return floats.Dot(x, y) / norm
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// MaxMarginalRelevance greedily picks up to k candidate indices, trading
// similarity to the query (weight lambda) against similarity to the
// candidates already picked (weight 1 - lambda).
func MaxMarginalRelevance(query []float32, candidates [][]float32, lambda float64, k int) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = CosineSimilarity(query, c)
	}

	selected := make([]int, 0, k)
	picked := make([]bool, len(candidates))

	// redundancy[i] is the max similarity of candidate i to any selected one
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := lambda * querySim[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}

		picked[best] = true
		selected = append(selected, best)

		for i := range candidates {
			if !picked[i] {
				redundancy[i] = math.Max(redundancy[i], CosineSimilarity(candidates[i], candidates[best]))
			}
		}
	}

	return selected
}

// MMRRetriever searches a vector store and re-ranks the candidate pool with
// maximal marginal relevance.
type MMRRetriever struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	cfg      config.RetrieverConfig
	logger   *zap.Logger
}

func NewMMRRetriever(store vectorstore.Store, embedder embeddings.Embedder, cfg config.RetrieverConfig, logger *zap.Logger) *MMRRetriever {
	return &MMRRetriever{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *MMRRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := r.store.SearchByVector(ctx, queryVector, max(r.cfg.FetchK, r.cfg.TopK))
	if err != nil {
		return nil, err
	}

	var kept []vectorstore.Candidate
	for _, c := range candidates {
		if float64(c.Similarity) >= r.cfg.ScoreThreshold {
			kept = append(kept, c)
		}
	}

	vectors := make([][]float32, len(kept))
	for i, c := range kept {
		vectors[i] = c.Vector
	}

	order := MaxMarginalRelevance(queryVector, vectors, r.cfg.LambdaMult, r.cfg.TopK)

	docs := make([]schema.Document, 0, len(order))
	for _, i := range order {
		docs = append(docs, kept[i].Document)
	}

	r.logger.Debug("MMR retrieval finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("above_threshold", len(kept)),
		zap.Int("selected", len(docs)),
	)

	return docs, nil
}

var _ schema.Retriever = (*MMRRetriever)(nil)
