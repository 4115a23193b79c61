package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const embeddingsTable = "product_embeddings"

// PGVectorStore keeps embeddings in the product_embeddings table created by
// postgres.Migrate. Several collections can share the table.
type PGVectorStore struct {
	db         *pgxpool.Pool
	collection string
	logger     *zap.Logger
}

func NewPGVectorStore(db *pgxpool.Pool, collection string, logger *zap.Logger) *PGVectorStore {
	return &PGVectorStore{
		db:         db,
		collection: collection,
		logger:     logger,
	}
}

// searchQuery orders by cosine distance and reports 1 - distance as similarity.
func (s *PGVectorStore) searchQuery(vector []float32, k int) (string, []any, error) {
	vec := pgvector.NewVector(vector)

	return squirrel.Select("content", "metadata", "embedding").
		Column(squirrel.Expr("1 - (embedding <=> ?) AS similarity", vec)).
		From(embeddingsTable).
		Where(squirrel.Eq{"collection": s.collection}).
		OrderByClause("embedding <=> ?", vec).
		Limit(uint64(k)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func (s *PGVectorStore) SearchByVector(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	sql, args, err := s.searchQuery(vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			content    string
			metadata   map[string]any
			embedding  pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&content, &metadata, &embedding, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}

		candidates = append(candidates, Candidate{
			Document: schema.Document{
				PageContent: content,
				Metadata:    metadata,
				Score:       float32(similarity),
			},
			Vector:     embedding.Slice(),
			Similarity: float32(similarity),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}

	return candidates, nil
}

func (s *PGVectorStore) insertQuery(docs []schema.Document, vectors [][]float32) (string, []any, []string, error) {
	query := squirrel.Insert(embeddingsTable).
		Columns("id", "collection", "content", "metadata", "embedding").
		Suffix("ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding").
		PlaceholderFormat(squirrel.Dollar)

	// a row may only be touched once per statement, so the last copy of an id wins
	ids := make([]string, len(docs))
	last := make(map[string]int, len(docs))
	for i, doc := range docs {
		ids[i] = DocumentID(s.collection, doc)
		last[ids[i]] = i
	}

	for i, doc := range docs {
		if last[ids[i]] != i {
			continue
		}

		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		query = query.Values(ids[i], s.collection, doc.PageContent, string(metadata), pgvector.NewVector(vectors[i]))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return "", nil, nil, err
	}
	return sql, args, ids, nil
}

func (s *PGVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, vectors [][]float32) ([]string, error) {
	if err := checkLengths(docs, vectors); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	sql, args, ids, err := s.insertQuery(docs, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("failed to insert embeddings: %w", err)
	}

	s.logger.Debug("Embeddings stored",
		zap.String("collection", s.collection),
		zap.Int("count", len(ids)),
	)

	return ids, nil
}

var _ Store = (*PGVectorStore)(nil)
