// Package vectorstore contains the vector database backends the retriever
// searches and the ingestion command writes to.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
)

// Candidate is a stored document returned by a similarity search together
// with its embedding, so callers can re-rank without another round-trip.
type Candidate struct {
	Document   schema.Document
	Vector     []float32
	Similarity float32
}

// Store is the part of a vector database the application relies on.
type Store interface {
	// SearchByVector returns up to k nearest documents, most similar first.
	SearchByVector(ctx context.Context, vector []float32, k int) ([]Candidate, error)
	// AddDocuments stores docs with their embeddings and returns their ids.
	// Documents carrying the same product id replace each other.
	AddDocuments(ctx context.Context, docs []schema.Document, vectors [][]float32) ([]string, error)
}

// DocumentID derives a stable id from the product id in the metadata, or a
// random one when the document has none.
func DocumentID(collection string, doc schema.Document) string {
	if pid, ok := doc.Metadata["product_id"].(string); ok && pid != "" && pid != "N/A" {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+pid)).String()
	}
	return uuid.New().String()
}

func checkLengths(docs []schema.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents and vectors length mismatch: %d != %d", len(docs), len(vectors))
	}
	return nil
}
