package service

import (
	"context"
	"testing"

	"prod-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProducts(n int) []*models.Product {
	products := make([]*models.Product, n)
	for i := range n {
		products[i] = &models.Product{
			ProductID:  "itm" + string(rune('A'+i)),
			Title:      "Phone " + string(rune('A'+i)),
			Price:      "₹100",
			Rating:     "4.0",
			TopReviews: "review " + string(rune('A'+i)),
		}
	}
	return products
}

func TestProductDocuments(t *testing.T) {
	docs := ProductDocuments([]*models.Product{
		{ProductID: "itm1", Title: "Phone", Rating: "4.5", TotalReviews: "10", Price: "₹100", TopReviews: "Nice || Good"},
		nil,
	})

	require.Len(t, docs, 1)
	assert.Equal(t, "Nice || Good", docs[0].PageContent)
	assert.Equal(t, map[string]any{
		"product_id":    "itm1",
		"product_title": "Phone",
		"rating":        "4.5",
		"total_reviews": "10",
		"price":         "₹100",
	}, docs[0].Metadata)
}

func TestProductDocuments_DropsInvalidUTF8(t *testing.T) {
	docs := ProductDocuments([]*models.Product{{TopReviews: "Good\xffphone"}})
	assert.Equal(t, "Goodphone", docs[0].PageContent)
}

func TestIngest_Batches(t *testing.T) {
	store := &fakeStore{}
	svc := NewIngestService(&fakeEmbedder{fallback: []float32{1, 0}}, 2, zap.NewNop())

	written, err := svc.Ingest(context.Background(), store, testProducts(5))
	require.NoError(t, err)

	assert.Equal(t, 5, written)
	assert.Equal(t, 3, store.batches)
	require.Len(t, store.added, 5)
	assert.Len(t, store.vectors, 5)
	assert.Equal(t, "review A", store.added[0].PageContent)
	assert.Equal(t, "Phone E", store.added[4].Metadata["product_title"])
}

func TestIngest_EmbedFailureStops(t *testing.T) {
	store := &fakeStore{}
	svc := NewIngestService(&fakeEmbedder{err: errBoom}, 2, zap.NewNop())

	written, err := svc.Ingest(context.Background(), store, testProducts(3))
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, written)
	assert.Empty(t, store.added)
}

func TestIngest_StoreFailureReportsProgress(t *testing.T) {
	store := &fakeStore{addErr: errBoom}
	svc := NewIngestService(&fakeEmbedder{fallback: []float32{1}}, 0, zap.NewNop())

	written, err := svc.Ingest(context.Background(), store, testProducts(2))
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, written)
}

func TestDimension(t *testing.T) {
	svc := NewIngestService(&fakeEmbedder{fallback: []float32{0.1, 0.2, 0.3}}, 0, zap.NewNop())

	dim, err := svc.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	_, err = NewIngestService(&fakeEmbedder{}, 0, zap.NewNop()).Dimension(context.Background())
	assert.Error(t, err)
}
