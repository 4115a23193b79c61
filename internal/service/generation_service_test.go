package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

func TestFormatDocs_Empty(t *testing.T) {
	assert.Equal(t, "No relevant documents found.", FormatDocs(nil))
	assert.Equal(t, "No relevant documents found.", FormatDocs([]schema.Document{}))
}

func TestFormatDocs_FieldOrderAndDefaults(t *testing.T) {
	docs := []schema.Document{
		{
			PageContent: "  Great phone || Battery ok \n",
			Metadata: map[string]any{
				"product_title": "iPhone 16",
				"price":         "₹79,999",
				"rating":        "4.6",
			},
		},
		{PageContent: "No reviews found"},
	}

	got := FormatDocs(docs)

	expected := "Title: iPhone 16\nPrice: ₹79,999\nRating: 4.6\nReviews:\nGreat phone || Battery ok" +
		"\n\n---\n\n" +
		"Title: N/A\nPrice: N/A\nRating: N/A\nReviews:\nNo reviews found"
	assert.Equal(t, expected, got)

	title := strings.Index(got, "Title:")
	price := strings.Index(got, "Price:")
	rating := strings.Index(got, "Rating:")
	reviews := strings.Index(got, "Reviews:")
	assert.True(t, title < price && price < rating && rating < reviews)
}

func TestFormatDocs_NonStringMetadata(t *testing.T) {
	got := FormatDocs([]schema.Document{{PageContent: "x", Metadata: map[string]any{"rating": 4.5}}})
	assert.Contains(t, got, "Rating: 4.5\n")
}

func TestGenerationService_BuildChainSnapshotsContext(t *testing.T) {
	retriever := &fakeRetriever{docs: []schema.Document{
		{PageContent: "Loud speakers", Metadata: map[string]any{"product_title": "Phone X"}},
	}}
	svc := NewGenerationService(retriever, staticLLM("answer"), zap.NewNop())

	chain, contexts, err := svc.BuildChain(context.Background(), "speakers?")
	require.NoError(t, err)
	require.NotNil(t, chain)
	require.Len(t, contexts, 1)
	assert.Contains(t, contexts[0], "Title: Phone X")
	assert.Len(t, retriever.calls, 1)
}

func TestGenerationService_Invoke(t *testing.T) {
	retriever := &fakeRetriever{docs: []schema.Document{
		{PageContent: "Camera is sharp", Metadata: map[string]any{"product_title": "Pixel"}},
	}}
	llm := staticLLM("  The Pixel camera is sharp.  ")
	svc := NewGenerationService(retriever, llm, zap.NewNop())

	contexts, answer, err := svc.Invoke(context.Background(), "How is the camera?", false)
	require.NoError(t, err)

	assert.Equal(t, "The Pixel camera is sharp.", answer)
	assert.Equal(t, []string{FormatDocs(retriever.docs)}, contexts)

	// build-time snapshot plus the chain's own retrieval
	assert.Len(t, retriever.calls, 2)

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "QUESTION: How is the camera?")
	assert.Contains(t, prompts[0], "Reviews:\nCamera is sharp")
}

func TestGenerationService_InvokeDebugRetrievesOnceMore(t *testing.T) {
	retriever := &fakeRetriever{}
	svc := NewGenerationService(retriever, staticLLM("ok"), zap.NewNop())

	_, answer, err := svc.Invoke(context.Background(), "q", true)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Len(t, retriever.calls, 3)
}

func TestGenerationService_EmptyRetrievalUsesPlaceholder(t *testing.T) {
	llm := staticLLM("I could not find that product.")
	svc := NewGenerationService(&fakeRetriever{}, llm, zap.NewNop())

	contexts, _, err := svc.Invoke(context.Background(), "unknown gadget", false)
	require.NoError(t, err)
	assert.Equal(t, []string{NoDocumentsFound}, contexts)
	assert.Contains(t, llm.Prompts()[0], NoDocumentsFound)
}

func TestGenerationService_RetrievalErrorPropagates(t *testing.T) {
	svc := NewGenerationService(&fakeRetriever{err: errBoom}, staticLLM("unused"), zap.NewNop())

	_, _, err := svc.Invoke(context.Background(), "q", false)
	assert.ErrorIs(t, err, errBoom)
}
