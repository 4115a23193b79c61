package service

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NoOutput is what the extractor model answers when nothing in a document
// is relevant to the question.
const NoOutput = "NO_OUTPUT"

const extractorConcurrency = 4

const extractTemplate = `Given the following question and context, extract any part of the context *AS IS* that is relevant to answer the question. If none of the context is relevant return NO_OUTPUT.

Remember, *DO NOT* edit the extracted parts of the context.

> Question: {{.question}}
> Context:
>>>
{{.context}}
>>>
Extracted relevant parts:`

// LLMChainExtractor asks a model to cut each document down to the excerpt
// relevant to the query. Documents with nothing relevant are dropped.
type LLMChainExtractor struct {
	llm    llms.Model
	prompt prompts.PromptTemplate
	parser outputparser.Simple
	logger *zap.Logger
}

func NewLLMChainExtractor(llm llms.Model, logger *zap.Logger) *LLMChainExtractor {
	return &LLMChainExtractor{
		llm:    llm,
		prompt: prompts.NewPromptTemplate(extractTemplate, []string{"question", "context"}),
		parser: outputparser.NewSimple(),
		logger: logger,
	}
}

// Compress keeps the input order of the documents that survive.
func (e *LLMChainExtractor) Compress(ctx context.Context, query string, docs []schema.Document) ([]schema.Document, error) {
	excerpts := make([]string, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractorConcurrency)

	for i, doc := range docs {
		g.Go(func() error {
			excerpt, err := e.extract(gctx, query, doc.PageContent)
			if err != nil {
				return err
			}
			excerpts[i] = excerpt
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	compressed := make([]schema.Document, 0, len(docs))
	for i, doc := range docs {
		if excerpts[i] == "" {
			continue
		}
		doc.PageContent = excerpts[i]
		compressed = append(compressed, doc)
	}

	e.logger.Debug("Documents compressed",
		zap.Int("input", len(docs)),
		zap.Int("kept", len(compressed)),
	)

	return compressed, nil
}

func (e *LLMChainExtractor) extract(ctx context.Context, query, content string) (string, error) {
	prompt, err := e.prompt.Format(map[string]any{
		"question": query,
		"context":  content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format extractor prompt: %w", err)
	}

	raw, err := generate(ctx, e.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to extract relevant parts: %w", err)
	}

	parsed, err := e.parser.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse extractor output: %w", err)
	}

	text, _ := parsed.(string)
	if text == NoOutput {
		return "", nil
	}
	return text, nil
}

// CompressionRetriever runs a base retriever and passes its documents
// through an LLMChainExtractor.
type CompressionRetriever struct {
	base       schema.Retriever
	compressor *LLMChainExtractor
}

func NewCompressionRetriever(base schema.Retriever, compressor *LLMChainExtractor) *CompressionRetriever {
	return &CompressionRetriever{
		base:       base,
		compressor: compressor,
	}
}

func (r *CompressionRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	docs, err := r.base.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return docs, nil
	}
	return r.compressor.Compress(ctx, query, docs)
}

var _ schema.Retriever = (*CompressionRetriever)(nil)
