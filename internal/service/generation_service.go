package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// NoDocumentsFound is the context handed to the model when retrieval is empty.
const NoDocumentsFound = "No relevant documents found."

const docSeparator = "\n\n---\n\n"

type PromptType string

const PromptProductBot PromptType = "product_bot"

const productBotTemplate = `You are an expert EcommerceBot specialized in product recommendations and handling customer queries.
Analyze the provided product titles, ratings, and reviews to provide accurate, helpful responses.
Stay relevant to the context, and keep your answers concise and informative.

CONTEXT:
{{.context}}

QUESTION: {{.question}}

YOUR ANSWER:`

// PromptRegistry holds the prompt templates by purpose.
var PromptRegistry = map[PromptType]prompts.PromptTemplate{
	PromptProductBot: prompts.NewPromptTemplate(productBotTemplate, []string{"context", "question"}),
}

// FormatDocs renders documents as Title/Price/Rating/Reviews blocks.
func FormatDocs(docs []schema.Document) string {
	if len(docs) == 0 {
		return NoDocumentsFound
	}

	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, fmt.Sprintf(
			"Title: %s\nPrice: %s\nRating: %s\nReviews:\n%s",
			metaString(doc.Metadata, "product_title"),
			metaString(doc.Metadata, "price"),
			metaString(doc.Metadata, "rating"),
			strings.TrimSpace(doc.PageContent),
		))
	}

	return strings.Join(chunks, docSeparator)
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return "N/A"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Chain retrieves context for a question, fills the product prompt and
// returns the model's answer as plain text.
type Chain struct {
	retriever schema.Retriever
	prompt    prompts.PromptTemplate
	llm       llms.Model
	parser    outputparser.Simple
}

func (c *Chain) Invoke(ctx context.Context, question string) (string, error) {
	docs, err := c.retriever.GetRelevantDocuments(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	return c.answer(ctx, FormatDocs(docs), question)
}

func (c *Chain) answer(ctx context.Context, formatted, question string) (string, error) {
	prompt, err := c.prompt.Format(map[string]any{
		"context":  formatted,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	raw, err := generate(ctx, c.llm, prompt)
	if err != nil {
		return "", err
	}

	parsed, err := c.parser.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse answer: %w", err)
	}

	answer, _ := parsed.(string)
	return answer, nil
}

type GenerationService struct {
	retriever schema.Retriever
	llm       llms.Model
	logger    *zap.Logger
}

func NewGenerationService(retriever schema.Retriever, llm llms.Model, logger *zap.Logger) *GenerationService {
	return &GenerationService{
		retriever: retriever,
		llm:       llm,
		logger:    logger,
	}
}

func (s *GenerationService) newChain() *Chain {
	return &Chain{
		retriever: s.retriever,
		prompt:    PromptRegistry[PromptProductBot],
		llm:       s.llm,
		parser:    outputparser.NewSimple(),
	}
}

// BuildChain returns the chain together with the formatted context of its
// own retrieval. Invoking the chain retrieves again, so the two may differ.
func (s *GenerationService) BuildChain(ctx context.Context, query string) (*Chain, []string, error) {
	docs, err := s.retriever.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	return s.newChain(), []string{FormatDocs(docs)}, nil
}

// Invoke builds the chain and runs it. With debug set, one more retrieval is
// made and its context logged; the answer does not depend on it.
func (s *GenerationService) Invoke(ctx context.Context, query string, debug bool) ([]string, string, error) {
	chain, contexts, err := s.BuildChain(ctx, query)
	if err != nil {
		return nil, "", err
	}

	if debug {
		docs, err := s.retriever.GetRelevantDocuments(ctx, query)
		if err != nil {
			s.logger.Warn("Debug retrieval failed", zap.Error(err))
		} else {
			s.logger.Info("Retrieved documents",
				zap.String("query", query),
				zap.String("context", FormatDocs(docs)),
			)
		}
	}

	answer, err := chain.Invoke(ctx, query)
	if err != nil {
		return nil, "", err
	}

	return contexts, answer, nil
}
