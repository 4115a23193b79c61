package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

var ErrAgentNotInitialized = errors.New("agent is not initialized")

// productKeywords send a message down the retrieval path.
var productKeywords = []string{"price", "review", "product", "rating", "buy", "recommend", "compare", "best"}

const (
	directTemplate = `You are a helpful assistant. Answer the user directly.

Question: {{.question}}
Answer:`

	gradeTemplate = `You are a grader. Question: {{.question}}
Docs: {{.docs}}
Are these docs relevant to the question? Answer yes or no.`

	rewriteTemplate = `Rewrite this user query to make it more clear and specific for a search engine. Do NOT answer the query. Only rewrite it.
Query: {{.question}}
Rewritten Query:`
)

// AgentFactory returns a new, uninitialized agent.
type AgentFactory func() *Agent

func NewAgentFactory(newLLM ModelFactory, retriever schema.Retriever, logger *zap.Logger) AgentFactory {
	return func() *Agent {
		return &Agent{
			newLLM:    newLLM,
			retriever: retriever,
			logger:    logger,
		}
	}
}

// Agent answers one chat message. Product questions go through retrieval,
// grading and at most one query rewrite before generation; anything else is
// answered directly.
type Agent struct {
	newLLM    ModelFactory
	retriever schema.Retriever
	logger    *zap.Logger

	llm   llms.Model
	chain *Chain
}

// Init builds the model the agent talks to.
func (a *Agent) Init(ctx context.Context) error {
	llm, err := a.newLLM(ctx)
	if err != nil {
		return fmt.Errorf("failed to create agent llm: %w", err)
	}

	a.llm = llm
	a.chain = &Chain{
		retriever: a.retriever,
		prompt:    PromptRegistry[PromptProductBot],
		llm:       llm,
		parser:    outputparser.NewSimple(),
	}
	return nil
}

func (a *Agent) Run(ctx context.Context, message string) (string, error) {
	if a.llm == nil {
		return "", ErrAgentNotInitialized
	}

	message = strings.TrimSpace(message)
	if !IsProductQuestion(message) {
		a.logger.Debug("Answering directly", zap.String("message", message))
		return a.ask(ctx, directTemplate, map[string]any{"question": message})
	}

	query := message
	var docs []schema.Document

	for attempt := 0; attempt < 2; attempt++ {
		var err error
		docs, err = a.retriever.GetRelevantDocuments(ctx, query)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve documents: %w", err)
		}

		relevant, err := a.grade(ctx, query, docs)
		if err != nil {
			return "", err
		}
		if relevant || attempt == 1 {
			break
		}

		rewritten, err := a.ask(ctx, rewriteTemplate, map[string]any{"question": query})
		if err != nil {
			return "", err
		}

		a.logger.Info("Query rewritten",
			zap.String("original", query),
			zap.String("rewritten", rewritten),
		)
		query = rewritten
	}

	return a.chain.answer(ctx, FormatDocs(docs), message)
}

func (a *Agent) grade(ctx context.Context, question string, docs []schema.Document) (bool, error) {
	if len(docs) == 0 {
		return false, nil
	}

	verdict, err := a.ask(ctx, gradeTemplate, map[string]any{
		"question": question,
		"docs":     FormatDocs(docs),
	})
	if err != nil {
		return false, err
	}

	return strings.HasPrefix(strings.ToLower(verdict), "yes"), nil
}

func (a *Agent) ask(ctx context.Context, template string, values map[string]any) (string, error) {
	vars := make([]string, 0, len(values))
	for k := range values {
		vars = append(vars, k)
	}

	prompt, err := prompts.NewPromptTemplate(template, vars).Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	return generate(ctx, a.llm, prompt)
}

// IsProductQuestion reports whether message mentions a shopping topic.
func IsProductQuestion(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range productKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
