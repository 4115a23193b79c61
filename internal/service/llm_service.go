package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"prod-assistant/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ModelFactory returns a chat model. Agents and evaluators ask for a fresh
// one per call; LLMService hands out wrappers over one shared client.
type ModelFactory func(ctx context.Context) (llms.Model, error)

// LLMService owns the provider client and the process-wide request limiter.
// The client is built once and shared; every ChatModel call only adds a
// fresh rate-limited wrapper around it.
type LLMService struct {
	cfg     *config.Config
	limiter *rate.Limiter
	logger  *zap.Logger

	newClient ModelFactory

	mu     sync.Mutex
	client llms.Model
}

func NewLLMService(cfg *config.Config, logger *zap.Logger) *LLMService {
	limit := rate.Inf
	if cfg.RateLimit.LLMRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimit.LLMRequestsPerSecond)
	}

	s := &LLMService{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, max(cfg.RateLimit.LLMBurst, 1)),
		logger:  logger,
	}
	s.newClient = s.providerClient
	return s
}

// ChatModel returns a rate-limited model over the shared provider client.
func (s *LLMService) ChatModel(ctx context.Context) (llms.Model, error) {
	client, err := s.sharedClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedModel(client, s.limiter), nil
}

// sharedClient builds the provider client on first use. A failed build is
// not remembered.
func (s *LLMService) sharedClient(ctx context.Context) (llms.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *LLMService) providerClient(ctx context.Context) (llms.Model, error) {
	var (
		model llms.Model
		err   error
	)

	switch s.cfg.LLM.Provider {
	case config.LLMProviderGoogle, "":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(s.cfg.LLM.APIKey),
			googleai.WithDefaultModel(s.cfg.LLM.ModelName),
			googleai.WithDefaultTemperature(s.cfg.LLM.Temperature),
			googleai.WithDefaultMaxTokens(s.cfg.LLM.MaxOutputTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google AI client: %w", err)
		}

	case config.LLMProviderGigaChat:
		// token refresh outlives the caller's request context
		model, err = NewGigaChatModel(context.WithoutCancel(ctx), &s.cfg.GigaChat, s.logger)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.cfg.LLM.Provider)
	}

	s.logger.Info("LLM client created",
		zap.String("provider", s.cfg.LLM.Provider),
		zap.String("model", s.cfg.LLM.ModelName),
	)

	return model, nil
}

// Close releases the shared client if its provider holds resources.
func (s *LLMService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if closer, ok := s.client.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("Failed to close LLM client", zap.Error(err))
		}
	}
	s.client = nil
}

// Factory exposes ChatModel as a ModelFactory.
func (s *LLMService) Factory() ModelFactory {
	return s.ChatModel
}

// Embedder returns the embedding client for the configured embedding model.
func (s *LLMService) Embedder(ctx context.Context) (embeddings.Embedder, error) {
	if p := s.cfg.Embedding.Provider; p != "" && p != config.LLMProviderGoogle {
		return nil, fmt.Errorf("unsupported embedding provider %q", p)
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(s.cfg.LLM.APIKey),
		googleai.WithDefaultEmbeddingModel(s.cfg.Embedding.ModelName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return embedder, nil
}

// RateLimitedModel waits on a shared limiter before every request.
type RateLimitedModel struct {
	model   llms.Model
	limiter *rate.Limiter
}

func NewRateLimitedModel(model llms.Model, limiter *rate.Limiter) *RateLimitedModel {
	return &RateLimitedModel{model: model, limiter: limiter}
}

func (m *RateLimitedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return m.model.GenerateContent(ctx, messages, options...)
}

func (m *RateLimitedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GigaChatModel serves langchaingo callers from a GigaChat client.
type GigaChatModel struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	logger *zap.Logger
}

func NewGigaChatModel(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatModel, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}

	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = "GigaChat"
	}

	return &GigaChatModel{
		client: client,
		model:  client.GenerativeModel(name),
		logger: logger,
	}, nil
}

// GenerateContent flattens the conversation into a single user turn.
func (m *GigaChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	prompt := flattenMessages(messages)

	resp, err := m.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	choices := make([]*llms.ContentChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, &llms.ContentChoice{Content: c.Message.Content})
	}

	return &llms.ContentResponse{Choices: choices}, nil
}

func (m *GigaChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *GigaChatModel) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	return nil
}

func flattenMessages(messages []llms.MessageContent) string {
	var parts []string
	for _, msg := range messages {
		var text strings.Builder
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		if text.Len() == 0 {
			continue
		}
		if msg.Role == llms.ChatMessageTypeHuman || len(messages) == 1 {
			parts = append(parts, text.String())
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, text.String()))
	}
	return strings.Join(parts, "\n\n")
}

// generate sends a single prompt and returns the first choice's text.
func generate(ctx context.Context, model llms.Model, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var (
	_ llms.Model = (*RateLimitedModel)(nil)
	_ llms.Model = (*GigaChatModel)(nil)
)
