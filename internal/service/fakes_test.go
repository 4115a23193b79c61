package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"prod-assistant/internal/scraper"
	"prod-assistant/internal/vectorstore"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// fakeLLM answers every prompt through respond and records what it saw.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func newFakeLLM(respond func(prompt string) (string, error)) *fakeLLM {
	return &fakeLLM{respond: respond}
}

func staticLLM(answer string) *fakeLLM {
	return newFakeLLM(func(string) (string, error) { return answer, nil })
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				b.WriteString(tc.Text)
			}
		}
	}
	prompt := b.String()

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	answer, err := f.respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *fakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func factoryFor(model llms.Model) ModelFactory {
	return func(context.Context) (llms.Model, error) { return model, nil }
}

// fakeEmbedder maps known texts to vectors and everything else to fallback.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
}

func (e *fakeEmbedder) vector(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	return e.fallback
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

type fakeStore struct {
	candidates []vectorstore.Candidate
	err        error
	lastK      int

	addErr  error
	added   []schema.Document
	vectors [][]float32
	batches int
}

func (s *fakeStore) SearchByVector(_ context.Context, _ []float32, k int) ([]vectorstore.Candidate, error) {
	s.lastK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func (s *fakeStore) AddDocuments(_ context.Context, docs []schema.Document, vectors [][]float32) ([]string, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.batches++
	s.added = append(s.added, docs...)
	s.vectors = append(s.vectors, vectors...)
	return make([]string, len(docs)), nil
}

// fakeRetriever returns the same documents for every query.
type fakeRetriever struct {
	mu      sync.Mutex
	docs    []schema.Document
	byQuery map[string][]schema.Document
	err     error
	calls   []string
}

func (r *fakeRetriever) GetRelevantDocuments(_ context.Context, query string) ([]schema.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, query)
	if r.err != nil {
		return nil, r.err
	}
	if docs, ok := r.byQuery[query]; ok {
		return docs, nil
	}
	return r.docs, nil
}

type fakeSource struct {
	listings     []scraper.Listing
	searchErr    error
	reviews      map[string][]string
	reviewErr    error
	reviewCalls  []string
	searchCalled bool
}

func (s *fakeSource) Search(_ context.Context, _ string, max int) ([]scraper.Listing, error) {
	s.searchCalled = true
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.listings) > max {
		return s.listings[:max], nil
	}
	return s.listings, nil
}

func (s *fakeSource) FetchReviews(_ context.Context, productURL string, count int) ([]string, error) {
	s.reviewCalls = append(s.reviewCalls, productURL)
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	reviews := s.reviews[productURL]
	if len(reviews) > count {
		reviews = reviews[:count]
	}
	return reviews, nil
}

var errBoom = errors.New("boom")
