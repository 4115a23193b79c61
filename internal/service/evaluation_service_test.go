package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"prod-assistant/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

func testEvaluationConfig() *config.EvaluationConfig {
	return &config.EvaluationConfig{Strictness: 3, Concurrency: 2}
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []int
		expected float64
	}{
		{name: "all useful", verdicts: []int{1, 1, 1}, expected: 1},
		{name: "none useful", verdicts: []int{0, 0}, expected: 0},
		{name: "useful last", verdicts: []int{0, 1}, expected: 0.5},
		{name: "mixed", verdicts: []int{1, 0, 1}, expected: (1 + 2.0/3) / 2},
		{name: "empty", verdicts: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AveragePrecision(tt.verdicts), 1e-9)
		})
	}
}

func TestContextPrecision(t *testing.T) {
	llm := newFakeLLM(func(prompt string) (string, error) {
		if strings.Contains(prompt, "context: useful") {
			return "```json\n{\"reason\": \"mentions battery\", \"verdict\": 1}\n```", nil
		}
		return `{"reason": "unrelated", "verdict": "0"}`, nil
	})
	svc := NewEvaluationService(factoryFor(llm), &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	res := svc.ContextPrecision(context.Background(), "battery?", "It lasts a day", []string{"useful", "noise", "useful too"})

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, MetricContextPrecision, res.Metric)
	assert.InDelta(t, (1+2.0/3)/2, res.Score, 1e-9)
}

func TestContextPrecision_NoContexts(t *testing.T) {
	svc := NewEvaluationService(factoryFor(staticLLM("")), &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	res := svc.ContextPrecision(context.Background(), "q", "a", nil)
	assert.ErrorIs(t, res.Err, ErrNoContexts)
}

func TestContextPrecision_ModelFailureIsReturned(t *testing.T) {
	llm := newFakeLLM(func(string) (string, error) { return "", errBoom })
	svc := NewEvaluationService(factoryFor(llm), &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	res := svc.ContextPrecision(context.Background(), "q", "a", []string{"c"})
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Zero(t, res.Score)
}

func TestContextPrecision_PanicIsReturned(t *testing.T) {
	llm := newFakeLLM(func(string) (string, error) { panic("scorer exploded") })
	svc := NewEvaluationService(factoryFor(llm), &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	var res EvaluationResult
	require.NotPanics(t, func() {
		res = svc.ContextPrecision(context.Background(), "q", "a", []string{"c"})
	})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "scorer exploded")
}

func TestContextPrecision_FactoryFailureIsReturned(t *testing.T) {
	factory := func(context.Context) (llms.Model, error) { return nil, errBoom }
	svc := NewEvaluationService(factory, &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	res := svc.ContextPrecision(context.Background(), "q", "a", []string{"c"})
	assert.ErrorIs(t, res.Err, errBoom)
}

func TestContextPrecision_BuildsFreshModelPerCall(t *testing.T) {
	var built atomic.Int32
	factory := func(context.Context) (llms.Model, error) {
		built.Add(1)
		return staticLLM(`{"reason": "", "verdict": 1}`), nil
	}
	svc := NewEvaluationService(factory, &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	svc.ContextPrecision(context.Background(), "q", "a", []string{"c"})
	svc.ContextPrecision(context.Background(), "q", "a", []string{"c"})

	assert.EqualValues(t, 2, built.Load())
}

func TestResponseRelevancy(t *testing.T) {
	llm := staticLLM(`{"question": "How long does the battery last?", "noncommittal": 0}`)
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"battery life?":                   {1, 0},
			"How long does the battery last?": {0.6, 0.8},
		},
	}
	svc := NewEvaluationService(factoryFor(llm), embedder, testEvaluationConfig(), zap.NewNop())

	res := svc.ResponseRelevancy(context.Background(), "battery life?", "About a day of use.", nil)

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, MetricResponseRelevancy, res.Metric)
	assert.InDelta(t, 0.6, res.Score, 1e-6)
	assert.Len(t, llm.Prompts(), 3)
}

func TestResponseRelevancy_AllNoncommittalScoresZero(t *testing.T) {
	llm := staticLLM(`{"question": "battery life?", "noncommittal": 1}`)
	svc := NewEvaluationService(factoryFor(llm), &fakeEmbedder{fallback: []float32{1, 0}}, testEvaluationConfig(), zap.NewNop())

	res := svc.ResponseRelevancy(context.Background(), "battery life?", "I don't know.", nil)

	require.True(t, res.OK())
	assert.Zero(t, res.Score)
}

func TestResponseRelevancy_EmbedderFailureIsReturned(t *testing.T) {
	llm := staticLLM(`{"question": "q", "noncommittal": 0}`)
	svc := NewEvaluationService(factoryFor(llm), &fakeEmbedder{err: errBoom}, testEvaluationConfig(), zap.NewNop())

	res := svc.ResponseRelevancy(context.Background(), "q", "a", nil)
	assert.ErrorIs(t, res.Err, errBoom)
}

func TestResponseRelevancy_MalformedJSONIsReturned(t *testing.T) {
	svc := NewEvaluationService(factoryFor(staticLLM("not json at all")), &fakeEmbedder{}, testEvaluationConfig(), zap.NewNop())

	res := svc.ResponseRelevancy(context.Background(), "q", "a", nil)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid response format")
}
