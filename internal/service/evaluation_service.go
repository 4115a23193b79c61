package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"prod-assistant/pkg/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MetricContextPrecision  = "context_precision"
	MetricResponseRelevancy = "response_relevancy"
)

var ErrNoContexts = errors.New("no retrieved contexts to evaluate")

// EvaluationResult carries either a score in [0, 1] or the failure that
// prevented scoring.
type EvaluationResult struct {
	Metric string
	Score  float64
	Err    error
}

func (r EvaluationResult) OK() bool {
	return r.Err == nil
}

const contextPrecisionTemplate = `Given question, answer and context verify if the context was useful in arriving at the given answer. Give verdict as "1" if useful and "0" if not with json output.

Respond only with a JSON object of the form {"reason": "<short explanation>", "verdict": 0 or 1}.

question: {{.question}}
answer: {{.answer}}
context: {{.context}}
`

const responseRelevancyTemplate = `Generate a question for the given answer and identify if the answer is noncommittal. Give noncommittal as 1 if the answer is noncommittal and 0 if the answer is committal. A noncommittal answer is one that is evasive, vague, or ambiguous. For example, "I don't know" or "I'm not sure" are noncommittal answers.

Respond only with a JSON object of the form {"question": "<generated question>", "noncommittal": 0 or 1}.

response: {{.response}}
`

type verdictOutput struct {
	Reason  string `json:"reason"`
	Verdict flag   `json:"verdict"`
}

type questionOutput struct {
	Question     string `json:"question"`
	Noncommittal flag   `json:"noncommittal"`
}

// flag accepts 0/1 as a number, a string or a bool.
type flag int

func (f *flag) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(raw) {
	case "true", "yes":
		*f = 1
		return nil
	case "false", "no", "":
		*f = 0
		return nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %q", raw)
	}
	if n != 0 {
		*f = 1
	} else {
		*f = 0
	}
	return nil
}

// EvaluationService scores single-turn samples. Every call builds its own
// judge model through the factory.
type EvaluationService struct {
	newLLM   ModelFactory
	embedder embeddings.Embedder
	cfg      *config.EvaluationConfig
	logger   *zap.Logger

	precisionPrompt prompts.PromptTemplate
	relevancyPrompt prompts.PromptTemplate
}

func NewEvaluationService(newLLM ModelFactory, embedder embeddings.Embedder, cfg *config.EvaluationConfig, logger *zap.Logger) *EvaluationService {
	return &EvaluationService{
		newLLM:          newLLM,
		embedder:        embedder,
		cfg:             cfg,
		logger:          logger,
		precisionPrompt: prompts.NewPromptTemplate(contextPrecisionTemplate, []string{"question", "answer", "context"}),
		relevancyPrompt: prompts.NewPromptTemplate(responseRelevancyTemplate, []string{"response"}),
	}
}

// ContextPrecision judges each retrieved context for usefulness and returns
// the average precision of the verdicts in retrieval order.
func (s *EvaluationService) ContextPrecision(ctx context.Context, query, response string, contexts []string) (res EvaluationResult) {
	res.Metric = MetricContextPrecision
	defer s.recoverInto(&res)

	if len(contexts) == 0 {
		return s.fail(res, ErrNoContexts)
	}

	llm, err := s.newLLM(ctx)
	if err != nil {
		return s.fail(res, fmt.Errorf("failed to create evaluator llm: %w", err))
	}

	verdicts := make([]int, len(contexts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Concurrency, 1))

	for i, c := range contexts {
		g.Go(func() error {
			prompt, err := s.precisionPrompt.Format(map[string]any{
				"question": query,
				"answer":   response,
				"context":  c,
			})
			if err != nil {
				return fmt.Errorf("failed to format prompt: %w", err)
			}

			var out verdictOutput
			if err := s.judge(gctx, llm, prompt, &out); err != nil {
				return err
			}
			verdicts[i] = int(out.Verdict)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return s.fail(res, err)
	}

	res.Score = AveragePrecision(verdicts)
	s.logger.Info("Context precision evaluated",
		zap.Float64("score", res.Score),
		zap.Ints("verdicts", verdicts),
	)
	return res
}

// ResponseRelevancy generates questions from the response and measures how
// close they are to the original query. Noncommittal responses score 0.
func (s *EvaluationService) ResponseRelevancy(ctx context.Context, query, response string, _ []string) (res EvaluationResult) {
	res.Metric = MetricResponseRelevancy
	defer s.recoverInto(&res)

	llm, err := s.newLLM(ctx)
	if err != nil {
		return s.fail(res, fmt.Errorf("failed to create evaluator llm: %w", err))
	}

	prompt, err := s.relevancyPrompt.Format(map[string]any{"response": response})
	if err != nil {
		return s.fail(res, fmt.Errorf("failed to format prompt: %w", err))
	}

	n := max(s.cfg.Strictness, 1)
	outputs := make([]questionOutput, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Concurrency, 1))

	for i := range n {
		g.Go(func() error {
			return s.judge(gctx, llm, prompt, &outputs[i])
		})
	}

	if err := g.Wait(); err != nil {
		return s.fail(res, err)
	}

	questions := make([]string, n)
	allNoncommittal := true
	for i, o := range outputs {
		questions[i] = o.Question
		if o.Noncommittal == 0 {
			allNoncommittal = false
		}
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return s.fail(res, fmt.Errorf("failed to embed query: %w", err))
	}

	questionVectors, err := s.embedder.EmbedDocuments(ctx, questions)
	if err != nil {
		return s.fail(res, fmt.Errorf("failed to embed generated questions: %w", err))
	}
	if len(questionVectors) != n {
		return s.fail(res, fmt.Errorf("expected %d question embeddings, got %d", n, len(questionVectors)))
	}

	var total float64
	for _, v := range questionVectors {
		total += CosineSimilarity(queryVector, v)
	}

	if !allNoncommittal {
		res.Score = total / float64(n)
	}

	s.logger.Info("Response relevancy evaluated",
		zap.Float64("score", res.Score),
		zap.Strings("questions", questions),
		zap.Bool("noncommittal", allNoncommittal),
	)
	return res
}

// AveragePrecision weighs each useful verdict by the precision at its rank.
func AveragePrecision(verdicts []int) float64 {
	var useful, numerator float64
	for i, v := range verdicts {
		if v == 0 {
			continue
		}
		useful++
		numerator += useful / float64(i+1)
	}
	if useful == 0 {
		return 0
	}
	return numerator / useful
}

// judge asks the model and decodes the JSON object in its answer into out.
// It runs on errgroup goroutines, so panics are turned into errors here.
func (s *EvaluationService) judge(ctx context.Context, llm llms.Model, prompt string, out any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in evaluator llm: %v", r)
		}
	}()

	content, err := generate(ctx, llm, prompt, llms.WithJSONMode())
	if err != nil {
		return err
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return fmt.Errorf("invalid response format: %s", content)
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w, content: %s", err, content)
	}
	return nil
}

func (s *EvaluationService) fail(res EvaluationResult, err error) EvaluationResult {
	s.logger.Error("Evaluation failed", zap.String("metric", res.Metric), zap.Error(err))
	res.Score = 0
	res.Err = err
	return res
}

func (s *EvaluationService) recoverInto(res *EvaluationResult) {
	if r := recover(); r != nil {
		*res = s.fail(*res, fmt.Errorf("panic during %s evaluation: %v", res.Metric, r))
	}
}
