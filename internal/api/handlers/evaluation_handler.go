package handlers

import (
	"context"
	"strings"

	"prod-assistant/internal/dto"
	"prod-assistant/internal/service"
	"prod-assistant/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Generator interface {
	Invoke(ctx context.Context, query string, debug bool) ([]string, string, error)
}

type Evaluator interface {
	ContextPrecision(ctx context.Context, query, response string, contexts []string) service.EvaluationResult
	ResponseRelevancy(ctx context.Context, query, response string, contexts []string) service.EvaluationResult
}

type EvaluationHandler struct {
	generator Generator
	evaluator Evaluator
	logger    *zap.Logger
}

func NewEvaluationHandler(generator Generator, evaluator Evaluator, logger *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		generator: generator,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Evaluate godoc
// @Summary Answer a query and score the answer
// @Description Runs the generation workflow and reports context precision and response relevancy
// @Tags evaluation
// @Accept json
// @Produce json
// @Param request body dto.EvaluateRequest true "Query to evaluate"
// @Success 200 {object} dto.EvaluateResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/evaluate [post]
func (h *EvaluationHandler) Evaluate(c *fiber.Ctx) error {
	log := middleware.Logger(c, h.logger)

	var req dto.EvaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Field query is required",
		})
	}

	ctx := c.UserContext()

	contexts, answer, err := h.generator.Invoke(ctx, query, req.Debug)
	if err != nil {
		log.Error("Generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate answer",
		})
	}

	results := []service.EvaluationResult{
		h.evaluator.ContextPrecision(ctx, query, answer, contexts),
		h.evaluator.ResponseRelevancy(ctx, query, answer, contexts),
	}

	return c.JSON(dto.EvaluateResponse{
		Query:    query,
		Answer:   answer,
		Contexts: contexts,
		Scores:   toMetricScores(results),
	})
}

func toMetricScores(results []service.EvaluationResult) []dto.MetricScore {
	scores := make([]dto.MetricScore, 0, len(results))
	for _, r := range results {
		s := dto.MetricScore{Metric: r.Metric}
		if r.OK() {
			score := r.Score
			s.Score = &score
		} else {
			s.Error = r.Err.Error()
		}
		scores = append(scores, s)
	}
	return scores
}
