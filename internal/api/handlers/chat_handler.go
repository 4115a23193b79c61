package handlers

import (
	"context"
	"strings"

	"prod-assistant/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatAgent answers a single chat message.
type ChatAgent interface {
	Init(ctx context.Context) error
	Run(ctx context.Context, message string) (string, error)
}

type ChatHandler struct {
	newAgent func() ChatAgent
	logger   *zap.Logger
}

// NewChatHandler takes a constructor because every request gets its own agent.
func NewChatHandler(newAgent func() ChatAgent, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		newAgent: newAgent,
		logger:   logger,
	}
}

// Chat godoc
// @Summary Ask the product assistant
// @Description Runs a fresh agent for the message and returns its answer as HTML text
// @Tags chat
// @Accept x-www-form-urlencoded
// @Produce html
// @Param msg formData string true "User message"
// @Success 200 {string} string "Answer"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /get [post]
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	log := middleware.Logger(c, h.logger)

	msg := c.FormValue("msg")
	if strings.TrimSpace(msg) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Field msg is required",
		})
	}

	ctx := c.UserContext()
	agent := h.newAgent()

	if err := agent.Init(ctx); err != nil {
		log.Error("Agent initialization failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Assistant is unavailable",
		})
	}

	answer, err := agent.Run(ctx, msg)
	if err != nil {
		log.Error("Agent run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer the message",
		})
	}

	log.Info("Agent response", zap.Int("length", len(answer)))

	c.Type("html", "utf-8")
	return c.SendString(answer)
}
