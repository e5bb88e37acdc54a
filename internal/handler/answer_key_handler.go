package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/service"
	"github.com/bhasha-ai/grader-api/internal/utils"
)

// AnswerKeyHandler wires answer-key HTTP routes.
type AnswerKeyHandler struct {
	service service.AnswerKeyService
	logger  zerolog.Logger
}

// NewAnswerKeyHandler constructs the handler.
func NewAnswerKeyHandler(service service.AnswerKeyService, logger zerolog.Logger) *AnswerKeyHandler {
	return &AnswerKeyHandler{
		service: service,
		logger:  logger.With().Str("component", "answer_key_handler").Logger(),
	}
}

// Register attaches answer-key endpoints to the router group.
func (h *AnswerKeyHandler) Register(router fiber.Router) {
	router.Post("/:paperID", h.upsert)
	router.Get("/:paperID", h.get)
}

func (h *AnswerKeyHandler) upsert(c *fiber.Ctx) error {
	var payload dto.AnswerKeyUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	key, err := h.service.Upsert(c.Context(), c.Params("paperID"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "answer key installed", key)
}

func (h *AnswerKeyHandler) get(c *fiber.Ctx) error {
	key, err := h.service.Get(c.Context(), c.Params("paperID"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer key retrieved", key)
}

func (h *AnswerKeyHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAnswerKeyNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "answer key not found")
	case errors.Is(err, service.ErrDuplicateQuestion):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
