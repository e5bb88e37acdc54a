package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/grading"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/service"
	"github.com/bhasha-ai/grader-api/internal/utils"
)

// SubmissionHandler wires submission endpoints including the progress
// websocket upgrade.
type SubmissionHandler struct {
	service service.SubmissionService
	broker  *grading.ProgressBroker
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, broker *grading.ProgressBroker, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		broker:  broker,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.submit)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/cancel", h.cancel)
}

// RegisterProgress attaches the live progress websocket under the given group.
func (h *SubmissionHandler) RegisterProgress(router fiber.Router) {
	router.Use("/submissions/:id", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/submissions/:id", websocket.New(h.streamProgress))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	payload := dto.SubmissionCreateRequest{
		QuestionPaperID: c.FormValue("question_paper_id"),
		SourceReference: c.FormValue("source_reference"),
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	accepted, err := h.service.Submit(c.Context(), payload, file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendAccepted(c, "submission queued for grading", accepted)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter := dto.SubmissionListFilter{}
	if paperID := c.Query("question_paper_id"); paperID != "" {
		filter.QuestionPaperID = &paperID
	}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}

	submissions, err := h.service.List(c.Context(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) cancel(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.Context(), c.Params("id")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "cancellation requested", fiber.Map{"id": c.Params("id")})
}

// streamProgress replays the current submission state and then forwards live
// transitions until the submission is terminal or the client disconnects.
func (h *SubmissionHandler) streamProgress(conn *websocket.Conn) {
	defer conn.Close()

	id := conn.Params("id")
	submission, err := h.service.Get(context.Background(), id)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "submission not found"))
		return
	}

	events, cancel := h.broker.Subscribe(id)
	defer cancel()

	snapshot := grading.ProgressEvent{
		SubmissionID: id,
		Status:       submission.Status,
		Reason:       submission.FailureReason,
		At:           time.Now().UTC(),
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if isTerminalStatus(submission.Status) {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if isTerminalStatus(event.Status) {
				return
			}
		}
	}
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrPaperWithoutKey):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "question paper has no answer key")
	case errors.Is(err, service.ErrMissingAnswerSheet):
		return utils.SendError(c, fiber.StatusBadRequest, "an answer sheet file or source reference must be provided")
	case errors.Is(err, service.ErrSubmissionFinished):
		return utils.SendError(c, fiber.StatusConflict, "submission already reached a terminal state")
	case errors.Is(err, service.ErrGradingQueueBusy):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grading queue is busy, try again later")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func isTerminalStatus(status string) bool {
	return status == models.SubmissionStatusCompleted || status == models.SubmissionStatusFailed
}
