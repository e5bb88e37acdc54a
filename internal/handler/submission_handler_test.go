package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/grading"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/service"
)

type stubSubmissionService struct {
	accepted dto.SubmissionAcceptedResponse
	report   dto.SubmissionResponse
	err      error
}

func (s stubSubmissionService) Submit(context.Context, dto.SubmissionCreateRequest, *multipart.FileHeader) (dto.SubmissionAcceptedResponse, error) {
	return s.accepted, s.err
}

func (s stubSubmissionService) Get(context.Context, string) (dto.SubmissionResponse, error) {
	return s.report, s.err
}

func (s stubSubmissionService) List(context.Context, dto.SubmissionListFilter) ([]dto.SubmissionSummaryResponse, error) {
	return nil, s.err
}

func (s stubSubmissionService) Cancel(context.Context, string) error {
	return s.err
}

func newSubmissionApp(svc service.SubmissionService) *fiber.App {
	app := fiber.New()
	h := NewSubmissionHandler(svc, grading.NewProgressBroker(), zerolog.Nop())
	h.Register(app.Group("/api/v1/submissions"))
	return app
}

func submitForm(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()

	form := strings.NewReader("question_paper_id=paper-1&source_reference=https%3A%2F%2Fsheets.example.com%2Fscan.png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestSubmitReturnsAccepted(t *testing.T) {
	accepted := dto.SubmissionAcceptedResponse{
		ID:        "abc-123",
		Status:    models.SubmissionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	app := newSubmissionApp(stubSubmissionService{accepted: accepted})

	resp := submitForm(t, app)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnprocessableEntity: service.ErrPaperWithoutKey,
		http.StatusBadRequest:          service.ErrMissingAnswerSheet,
		http.StatusServiceUnavailable:  service.ErrGradingQueueBusy,
	}

	for status, svcErr := range cases {
		app := newSubmissionApp(stubSubmissionService{err: svcErr})
		resp := submitForm(t, app)
		require.Equal(t, status, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	app := newSubmissionApp(stubSubmissionService{err: service.ErrSubmissionNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelFinishedSubmissionConflicts(t *testing.T) {
	app := newSubmissionApp(stubSubmissionService{err: service.ErrSubmissionFinished})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/abc-123/cancel", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}
