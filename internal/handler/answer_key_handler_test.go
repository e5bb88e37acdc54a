package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/service"
)

type stubAnswerKeyService struct {
	upserted dto.AnswerKeyResponse
	err      error
}

func (s stubAnswerKeyService) Upsert(context.Context, string, dto.AnswerKeyUpsertRequest) (dto.AnswerKeyResponse, error) {
	if s.err != nil {
		return dto.AnswerKeyResponse{}, s.err
	}
	return s.upserted, nil
}

func (s stubAnswerKeyService) Get(context.Context, string) (dto.AnswerKeyResponse, error) {
	if s.err != nil {
		return dto.AnswerKeyResponse{}, s.err
	}
	return s.upserted, nil
}

func newAnswerKeyApp(svc service.AnswerKeyService) *fiber.App {
	app := fiber.New()
	h := NewAnswerKeyHandler(svc, zerolog.Nop())
	h.Register(app.Group("/api/v1/answer-keys"))
	return app
}

func TestAnswerKeyUpsertReturnsCreated(t *testing.T) {
	response := dto.AnswerKeyResponse{ID: 1, QuestionPaperID: "paper-1", Version: 1, TotalMarks: 3}
	app := newAnswerKeyApp(stubAnswerKeyService{upserted: response})

	payload := dto.AnswerKeyUpsertRequest{
		Entries: []dto.AnswerKeyEntryRequest{
			{QuestionNumber: 1, ExpectedAnswer: "Water boils at 100C.", MaxMarks: 3},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer-keys/paper-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, string(raw), `"question_paper_id":"paper-1"`)
}

func TestAnswerKeyUpsertRejectsMalformedBody(t *testing.T) {
	app := newAnswerKeyApp(stubAnswerKeyService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer-keys/paper-1", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnswerKeyUpsertRejectsDuplicateQuestion(t *testing.T) {
	app := newAnswerKeyApp(stubAnswerKeyService{err: fmt.Errorf("question 1: %w", service.ErrDuplicateQuestion)})

	payload := dto.AnswerKeyUpsertRequest{
		Entries: []dto.AnswerKeyEntryRequest{
			{QuestionNumber: 1, ExpectedAnswer: "Water boils at 100C.", MaxMarks: 3},
			{QuestionNumber: 1, ExpectedAnswer: "Water freezes at 0C.", MaxMarks: 2},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer-keys/paper-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "duplicate question numbers are a validation error, not a server fault")
}

func TestAnswerKeyGetMissingReturnsNotFound(t *testing.T) {
	app := newAnswerKeyApp(stubAnswerKeyService{err: service.ErrAnswerKeyNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/answer-keys/paper-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
