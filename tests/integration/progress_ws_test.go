package integration_test

import (
	"context"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bhasha-ai/grader-api/internal/dto"
	"github.com/bhasha-ai/grader-api/internal/grading"
	"github.com/bhasha-ai/grader-api/internal/handler"
	"github.com/bhasha-ai/grader-api/internal/models"
)

type inFlightSubmissionService struct {
	submissionID string
}

func (s inFlightSubmissionService) Submit(context.Context, dto.SubmissionCreateRequest, *multipart.FileHeader) (dto.SubmissionAcceptedResponse, error) {
	return dto.SubmissionAcceptedResponse{}, nil
}

func (s inFlightSubmissionService) Get(context.Context, string) (dto.SubmissionResponse, error) {
	return dto.SubmissionResponse{
		ID:     s.submissionID,
		Status: models.SubmissionStatusScoring,
	}, nil
}

func (s inFlightSubmissionService) List(context.Context, dto.SubmissionListFilter) ([]dto.SubmissionSummaryResponse, error) {
	return nil, nil
}

func (s inFlightSubmissionService) Cancel(context.Context, string) error {
	return nil
}

func TestProgressWebsocketStreamsTransitions(t *testing.T) {
	submissionID := "11f1cc0e-5760-4f9e-bd83-2b13a4f2a6f7"

	broker := grading.NewProgressBroker()
	submissionHandler := handler.NewSubmissionHandler(inFlightSubmissionService{submissionID: submissionID}, broker, zerolog.Nop())

	app := fiber.New()
	submissionHandler.RegisterProgress(app.Group("/ws"))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/submissions/" + submissionID
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snapshot grading.ProgressEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, submissionID, snapshot.SubmissionID)
	require.Equal(t, models.SubmissionStatusScoring, snapshot.Status)

	broker.Publish(grading.ProgressEvent{
		SubmissionID: submissionID,
		Status:       models.SubmissionStatusAggregating,
		At:           time.Now().UTC(),
	})
	broker.Publish(grading.ProgressEvent{
		SubmissionID: submissionID,
		Status:       models.SubmissionStatusCompleted,
		At:           time.Now().UTC(),
	})

	var next grading.ProgressEvent
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, models.SubmissionStatusAggregating, next.Status)

	var final grading.ProgressEvent
	require.NoError(t, conn.ReadJSON(&final))
	require.Equal(t, models.SubmissionStatusCompleted, final.Status)

	// The stream closes once the submission is terminal.
	require.Error(t, conn.ReadJSON(&grading.ProgressEvent{}))
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
