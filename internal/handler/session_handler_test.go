package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/session"
	ws "github.com/stemsi/lms-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionLearnerID = 7

type countingKeys struct {
	calls atomic.Int32
	key   map[string]string
}

func (k *countingKeys) AnswerKey(context.Context, uuid.UUID) (map[string]string, error) {
	k.calls.Add(1)
	return k.key, nil
}

type sessionServer struct {
	url          string
	rdb          *redis.Client
	grading      *service.GradingService
	keys         *countingKeys
	assessmentID uuid.UUID
	questionID   uuid.UUID
}

// startSessionServer serves the session endpoint over a real listener with the payload
// already cached, so no database is involved.
func startSessionServer(t *testing.T, timeLimit *int, tick time.Duration) *sessionServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := &sessionServer{
		rdb:          rdb,
		assessmentID: uuid.New(),
		questionID:   uuid.New(),
	}
	payload := model.AssessmentPayload{
		AssessmentID:     s.assessmentID,
		Title:            "Planets",
		Type:             model.AssessmentTypePractice,
		TimeLimitMinutes: timeLimit,
		Questions: []model.PublicQuestion{
			{ID: s.questionID, Text: "Pluto is a planet.", Kind: model.QuestionKindTrueFalse},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), config.CacheKey.AssessmentPayloadKey(s.assessmentID.String()), raw, 0).Err())

	log := zerolog.Nop()
	s.keys = &countingKeys{key: map[string]string{s.questionID.String(): "false"}}
	monitor := service.NewMonitorService(rdb, nil, log)
	s.grading = service.NewGradingService(rdb, s.keys, monitor, time.Hour, log)
	h := NewSessionHandler(service.NewAssessmentService(nil, nil, rdb, log), s.grading, monitor, tick, time.Hour, log, nil)

	r := gin.New()
	r.GET("/ws/:id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{Role: model.RoleLearner, UserID: sessionLearnerID, Name: "Ada"})
		c.Next()
	}, h.AssessmentSession)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + s.assessmentID.String()
	return s
}

func (s *sessionServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent returns the next frame of the wanted type, skipping ticks and state pushes.
func readEvent(t *testing.T, conn *websocket.Conn, want ws.Event) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "connection ended before a %s event", want)
		var head struct {
			Event ws.Event `json:"event"`
		}
		require.NoError(t, json.Unmarshal(raw, &head))
		if head.Event == want {
			return raw
		}
		if head.Event == ws.EventError {
			t.Fatalf("unexpected error event: %s", raw)
		}
	}
}

func TestAssessmentSessionAbandonedSocketReleasesReservation(t *testing.T) {
	s := startSessionServer(t, nil, 10*time.Millisecond)
	conn := s.dial(t)

	answer := model.BoolAnswer(false)
	readEvent(t, conn, ws.EventState)
	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: ws.ActionAnswer, QID: s.questionID.String(), Answer: &answer}))
	readEvent(t, conn, ws.EventState)

	// Drop the TCP connection without a close frame.
	require.NoError(t, conn.UnderlyingConn().Close())

	ctx := context.Background()
	var attemptID uuid.UUID
	require.Eventually(t, func() bool {
		id, err := s.grading.BeginAttempt(ctx, sessionLearnerID, s.assessmentID, time.Minute)
		if err != nil {
			return false
		}
		attemptID = id
		return true
	}, 3*time.Second, 20*time.Millisecond)
	assert.NotEqual(t, uuid.Nil, attemptID)

	assert.Zero(t, s.keys.calls.Load())
	queued, err := s.rdb.LLen(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, queued)
	live, err := s.rdb.HLen(ctx, config.CacheKey.AssessmentLiveKey(s.assessmentID.String())).Result()
	require.NoError(t, err)
	assert.Zero(t, live)
}

func TestAssessmentSessionSecondConnectionRejected(t *testing.T) {
	s := startSessionServer(t, nil, 10*time.Millisecond)
	conn := s.dial(t)
	readEvent(t, conn, ws.EventState)

	_, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAssessmentSessionCopySignalWarnsAndBlocks(t *testing.T) {
	minutes := 10
	s := startSessionServer(t, &minutes, 10*time.Millisecond)
	conn := s.dial(t)
	readEvent(t, conn, ws.EventState)

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{
		Action: ws.ActionSignal,
		Signal: &session.Signal{Type: session.SignalCopy},
	}))

	var warning ws.WarningResponse
	require.NoError(t, json.Unmarshal(readEvent(t, conn, ws.EventWarning), &warning))
	assert.Equal(t, model.IntegrityCopyAttempt, warning.Kind)
	assert.NotEmpty(t, warning.Description)

	var blocked ws.BlockedResponse
	require.NoError(t, json.Unmarshal(readEvent(t, conn, ws.EventBlocked), &blocked))
	assert.Equal(t, session.SignalCopy, blocked.Signal)

	assert.Zero(t, s.keys.calls.Load())
}

func TestAssessmentSessionExpiryAutoSubmits(t *testing.T) {
	minutes := 1
	s := startSessionServer(t, &minutes, time.Millisecond)
	conn := s.dial(t)
	readEvent(t, conn, ws.EventState)

	var graded ws.GradedResponse
	require.NoError(t, json.Unmarshal(readEvent(t, conn, ws.EventGraded), &graded))
	assert.True(t, graded.AutoSubmitted)
	assert.Equal(t, "completed", graded.Status)
	assert.Zero(t, graded.Score)
	assert.False(t, graded.Completed)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.EqualValues(t, 1, s.keys.calls.Load())
	queued, err := s.rdb.LLen(context.Background(), config.WorkerKey.PersistAttemptsQueue).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, queued)
}
