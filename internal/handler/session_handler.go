package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/session"
	ws "github.com/stemsi/lms-backend/internal/websocket"
)

// reservationGrace keeps a timed attempt reserved a little past its deadline.
const reservationGrace = 5 * time.Minute

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionHandler runs one assessment attempt per WebSocket connection.
type SessionHandler struct {
	assessmentService *service.AssessmentService
	gradingService    *service.GradingService
	monitorService    *service.MonitorService
	tick              time.Duration
	untimedTTL        time.Duration
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	assessmentService *service.AssessmentService,
	gradingService *service.GradingService,
	monitorService *service.MonitorService,
	tick, untimedTTL time.Duration,
	log zerolog.Logger,
	allowedOrigins []string,
) *SessionHandler {
	return &SessionHandler{
		assessmentService: assessmentService,
		gradingService:    gradingService,
		monitorService:    monitorService,
		tick:              tick,
		untimedTTL:        untimedTTL,
		log:               log.With().Str("component", "session_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// AssessmentSession godoc
// WS /ws/v1/learner/assessments/:id/session?token=
// Streams one attempt: answers, navigation, countdown, integrity signals and grading.
func (h *SessionHandler) AssessmentSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	assessmentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	learnerID := claims.UserID

	payload, err := h.assessmentService.GetPayload(ctx, assessmentID)
	if err != nil {
		failWith(c, err)
		return
	}

	attemptID, err := h.gradingService.BeginAttempt(ctx, learnerID, assessmentID, h.reservationTTL(payload))
	if err != nil {
		failWith(c, err)
		return
	}
	defer h.gradingService.EndAttempt(context.WithoutCancel(ctx), learnerID, assessmentID, attemptID)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("learner_id", learnerID).
		Str("assessment_id", assessmentID.String()).
		Str("attempt_id", attemptID.String()).
		Logger()

	bridge := ws.NewSignalBridge()
	ctrl, err := session.Start(ctx, *payload, session.Config{
		AttemptID:    attemptID,
		LearnerID:    learnerID,
		Finalizer:    h.gradingService,
		Signals:      bridge,
		TickInterval: h.tick,
		Log:          wsLog,
		Hooks:        h.hooks(conn, wsLog, assessmentID, learnerID, attemptID),
	})
	if err != nil {
		wsLog.Error().Err(err).Msg("Session start failed")
		_ = conn.WriteErrorCode(string(response.ErrInternal), "session could not be started")
		return
	}

	startedAt := time.Now().UTC()
	if err := h.monitorService.TrackJoin(ctx, assessmentID, service.LiveAttempt{
		AttemptID:   attemptID,
		LearnerID:   learnerID,
		LearnerName: claims.Name,
		StartedAt:   startedAt,
	}); err != nil {
		wsLog.Warn().Err(err).Msg("Failed to register live attempt")
	}
	defer func() {
		ctrl.Close()
		h.monitorService.TrackLeave(context.WithoutCancel(ctx), assessmentID, learnerID, attemptID, ctrl.Phase() == session.PhaseSubmitted)
	}()

	wsLog.Info().Msg("Learner connected")
	_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Data: ctrl.View()})

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.dispatch(ctx, conn, ctrl, bridge, wsLog, &msg); done {
			return
		}
	}
}

// dispatch applies one client action and reports whether the connection should end.
func (h *SessionHandler) dispatch(ctx context.Context, conn *ws.Conn, ctrl *session.Controller, bridge *ws.SignalBridge, wsLog zerolog.Logger, msg *ws.RequestPayload) bool {
	switch msg.Action {
	case ws.ActionAnswer:
		if msg.QID == "" || msg.Answer == nil || msg.Answer.IsZero() {
			_ = conn.WriteErrorCode(string(response.ErrInvalidPayload), "q_id and ans are required")
			return false
		}
		h.reply(conn, ctrl, ctrl.SelectAnswer(msg.QID, *msg.Answer))

	case ws.ActionNext:
		h.reply(conn, ctrl, ctrl.GoNext())

	case ws.ActionPrev:
		h.reply(conn, ctrl, ctrl.GoPrev())

	case ws.ActionSubmit:
		res, err := ctrl.Submit(ctx)
		if err != nil {
			h.reply(conn, ctrl, err)
			return false
		}
		if res == nil {
			// Already submitting or submitted.
			_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Data: ctrl.View()})
			return false
		}
		_ = conn.WriteTyped(ws.NewGradedResponse(res, false))
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Data: ctrl.View()})
		_ = conn.CloseNormal("submitted")
		return true

	case ws.ActionSignal:
		if msg.Signal == nil {
			_ = conn.WriteErrorCode(string(response.ErrInvalidPayload), "signal is required")
			return false
		}
		if bridge.Deliver(*msg.Signal) {
			_ = conn.WriteTyped(ws.BlockedResponse{Event: ws.EventBlocked, Signal: msg.Signal.Type})
		}

	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteErrorCode(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
	return false
}

// reply pushes the new state, or the error when the command was refused.
func (h *SessionHandler) reply(conn *ws.Conn, ctrl *session.Controller, err error) {
	if err != nil {
		_ = conn.WriteErrorCode(string(sessionErrorCode(err)), err.Error())
		return
	}
	_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Data: ctrl.View()})
}

func (h *SessionHandler) hooks(conn *ws.Conn, wsLog zerolog.Logger, assessmentID uuid.UUID, learnerID int, attemptID uuid.UUID) session.Hooks {
	return session.Hooks{
		OnTick: func(remaining int) {
			_ = conn.WriteTyped(ws.NewTickResponse(remaining))
		},
		OnWarning: func(ev model.IntegrityEvent) {
			_ = conn.WriteTyped(ws.NewWarningResponse(ev))
			h.monitorService.TrackWarning(context.Background(), assessmentID, learnerID, attemptID, ev)
		},
		OnAutoSubmit: func(res *model.AttemptResult, err error) {
			if err != nil {
				wsLog.Error().Err(err).Msg("Auto-submit failed")
				_ = conn.WriteErrorCode(string(sessionErrorCode(err)), "time is up but the attempt could not be graded, submit again")
				return
			}
			_ = conn.WriteTyped(ws.NewGradedResponse(res, true))
			_ = conn.CloseNormal("time is up")
		},
	}
}

func (h *SessionHandler) reservationTTL(p *model.AssessmentPayload) time.Duration {
	if p.TimeLimitMinutes == nil {
		return h.untimedTTL
	}
	return time.Duration(*p.TimeLimitMinutes)*time.Minute + reservationGrace
}

var sessionErrorCodes = []struct {
	target error
	code   response.ErrCode
}{
	{session.ErrSessionClosed, response.ErrActionForbidden},
	{session.ErrNotInProgress, response.ErrActionForbidden},
	{session.ErrUnanswered, response.ErrActionForbidden},
	{session.ErrLastQuestion, response.ErrActionForbidden},
	{session.ErrFirstQuestion, response.ErrActionForbidden},
	{session.ErrTimeExpired, response.ErrActionForbidden},
}

// sessionErrorCode maps controller refusals first, then falls back to the HTTP mapping.
func sessionErrorCode(err error) response.ErrCode {
	for _, m := range sessionErrorCodes {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	_, code := classify(err)
	return code
}
