package websocket

import (
	"time"

	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionSubmit Action = "submit"
	ActionSignal Action = "signal"
	ActionPing   Action = "ping"
)

// RequestPayload carries every client action. Fields not used by an action are ignored.
type RequestPayload struct {
	Action Action             `json:"action"`
	QID    string             `json:"q_id,omitempty"`
	Answer *model.AnswerValue `json:"ans,omitempty"`
	Signal *session.Signal    `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventTick    Event = "tick"
	EventWarning Event = "warning"
	EventBlocked Event = "blocked"
	EventGraded  Event = "graded"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

type StateResponse struct {
	Event Event        `json:"event"`
	Data  session.View `json:"data"`
}

type TickResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int    `json:"remaining_seconds"`
	RemainingLabel   string `json:"remaining_label"`
	LowTime          bool   `json:"low_time"`
}

type WarningResponse struct {
	Event       Event               `json:"event"`
	Kind        model.IntegrityKind `json:"kind"`
	Description string              `json:"description"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// BlockedResponse tells the client to cancel the default clipboard action.
type BlockedResponse struct {
	Event  Event              `json:"event"`
	Signal session.SignalType `json:"signal"`
}

type GradedResponse struct {
	Event         Event  `json:"event"`
	Status        string `json:"status"`
	Score         int    `json:"score"`
	Completed     bool   `json:"completed"`
	Feedback      string `json:"feedback,omitempty"`
	AutoSubmitted bool   `json:"auto_submitted"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewTickResponse renders a countdown step.
func NewTickResponse(remaining int) TickResponse {
	return TickResponse{
		Event:            EventTick,
		RemainingSeconds: remaining,
		RemainingLabel:   session.FormatRemaining(remaining),
		LowTime:          remaining < session.LowTimeThreshold,
	}
}

// NewWarningResponse renders a recorded integrity event.
func NewWarningResponse(ev model.IntegrityEvent) WarningResponse {
	return WarningResponse{
		Event:       EventWarning,
		Kind:        ev.Kind,
		Description: ev.Description,
		OccurredAt:  ev.OccurredAt,
	}
}

// NewGradedResponse renders a grading acknowledgment.
func NewGradedResponse(res *model.AttemptResult, auto bool) GradedResponse {
	return GradedResponse{
		Event:         EventGraded,
		Status:        "completed",
		Score:         res.Score,
		Completed:     res.Completed,
		Feedback:      res.Feedback,
		AutoSubmitted: auto,
	}
}
