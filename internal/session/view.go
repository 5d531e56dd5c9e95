package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/lms-backend/internal/model"
)

// LowTimeThreshold is the remaining time, in seconds, below which the countdown is flagged.
const LowTimeThreshold = 60

// View is the render snapshot pushed to the learner after every state change.
type View struct {
	AttemptID           uuid.UUID            `json:"attempt_id"`
	AssessmentID        uuid.UUID            `json:"assessment_id"`
	Title               string               `json:"title"`
	Phase               Phase                `json:"phase"`
	CurrentIndex        int                  `json:"current_index"`
	QuestionCount       int                  `json:"question_count"`
	Question            model.PublicQuestion `json:"question"`
	SelectedAnswer      *model.AnswerValue   `json:"selected_answer"`
	IsLastQuestion      bool                 `json:"is_last_question"`
	CanGoNext           bool                 `json:"can_go_next"`
	CanGoPrev           bool                 `json:"can_go_prev"`
	CanSubmit           bool                 `json:"can_submit"`
	AnsweredCount       int                  `json:"answered_count"`
	ProgressPercent     int                  `json:"progress_percent"`
	RemainingSeconds    *int                 `json:"remaining_seconds,omitempty"`
	RemainingLabel      string               `json:"remaining_label,omitempty"`
	LowTime             bool                 `json:"low_time"`
	IntegrityEventCount int                  `json:"integrity_event_count"`
	Result              *model.AttemptResult `json:"result,omitempty"`
}

// View builds the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.assessment.Questions)
	q := c.assessment.Questions[c.current]
	v := View{
		AttemptID:           c.attemptID,
		AssessmentID:        c.assessment.AssessmentID,
		Title:               c.assessment.Title,
		Phase:               c.phase,
		CurrentIndex:        c.current,
		QuestionCount:       n,
		Question:            q,
		IsLastQuestion:      c.current == n-1,
		AnsweredCount:       len(c.answers),
		ProgressPercent:     (c.current + 1) * 100 / n,
		IntegrityEventCount: len(c.events),
		Result:              c.result,
	}
	if a, ok := c.answers[q.ID.String()]; ok {
		v.SelectedAnswer = &a
	}

	active := !c.closed && c.phase == PhaseInProgress
	v.CanGoPrev = !c.closed && c.current > 0
	v.CanGoNext = active && !v.IsLastQuestion && v.SelectedAnswer != nil
	v.CanSubmit = active && (len(c.answers) > 0 || c.expired)

	if c.timed {
		remaining := c.remaining
		v.RemainingSeconds = &remaining
		v.RemainingLabel = FormatRemaining(remaining)
		v.LowTime = remaining < LowTimeThreshold
	}
	return v
}

// FormatRemaining renders seconds as mm:ss. Minutes are not wrapped at an hour.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
