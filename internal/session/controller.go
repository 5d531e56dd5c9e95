// Package session drives one timed assessment attempt: question navigation, the
// countdown with auto-submit, the integrity log, and the exactly-once finalize call.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/model"
)

// Phase is the submission state of a session.
type Phase int

const (
	// PhaseInProgress accepts answers, navigation and integrity events.
	PhaseInProgress Phase = iota
	// PhaseSubmitting holds while the finalize call is in flight. Further submits are dropped.
	PhaseSubmitting
	// PhaseSubmitted is terminal.
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseSubmitting:
		return "SUBMITTING"
	case PhaseSubmitted:
		return "SUBMITTED"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Command errors.
var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrNotInProgress     = errors.New("session is not in progress")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidAnswer     = errors.New("invalid answer value")
	ErrUnanswered        = errors.New("current question is not answered")
	ErrLastQuestion      = errors.New("already at the last question")
	ErrFirstQuestion     = errors.New("already at the first question")
	ErrNothingAnswered   = errors.New("at least one question must be answered before submitting")
	ErrTimeExpired       = errors.New("time limit reached")
	ErrNoGradingResponse = errors.New("grading returned no result")
)

// Finalizer is the grading collaborator receiving the finalize call.
type Finalizer interface {
	SubmitAttempt(ctx context.Context, sub model.AttemptSubmission) (*model.AttemptResult, error)
}

// Hooks are invoked outside the controller lock.
type Hooks struct {
	// OnTick receives the remaining seconds after every countdown step.
	OnTick func(remaining int)
	// OnWarning receives every recorded integrity event.
	OnWarning func(ev model.IntegrityEvent)
	// OnAutoSubmit receives the outcome of the expiry-triggered submit.
	OnAutoSubmit func(res *model.AttemptResult, err error)
}

// Config wires a controller to its collaborators.
type Config struct {
	AttemptID    uuid.UUID
	LearnerID    int
	Finalizer    Finalizer
	Signals      SignalSource
	NewTicker    TickerFunc
	TickInterval time.Duration
	Now          func() time.Time
	Log          zerolog.Logger
	Hooks        Hooks
}

// Controller owns the SessionState of one attempt. All methods are safe for concurrent use;
// the timer goroutine, the signal source and the transport reader all call into it.
type Controller struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	finalizer Finalizer
	signals   SignalSource
	hooks     Hooks
	now       func() time.Time
	log       zerolog.Logger

	assessment model.AssessmentPayload
	positions  map[string]int
	attemptID  uuid.UUID
	learnerID  int
	startedAt  time.Time

	current     int
	answers     map[string]model.AnswerValue
	timed       bool
	remaining   int
	expired     bool
	events      []model.IntegrityEvent
	lastEventAt time.Time
	phase       Phase
	closed      bool
	result      *model.AttemptResult

	newTicker    TickerFunc
	tickInterval time.Duration
	ticker       Ticker
	stopTicks    chan struct{}
	pausedAt     time.Time
	signalsOnce  sync.Once
}

// Start validates the assessment and begins a session. The countdown starts only when the
// assessment has a time limit. The returned controller must be closed by the caller.
func Start(ctx context.Context, assessment model.AssessmentPayload, cfg Config) (*Controller, error) {
	if err := assessment.Validate(); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if cfg.Finalizer == nil {
		return nil, errors.New("start session: finalizer is required")
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AttemptID == uuid.Nil {
		cfg.AttemptID = uuid.New()
	}

	questions := make([]model.PublicQuestion, len(assessment.Questions))
	copy(questions, assessment.Questions)
	assessment.Questions = questions

	positions := make(map[string]int, len(questions))
	for i, q := range questions {
		positions[q.ID.String()] = i
	}

	c := &Controller{
		finalizer:  cfg.Finalizer,
		signals:    cfg.Signals,
		hooks:      cfg.Hooks,
		now:        cfg.Now,
		assessment: assessment,
		positions:  positions,
		attemptID:  cfg.AttemptID,
		learnerID:  cfg.LearnerID,
		startedAt:  cfg.Now().UTC(),
		answers:    make(map[string]model.AnswerValue),
		phase:      PhaseInProgress,

		newTicker:    cfg.NewTicker,
		tickInterval: cfg.TickInterval,
	}
	c.log = cfg.Log.With().
		Str("attempt_id", c.attemptID.String()).
		Str("assessment_id", assessment.AssessmentID.String()).
		Int("learner_id", cfg.LearnerID).
		Logger()
	c.ctx, c.cancel = context.WithCancel(ctx)

	if tl := assessment.TimeLimitMinutes; tl != nil {
		c.timed = true
		c.remaining = *tl * 60
	}

	if c.signals != nil {
		if err := c.signals.Subscribe(c.handleSignal); err != nil {
			c.cancel()
			return nil, fmt.Errorf("subscribe integrity signals: %w", err)
		}
	}

	c.mu.Lock()
	c.startTimerLocked()
	c.mu.Unlock()

	c.log.Info().
		Int("questions", len(questions)).
		Int("remaining_seconds", c.remaining).
		Msg("Session started")
	return c, nil
}

func (c *Controller) runTimer(ticks <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			// A tick buffered before Stop must not count after a restart.
			select {
			case <-stop:
				return
			default:
			}
			if c.OnTimerTick() == 0 {
				return
			}
		}
	}
}

// SelectAnswer upserts the answer for questionID. Once the countdown has reached zero it
// fails with ErrTimeExpired; the attempt can then only be submitted.
func (c *Controller) SelectAnswer(questionID string, value model.AnswerValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.commandableLocked(); err != nil {
		return err
	}
	if c.expired {
		return ErrTimeExpired
	}
	pos, ok := c.positions[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	q := &c.assessment.Questions[pos]
	if err := q.Accepts(value); err != nil {
		c.log.Warn().
			Err(err).
			Str("question_id", questionID).
			Str("value", value.String()).
			Msg("Rejected answer value")
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	c.answers[questionID] = value
	return nil
}

// GoNext advances to the next question. The current question must be answered.
func (c *Controller) GoNext() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.commandableLocked(); err != nil {
		return err
	}
	if c.current >= len(c.assessment.Questions)-1 {
		return ErrLastQuestion
	}
	if _, ok := c.answers[c.assessment.Questions[c.current].ID.String()]; !ok {
		return ErrUnanswered
	}
	c.current++
	return nil
}

// GoPrev moves back one question regardless of answer state.
func (c *Controller) GoPrev() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	if c.current == 0 {
		return ErrFirstQuestion
	}
	c.current--
	return nil
}

// Submit finalizes the attempt. Calls made while a submit is in flight or after the attempt
// was submitted return (nil, nil). The countdown is paused while the finalize call is in
// flight. A failed finalize puts the session back in progress with answers and integrity log
// intact and charges the paused time to the countdown; if that exhausts it, the attempt is
// auto-submitted.
func (c *Controller) Submit(ctx context.Context) (*model.AttemptResult, error) {
	return c.submit(ctx, false)
}

func (c *Controller) submit(ctx context.Context, auto bool) (*model.AttemptResult, error) {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return nil, nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	// Once time is up the attempt may be finalized with nothing answered.
	if !auto && !c.expired && len(c.answers) == 0 {
		c.mu.Unlock()
		return nil, ErrNothingAnswered
	}
	c.phase = PhaseSubmitting
	c.stopTimerLocked()
	c.pausedAt = c.now()
	sub := c.submissionLocked(auto)
	c.mu.Unlock()

	res, err := c.finalizer.SubmitAttempt(ctx, sub)
	if err == nil && res == nil {
		err = ErrNoGradingResponse
	}

	c.mu.Lock()
	if err != nil {
		c.phase = PhaseInProgress
		expiredNow := c.resumeLocked()
		c.mu.Unlock()
		c.log.Warn().Err(err).Bool("auto", auto).Msg("Finalize failed, session back in progress")
		if expiredNow {
			if c.hooks.OnTick != nil {
				c.hooks.OnTick(0)
			}
			go c.autoSubmit()
		}
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	c.phase = PhaseSubmitted
	c.result = res
	c.mu.Unlock()

	c.release()
	c.log.Info().
		Bool("auto", auto).
		Int("answered", len(sub.Answers)).
		Int("integrity_events", len(sub.IntegrityEvents)).
		Int("score", res.Score).
		Msg("Attempt submitted")
	return res, nil
}

func (c *Controller) submissionLocked(auto bool) model.AttemptSubmission {
	answers := make(map[string]model.AnswerValue, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}
	events := make([]model.IntegrityEvent, len(c.events))
	copy(events, c.events)

	return model.AttemptSubmission{
		AttemptID:       c.attemptID,
		AssessmentID:    c.assessment.AssessmentID,
		LearnerID:       c.learnerID,
		Answers:         answers,
		IntegrityEvents: events,
		AutoSubmitted:   auto,
		StartedAt:       c.startedAt,
		SubmittedAt:     c.now().UTC(),
	}
}

// OnTimerTick advances the countdown by one step and returns the remaining seconds.
// Ticks outside PhaseInProgress are ignored. Reaching zero triggers the auto-submit on the
// calling goroutine.
func (c *Controller) OnTimerTick() int {
	c.mu.Lock()
	if c.closed || !c.timed || c.remaining == 0 || c.phase != PhaseInProgress {
		remaining := c.remaining
		c.mu.Unlock()
		return remaining
	}
	c.remaining--
	remaining := c.remaining
	if remaining == 0 {
		c.expired = true
		c.stopTimerLocked()
	}
	c.mu.Unlock()

	if c.hooks.OnTick != nil {
		c.hooks.OnTick(remaining)
	}
	if remaining == 0 {
		c.autoSubmit()
	}
	return remaining
}

func (c *Controller) autoSubmit() {
	c.log.Info().Msg("Time limit reached, auto-submitting")
	res, err := c.submit(c.ctx, true)
	if c.hooks.OnAutoSubmit != nil {
		c.hooks.OnAutoSubmit(res, err)
	}
}

// resumeLocked charges the time spent in a failed finalize call to the countdown and
// restarts the ticker. It reports whether the countdown ran out while paused.
func (c *Controller) resumeLocked() bool {
	if !c.timed || c.closed || c.remaining == 0 {
		return false
	}
	if elapsed := int(c.now().Sub(c.pausedAt) / c.tickInterval); elapsed > 0 {
		c.remaining = max(c.remaining-elapsed, 0)
	}
	if c.remaining == 0 {
		c.expired = true
		return true
	}
	c.startTimerLocked()
	return false
}

// RecordIntegrityEvent appends an event while the session is in progress. It reports
// whether the event was recorded.
func (c *Controller) RecordIntegrityEvent(kind model.IntegrityKind) (model.IntegrityEvent, bool) {
	if !kind.Valid() {
		c.log.Warn().Str("kind", string(kind)).Msg("Ignoring unknown integrity event kind")
		return model.IntegrityEvent{}, false
	}

	c.mu.Lock()
	if c.closed || c.phase != PhaseInProgress {
		c.mu.Unlock()
		return model.IntegrityEvent{}, false
	}
	at := c.now().UTC()
	if !at.After(c.lastEventAt) {
		at = c.lastEventAt.Add(time.Nanosecond)
	}
	c.lastEventAt = at
	ev := model.NewIntegrityEvent(kind, at)
	c.events = append(c.events, ev)
	c.mu.Unlock()

	c.log.Debug().Str("kind", string(kind)).Msg("Integrity event recorded")
	if c.hooks.OnWarning != nil {
		c.hooks.OnWarning(ev)
	}
	return ev, true
}

func (c *Controller) handleSignal(sig Signal) bool {
	switch sig.Type {
	case SignalVisibility:
		if sig.Hidden {
			c.RecordIntegrityEvent(model.IntegrityVisibilityLoss)
		}
		return false
	case SignalCopy:
		_, recorded := c.RecordIntegrityEvent(model.IntegrityCopyAttempt)
		return recorded
	case SignalPaste:
		_, recorded := c.RecordIntegrityEvent(model.IntegrityPasteAttempt)
		return recorded
	case SignalCut:
		_, recorded := c.RecordIntegrityEvent(model.IntegrityCutAttempt)
		return recorded
	default:
		c.log.Warn().Str("signal", string(sig.Type)).Msg("Ignoring unknown signal")
		return false
	}
}

// Close tears the session down: the countdown stops, signals are unsubscribed and an
// in-flight auto-submit is cancelled. An abandoned attempt is not submitted. Close is
// idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	phase := c.phase
	c.mu.Unlock()

	c.release()
	c.cancel()
	if phase != PhaseSubmitted {
		c.log.Info().Str("phase", phase.String()).Msg("Session abandoned")
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
	c.signalsOnce.Do(func() {
		if c.signals != nil {
			c.signals.Unsubscribe()
		}
	})
}

func (c *Controller) startTimerLocked() {
	if !c.timed || c.closed || c.remaining == 0 || c.ticker != nil {
		return
	}
	c.ticker = c.newTicker(c.tickInterval)
	c.stopTicks = make(chan struct{})
	go c.runTimer(c.ticker.C(), c.stopTicks)
}

func (c *Controller) stopTimerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stopTicks)
	c.ticker = nil
	c.stopTicks = nil
}

func (c *Controller) commandableLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	if c.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	return nil
}

// AttemptID identifies this attempt in the finalize call.
func (c *Controller) AttemptID() uuid.UUID { return c.attemptID }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CurrentIndex returns the question pointer.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// IsLastQuestion reports whether the pointer is on the final question.
func (c *Controller) IsLastQuestion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == len(c.assessment.Questions)-1
}

// RemainingSeconds returns the countdown and whether the session is timed.
func (c *Controller) RemainingSeconds() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.timed
}

// Answers returns a copy of the collected answers.
func (c *Controller) Answers() map[string]model.AnswerValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.AnswerValue, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// IntegrityEvents returns a copy of the integrity log.
func (c *Controller) IntegrityEvents() []model.IntegrityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.IntegrityEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Result returns the grading acknowledgment once submitted.
func (c *Controller) Result() *model.AttemptResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
