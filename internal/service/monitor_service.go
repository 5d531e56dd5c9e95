package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
)

// MonitorEventType labels messages on the proctor channel.
type MonitorEventType string

const (
	MonitorJoined    MonitorEventType = "joined"
	MonitorLeft      MonitorEventType = "left"
	MonitorWarning   MonitorEventType = "warning"
	MonitorSubmitted MonitorEventType = "submitted"
)

// MonitorEvent is one message relayed to the admin live monitor.
type MonitorEvent struct {
	Type        MonitorEventType    `json:"type"`
	LearnerID   int                 `json:"learner_id"`
	LearnerName string              `json:"learner_name,omitempty"`
	AttemptID   uuid.UUID           `json:"attempt_id"`
	Kind        model.IntegrityKind `json:"kind,omitempty"`
	Description string              `json:"description,omitempty"`
	Score       *int                `json:"score,omitempty"`
	Completed   *bool               `json:"completed,omitempty"`
	At          time.Time           `json:"at"`
}

// LiveAttempt is an attempt currently open on a session socket.
type LiveAttempt struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	LearnerID      int       `json:"learner_id"`
	LearnerName    string    `json:"learner_name"`
	StartedAt      time.Time `json:"started_at"`
	IntegrityCount int64     `json:"integrity_count"`
}

// MonitorSnapshot is the initial state sent to an admin attaching to the monitor.
type MonitorSnapshot struct {
	Live               []LiveAttempt          `json:"live"`
	Results            []model.AttemptSummary `json:"results"`
	TotalLive          int                    `json:"total_live"`
	TotalSubmitted     int                    `json:"total_submitted"`
	TotalIntegrity     int64                  `json:"total_integrity"`
	IntegrityByLearner map[int]int64          `json:"integrity_by_learner"`
}

// AttemptLister reads persisted attempts for the monitor snapshot.
type AttemptLister interface {
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.AttemptSummary, error)
	IntegrityCounts(ctx context.Context, assessmentID uuid.UUID) (map[int]int64, error)
}

// MonitorService publishes live proctoring events and builds monitor snapshots.
type MonitorService struct {
	rdb      *redis.Client
	attempts AttemptLister
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, attempts AttemptLister, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev on the assessment's monitor channel. Failures are logged only.
func (s *MonitorService) Publish(ctx context.Context, assessmentID uuid.UUID, ev MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	channel := config.CacheKey.AssessmentMonitorChannel(assessmentID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Monitor publish failed")
	}
}

// TrackJoin registers a live attempt and announces it.
func (s *MonitorService) TrackJoin(ctx context.Context, assessmentID uuid.UUID, live LiveAttempt) error {
	raw, err := json.Marshal(live)
	if err != nil {
		return fmt.Errorf("marshal live attempt: %w", err)
	}
	key := config.CacheKey.AssessmentLiveKey(assessmentID.String())
	if err := s.rdb.HSet(ctx, key, strconv.Itoa(live.LearnerID), raw).Err(); err != nil {
		return fmt.Errorf("track live attempt: %w", err)
	}
	s.Publish(ctx, assessmentID, MonitorEvent{
		Type:        MonitorJoined,
		LearnerID:   live.LearnerID,
		LearnerName: live.LearnerName,
		AttemptID:   live.AttemptID,
		At:          live.StartedAt,
	})
	return nil
}

// TrackWarning bumps the live integrity counter and relays the event.
func (s *MonitorService) TrackWarning(ctx context.Context, assessmentID uuid.UUID, learnerID int, attemptID uuid.UUID, ev model.IntegrityEvent) {
	key := config.CacheKey.AssessmentLiveKey(assessmentID.String())
	field := strconv.Itoa(learnerID)
	if raw, err := s.rdb.HGet(ctx, key, field).Bytes(); err == nil {
		var live LiveAttempt
		if json.Unmarshal(raw, &live) == nil && live.AttemptID == attemptID {
			live.IntegrityCount++
			if updated, err := json.Marshal(live); err == nil {
				s.rdb.HSet(ctx, key, field, updated)
			}
		}
	}
	s.Publish(ctx, assessmentID, MonitorEvent{
		Type:        MonitorWarning,
		LearnerID:   learnerID,
		AttemptID:   attemptID,
		Kind:        ev.Kind,
		Description: ev.Description,
		At:          ev.OccurredAt,
	})
}

// TrackLeave removes a live attempt. Submitted attempts are announced by grading instead.
func (s *MonitorService) TrackLeave(ctx context.Context, assessmentID uuid.UUID, learnerID int, attemptID uuid.UUID, submitted bool) {
	key := config.CacheKey.AssessmentLiveKey(assessmentID.String())
	s.rdb.HDel(ctx, key, strconv.Itoa(learnerID))
	if !submitted {
		s.Publish(ctx, assessmentID, MonitorEvent{Type: MonitorLeft, LearnerID: learnerID, AttemptID: attemptID})
	}
}

// Snapshot gathers live attempts from Redis and persisted results from PostgreSQL concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, assessmentID uuid.UUID) (*MonitorSnapshot, error) {
	var (
		live       map[string]string
		results    []model.AttemptSummary
		integrity  map[int]int64
		liveErr    error
		resultsErr error
		integErr   error
		wg         sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		live, liveErr = s.rdb.HGetAll(ctx, config.CacheKey.AssessmentLiveKey(assessmentID.String())).Result()
	}()
	go func() {
		defer wg.Done()
		results, resultsErr = s.attempts.ListByAssessment(ctx, assessmentID)
	}()
	go func() {
		defer wg.Done()
		integrity, integErr = s.attempts.IntegrityCounts(ctx, assessmentID)
	}()
	wg.Wait()

	if resultsErr != nil {
		return nil, fmt.Errorf("list results: %w", resultsErr)
	}
	if liveErr != nil {
		s.log.Warn().Err(liveErr).Msg("Failed to read live attempts")
	}
	if integErr != nil || integrity == nil {
		integrity = make(map[int]int64)
	}

	snap := &MonitorSnapshot{
		Live:               make([]LiveAttempt, 0, len(live)),
		Results:            results,
		IntegrityByLearner: integrity,
	}
	if snap.Results == nil {
		snap.Results = []model.AttemptSummary{}
	}
	for _, raw := range live {
		var la LiveAttempt
		if err := json.Unmarshal([]byte(raw), &la); err != nil {
			continue
		}
		snap.Live = append(snap.Live, la)
		snap.TotalIntegrity += la.IntegrityCount
	}
	for _, n := range integrity {
		snap.TotalIntegrity += n
	}
	snap.TotalLive = len(snap.Live)
	snap.TotalSubmitted = len(snap.Results)
	return snap, nil
}
