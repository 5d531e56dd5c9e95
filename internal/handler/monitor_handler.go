package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	rdb               *redis.Client
	assessmentService *service.AssessmentService
	monitorService    *service.MonitorService
	log               zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	assessmentService *service.AssessmentService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:               rdb,
		assessmentService: assessmentService,
		monitorService:    monitorService,
		log:               log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorAssessmentSSE godoc
// GET /api/v1/admin/assessments/:id/monitor
// Sends a snapshot, then relays joins, integrity warnings, leaves and submissions.
func (h *MonitorHandler) MonitorAssessmentSSE(c *gin.Context) {
	assessmentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), assessmentID)
	if err != nil {
		failWith(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before the snapshot so nothing published in between is lost.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.AssessmentMonitorChannel(assessmentID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	h.sendSnapshot(c, reqCtx, assessment, "snapshot")

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip periodic refreshes until something happens on the channel.
	active := false

	h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			writeSSE(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendSnapshot(c, reqCtx, assessment, "refresh")

		case <-keepAliveTicker.C:
			writeSSE(c, pingPayload)
		}
	}
}

// sendSnapshot writes the live + persisted state as one event.
// A failed refresh is skipped; a failed initial snapshot is sent empty.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, a *model.Assessment, kind string) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, a.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("assessment_id", a.ID.String()).Msg("Failed to build monitor snapshot")
		if kind != "snapshot" {
			return
		}
		snap = &service.MonitorSnapshot{
			Live:               []service.LiveAttempt{},
			Results:            []model.AttemptSummary{},
			IntegrityByLearner: map[int]int64{},
		}
	}

	c.SSEvent("message", gin.H{
		"type": kind,
		"data": gin.H{
			"assessment": gin.H{
				"id":                 a.ID,
				"title":              a.Title,
				"time_limit_minutes": a.TimeLimitMinutes,
				"total_questions":    a.QuestionCount,
			},
			"stats": gin.H{
				"total_live":      snap.TotalLive,
				"total_submitted": snap.TotalSubmitted,
				"total_integrity": snap.TotalIntegrity,
			},
			"live":                 snap.Live,
			"results":              snap.Results,
			"integrity_by_learner": snap.IntegrityByLearner,
		},
	})
	c.Writer.Flush()
}

func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
