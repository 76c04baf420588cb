package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/middleware"
	"github.com/skillproof/skillproof-backend/internal/model"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams live test progress to admins over SSE: an initial
// snapshot from the database followed by events forwarded from Redis Pub/Sub.
type MonitorHandler struct {
	rdb         *redis.Client
	testService *service.TestService
	log         zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, testService *service.TestService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:         rdb,
		testService: testService,
		log:         log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/admin/tests/:id/monitor
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	t, err := h.testService.Get(reqCtx, claims.UserID, testID)
	if err != nil {
		failFromService(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, t)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.TestMonitorChannel(testID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("test_id", testID.String()).Msg("admin attached to live monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("admin detached from live monitor")
			return

		case msg := <-ch:
			// Payloads are already JSON, forward as-is.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the first SSE event: current sessions and counts.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, t *model.Test) {
	claims := middleware.GetClaims(c)
	sessions, err := h.testService.ListSessions(c.Request.Context(), claims.UserID, t.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("snapshot query failed")
		sessions = nil
	}

	started := 0
	completed := 0
	candidates := make([]map[string]interface{}, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		switch s.Status {
		case model.SessionStatusStarted:
			started++
		case model.SessionStatusCompleted:
			completed++
		}
		candidates = append(candidates, map[string]interface{}{
			"session_id":      s.ID.String(),
			"candidate_email": s.CandidateEmail,
			"status":          s.Status,
			"started_at":      s.StartedAt,
			"submitted_at":    s.SubmittedAt,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"test": map[string]interface{}{
				"id":       t.ID.String(),
				"name":     t.Name,
				"duration": t.DurationMinutes,
				"status":   t.Status,
			},
			"stats": map[string]interface{}{
				"total_invited":   len(sessions),
				"total_started":   started,
				"total_completed": completed,
			},
			"candidates": candidates,
		},
	})
	c.Writer.Flush()
}
