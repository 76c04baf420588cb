package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/skillproof/skillproof-backend/internal/countdown"
	"github.com/skillproof/skillproof-backend/internal/model"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
	ws "github.com/skillproof/skillproof-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowlist permits all origins (development mode).
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

// WSHandler streams the live attempt channel to candidates: a server-driven
// countdown tick plus autosave and submit actions over one connection.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/candidate/sessions/:token/stream?email=...
// Upgrades to WebSocket. The server pushes a tick every second with the
// remaining time and force-submits when it reaches zero; the client sends
// autosave and submit actions on the same connection.
func (h *WSHandler) SessionStream(c *gin.Context) {
	token := c.Param("token")
	email := c.Query("email")

	sess, t, err := h.sessionService.Resolve(c.Request.Context(), token, email)
	if err != nil {
		failFromService(c, err)
		return
	}
	if sess.StartedAt == nil {
		response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
		return
	}
	if sess.SubmittedAt != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sess.ID.String()).
		Str("test_id", t.ID.String()).
		Logger()
	wsLog.Info().Msg("candidate connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deadline := sess.StartedAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
	go h.runCountdown(ctx, cancel, conn, wsLog, token, email, deadline)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, token, email, data)
		case ws.ActionSubmit:
			if done := h.handleSubmit(ctx, conn, wsLog, token, email, data); done {
				cancel()
				return
			}
		case ws.ActionPing:
			conn.WriteTyped(ws.PongEvent{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("unknown action")
			conn.WriteError("unknown action: " + string(envelope.Action))
		}
	}
}

// runCountdown pushes a tick per second and force-submits at the deadline.
func (h *WSHandler) runCountdown(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *ws.Conn,
	wsLog zerolog.Logger,
	token, email string,
	deadline time.Time,
) {
	ctrl := &countdown.Controller{}
	err := ctrl.Run(ctx, deadline,
		func(remaining int) error {
			return conn.WriteTyped(ws.TickEvent{Event: ws.EventTick, RemainingSeconds: remaining})
		},
		func() error {
			sess, err := h.expireSession(ctx, token, email)
			if err != nil {
				wsLog.Error().Err(err).Msg("deadline submit failed, will retry")
				return err
			}
			conn.WriteTyped(completedEvent(sess, true))
			cancel()
			return nil
		},
	)
	if err != nil && ctx.Err() == nil {
		wsLog.Debug().Err(err).Msg("countdown stopped")
	}
}

// expireSession drives the time-up submission through the same path a manual
// submit takes, so the first writer still wins.
func (h *WSHandler) expireSession(ctx context.Context, token, email string) (*model.TestSession, error) {
	return h.sessionService.Submit(ctx, token, model.SubmitSessionRequest{Email: email})
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *ws.Conn, token, email string, data []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError("malformed autosave")
		return
	}
	qid, err := uuid.Parse(req.QuestionID)
	if err != nil {
		conn.WriteError("invalid question_id")
		return
	}

	err = h.sessionService.Autosave(ctx, token, email, model.AutosaveAnswerRequest{
		Email:      email,
		QuestionID: qid,
		Response:   req.Response,
	})
	if err != nil {
		conn.WriteError(err.Error())
		return
	}
	conn.WriteTyped(ws.SavedEvent{Event: ws.EventSaved, QuestionID: req.QuestionID})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, token, email string, data []byte) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError("malformed submit")
		return false
	}

	answers := make([]model.SubmitAnswer, 0, len(req.Answers))
	for _, a := range req.Answers {
		qid, err := uuid.Parse(a.QuestionID)
		if err != nil {
			conn.WriteError("invalid question_id: " + a.QuestionID)
			return false
		}
		answers = append(answers, model.SubmitAnswer{QuestionID: qid, Response: a.Response})
	}

	sess, err := h.sessionService.Submit(ctx, token, model.SubmitSessionRequest{Email: email, Answers: answers})
	if err != nil {
		wsLog.Error().Err(err).Msg("submit failed")
		conn.WriteError(err.Error())
		return false
	}

	conn.WriteTyped(completedEvent(sess, false))
	return true
}

func completedEvent(sess *model.TestSession, auto bool) ws.CompletedEvent {
	ev := ws.CompletedEvent{Event: ws.EventCompleted, Auto: auto}
	if sess.SubmittedAt != nil {
		ev.SubmittedAt = sess.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if sess.TimeTakenSeconds != nil {
		ev.TimeTakenSeconds = *sess.TimeTakenSeconds
	}
	return ev
}
