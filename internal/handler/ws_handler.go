package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepnest/attempt-backend/internal/engine"
	"github.com/prepnest/attempt-backend/internal/middleware"
	"github.com/prepnest/attempt-backend/internal/response"
	"github.com/prepnest/attempt-backend/internal/service"
	ws "github.com/prepnest/attempt-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// WSHandler streams attempt events: answers, review flags, navigation, and
// the visibility/connectivity signals.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for the duration of the exam page's life. A dropped
// stream is treated as "client gone": focus time is flushed and the
// disconnected span is billed to nobody, while the countdown keeps running.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID := c.Param("attempt_id")
	eng, err := h.attemptService.Get(attemptID, claims.CandidateID)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, service.ErrNotAttemptOwner) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("candidate_id", claims.CandidateID).
		Str("attempt_id", attemptID).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	// The stream (re)appearing is the reattach signal.
	eng.Resume(context.Background())

	defer func() {
		h.attemptService.ClientGone(context.Background(), attemptID, claims.CandidateID)
		wsLog.Info().Msg("Candidate disconnected")
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctx := context.Background()

		switch msg.Action {
		case ws.ActionAnswer:
			h.reply(conn, eng, eng.SelectAnswer(ctx, msg.QID, msg.Value))
		case ws.ActionReview:
			h.reply(conn, eng, eng.SetReview(ctx, msg.QID, msg.Marked))
		case ws.ActionNavigate:
			h.reply(conn, eng, eng.Navigate(ctx, msg.QID))
		case ws.ActionVisibility:
			h.reply(conn, eng, eng.SetVisibility(ctx, msg.Hidden))
		case ws.ActionConnectivity:
			h.reply(conn, eng, eng.SetConnectivity(ctx, msg.Online))
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}

		// The engine may have auto-submitted on this event's tick boundary;
		// a terminal status ends the stream after the final state frame.
		if eng.Status().Terminal() {
			return
		}
	}
}

// reply acknowledges an action with the authoritative state frame, or maps
// the engine error.
func (h *WSHandler) reply(conn *websocket.Conn, eng *engine.Engine, err error) {
	if err != nil {
		ws.WriteError(conn, string(mapEngineError(err)), err.Error())
		return
	}
	snap := eng.Snapshot()
	ws.WriteTyped(conn, ws.StateResponse{
		Event:            ws.EventState,
		Status:           string(snap.Status),
		RemainingSeconds: snap.RemainingSeconds,
	})
}

func mapEngineError(err error) response.ErrCode {
	switch {
	case errors.Is(err, engine.ErrNotEditable), errors.Is(err, engine.ErrWrongState):
		return response.ErrAttemptNotEditable
	case errors.Is(err, engine.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, engine.ErrInvalidOption), errors.Is(err, engine.ErrInvalidInteger):
		return response.ErrInvalidAnswer
	default:
		return response.ErrInternal
	}
}
