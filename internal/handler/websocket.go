package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"blinkroom/internal/service"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // rooms are unauthenticated and self-service
	},
}

type WebSocketHandler struct {
	sessionService service.SessionService
	log            logger.Logger
}

func NewWebSocketHandler(sessionService service.SessionService, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionService: sessionService,
		log:            log,
	}
}

// HandleChat upgrades the connection and runs the chat session until the
// client disconnects. Invalid rooms get a close frame with a distinguishing
// reason instead of a session.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	roomID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	err = h.sessionService.Run(c.Request.Context(), roomID, conn)
	switch {
	case errors.Is(err, apperrors.ErrRoomNotFound):
		h.closeWithReason(conn, "Room not found")
	case errors.Is(err, apperrors.ErrRoomExpired):
		h.closeWithReason(conn, "Room expired")
	case err != nil:
		h.log.Error("Chat session failed", "room_id", roomID, "error", err)
	}
}

func (h *WebSocketHandler) closeWithReason(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		h.log.Debug("Failed to send close frame", "error", err)
	}
}
