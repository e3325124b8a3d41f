package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"blinkroom/internal/service"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/logger"
)

type RoomHandler struct {
	roomService service.RoomService
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		log:         log,
	}
}

// Create makes a new ephemeral room. No request body: the id and expiry are
// generated server-side.
func (h *RoomHandler) Create(c *gin.Context) {
	room, err := h.roomService.Create(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to create room", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) GetByID(c *gin.Context) {
	roomID := c.Param("id")

	room, err := h.roomService.GetByID(c.Request.Context(), roomID)
	if errors.Is(err, apperrors.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room '" + roomID + "' not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if room.IsExpired() {
		c.JSON(http.StatusGone, gin.H{"error": "room '" + roomID + "' has expired"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         room.ID,
		"created_at": room.CreatedAt,
		"expires_at": room.ExpiresAt,
		"is_active":  room.IsActive,
		"is_expired": room.IsExpired(),
	})
}
