package handler

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"blinkroom/internal/service"
	"blinkroom/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Room      *RoomHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(db, rdb),
		Room:      NewRoomHandler(services.Room, log),
		WebSocket: NewWebSocketHandler(services.Session, log),
	}
}
