package service

import (
	"blinkroom/internal/config"
	"blinkroom/internal/repository"
	"blinkroom/pkg/logger"
)

type Services struct {
	Room      RoomService
	Session   SessionService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	mux := NewMultiplexer(repos.Bus, log)
	registry := NewRegistry(mux, log)

	return &Services{
		Room:      NewRoomService(repos.Room, cfg.Chat.RoomTTL, log),
		Session:   NewSessionService(repos.Room, repos.MessageLog, registry, mux, cfg.Chat.HistoryLimit, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
