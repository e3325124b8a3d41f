package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"blinkroom/internal/config"
	"blinkroom/pkg/logger"
)

type Repositories struct {
	Room       RoomRepository
	MessageLog MessageLogRepository
	Bus        FanoutBus
	RateLimit  RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	return &Repositories{
		Room:       NewRoomRepository(db, log),
		MessageLog: NewMessageLogRepository(rdb, cfg.Chat.LogCap, cfg.Chat.LogTTL, log),
		Bus:        NewRedisFanoutBus(rdb, log),
		RateLimit:  NewRateLimitRepository(rdb, log),
	}
}
