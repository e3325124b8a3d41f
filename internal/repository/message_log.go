package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"blinkroom/internal/domain"
	"blinkroom/pkg/logger"
)

// MessageLogRepository keeps a bounded, expiring tail of recent messages per
// room in Redis for replay to newly joined connections.
type MessageLogRepository interface {
	Append(ctx context.Context, roomID string, msg *domain.Message) error
	Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
}

type messageLogRepository struct {
	redis *redis.Client
	cap   int64
	ttl   time.Duration
	log   logger.Logger
}

func NewMessageLogRepository(rdb *redis.Client, cap int, ttl time.Duration, log logger.Logger) MessageLogRepository {
	return &messageLogRepository{redis: rdb, cap: int64(cap), ttl: ttl, log: log}
}

func messagesKey(roomID string) string {
	return "room:" + roomID + ":messages"
}

// Append pushes the message, trims the log to the newest entries and refreshes
// the TTL in a single MULTI/EXEC transaction, so concurrent appends from other
// processes can never skip the trim or the expiry.
func (r *messageLogRepository) Append(ctx context.Context, roomID string, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := messagesKey(roomID)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -r.cap, -1)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to append message", "room_id", roomID, "error", err)
		return err
	}

	return nil
}

// Recent returns up to limit most recent messages, oldest first. Entries that
// fail to decode are skipped.
func (r *messageLogRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	entries, err := r.redis.LRange(ctx, messagesKey(roomID), int64(-limit), -1).Result()
	if err != nil {
		r.log.Error("Failed to read message log", "room_id", roomID, "error", err)
		return nil, err
	}

	messages := make([]domain.Message, 0, len(entries))
	for _, entry := range entries {
		var msg domain.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			r.log.Warn("Skipping undecodable message log entry", "room_id", roomID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
