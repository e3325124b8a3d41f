package domain

import "time"

// Room is an ephemeral chat room. Rooms auto-expire and are never reused.
type Room struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

func (r *Room) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

func (r *Room) TimeRemaining() time.Duration {
	return time.Until(r.ExpiresAt)
}
