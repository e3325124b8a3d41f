package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blinkroom/internal/domain"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/logger"
)

// RoomRepository is the room directory. The broadcast engine only ever reads it;
// writes happen through the room lifecycle API.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (id, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Exec(ctx, query, room.ID, room.CreatedAt, room.ExpiresAt, room.IsActive)
	if err != nil {
		r.log.Error("Failed to create room", "room_id", room.ID, "error", err)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	query := `
		SELECT id, created_at, expires_at, is_active
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.CreatedAt, &room.ExpiresAt, &room.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrRoomNotFound
	}
	if err != nil {
		r.log.Error("Failed to get room", "room_id", id, "error", err)
		return nil, err
	}

	return room, nil
}
