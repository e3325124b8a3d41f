package service

import (
	"context"
	"errors"
	"time"

	"blinkroom/internal/domain"
	"blinkroom/internal/repository"
	apperrors "blinkroom/pkg/errors"
	"blinkroom/pkg/ident"
	"blinkroom/pkg/logger"
)

type RoomService interface {
	Create(ctx context.Context) (*domain.Room, error)
	GetByID(ctx context.Context, id string) (*domain.Room, error)
}

type roomService struct {
	roomRepo repository.RoomRepository
	ttl      time.Duration
	log      logger.Logger
}

func NewRoomService(roomRepo repository.RoomRepository, ttl time.Duration, log logger.Logger) RoomService {
	return &roomService{
		roomRepo: roomRepo,
		ttl:      ttl,
		log:      log,
	}
}

func (s *roomService) Create(ctx context.Context) (*domain.Room, error) {
	id, err := s.freeRoomID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	room := &domain.Room{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		IsActive:  true,
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	s.log.Info("Room created", "room_id", room.ID, "expires_at", room.ExpiresAt)
	return room, nil
}

func (s *roomService) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, id)
}

// freeRoomID generates a room id not currently taken. With 62^6 combinations
// collisions are rare, so a simple retry loop suffices.
func (s *roomService) freeRoomID(ctx context.Context) (string, error) {
	for {
		id := ident.NewRoomID()
		_, err := s.roomRepo.GetByID(ctx, id)
		if errors.Is(err, apperrors.ErrRoomNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}
