package service

import (
	"context"
	"time"

	"blinkroom/internal/repository"
	"blinkroom/pkg/logger"
)

type RateLimitService interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := s.rateLimitRepo.Increment(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
