package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

// Check reports API liveness plus database and Redis connectivity.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	status := gin.H{
		"api":      "ok",
		"database": "ok",
		"redis":    "ok",
	}

	if err := h.db.Ping(ctx); err != nil {
		status["database"] = "error: " + err.Error()
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "error: " + err.Error()
	}

	c.JSON(http.StatusOK, status)
}
