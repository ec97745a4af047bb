package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Driver        string `json:"driver"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	WaitCount     int64  `json:"wait_count"`
	WaitDuration  string `json:"wait_duration"`
	Healthy       bool   `json:"healthy"`
}

// Checker pings a store and reports its pool statistics.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

// PGChecker adapts a pgx pool.
type PGChecker struct{ Pool *pgxpool.Pool }

func (p PGChecker) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

func (p PGChecker) Stats() *PoolStats {
	stat := p.Pool.Stat()
	return &PoolStats{
		Driver:        "postgres",
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		WaitCount:     stat.EmptyAcquireCount(),
		WaitDuration:  stat.AcquireDuration().String(),
		Healthy:       stat.TotalConns() > 0,
	}
}

// SQLChecker adapts a database/sql handle.
type SQLChecker struct{ DB *sql.DB }

func (s SQLChecker) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s SQLChecker) Stats() *PoolStats {
	stat := s.DB.Stats()
	return &PoolStats{
		Driver:        "mysql",
		TotalConns:    int32(stat.OpenConnections),
		IdleConns:     int32(stat.Idle),
		AcquiredConns: int32(stat.InUse),
		MaxConns:      int32(stat.MaxOpenConnections),
		WaitCount:     stat.WaitCount,
		WaitDuration:  stat.WaitDuration.String(),
		Healthy:       stat.OpenConnections > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(checker Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := checker.Ping(ctx)
		stats := checker.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
