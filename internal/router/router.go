package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/afterword/afterword/internal/config"
	"github.com/afterword/afterword/internal/handler"
	"github.com/afterword/afterword/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication. The health
// check is used by load balancers and uptime monitors.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterCheckIn registers the public token endpoints. Tokens arrive in
// the URL, so both routes sit behind the Redis token bucket to slow down
// anyone probing for valid values.
func RegisterCheckIn(e *echo.Echo, h *handler.CheckInHandler, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1", middleware.NewTokenBucket(rlCfg, rdb))
	g.POST("/check-in", h.CheckIn)
	g.GET("/share/:token", h.Share)
}

// RegisterCron registers the scheduler trigger. The route is meant to be
// called by an external cron and is guarded by a shared bearer secret.
func RegisterCron(e *echo.Echo, h *handler.CronHandler, cronSecret string) {
	g := e.Group("/v1/cron", middleware.CronAuth(cronSecret))
	g.POST("/check-secrets", h.ProcessReminders)
}

// RegisterOps registers the operator surface for delivery failures. The
// whole group is skipped when no JWT secret is configured.
func RegisterOps(e *echo.Echo, h *handler.OpsHandler, jwtSecret string) {
	if jwtSecret == "" {
		return
	}
	g := e.Group("/v1/ops", middleware.OpsAuth(jwtSecret))
	g.GET("/failures", h.ListFailures)
	g.POST("/failures/:id/resolve", h.ResolveFailure)
	g.POST("/failures/cleanup", h.CleanupFailures)
}
