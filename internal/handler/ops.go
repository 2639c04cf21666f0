package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/repository"
)

// EscalationService is the slice of the escalation service the ops surface
// needs.
type EscalationService interface {
	ListUnresolved(ctx context.Context, limit int) ([]model.EmailFailure, error)
	Resolve(ctx context.Context, id string) error
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// OpsHandler exposes delivery-failure management to operators.  Routes are
// protected by the OpsAuth middleware.
type OpsHandler struct {
	Esc EscalationService
}

func NewOpsHandler(esc EscalationService) *OpsHandler { return &OpsHandler{Esc: esc} }

// ListFailures returns outstanding delivery failures, oldest first.
// GET /v1/ops/failures?limit=100
func (h *OpsHandler) ListFailures(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	failures, err := h.Esc.ListUnresolved(ctx, limit)
	if err != nil {
		log.Printf("ops-handler: list failures: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
	}
	if failures == nil {
		failures = []model.EmailFailure{}
	}
	return c.JSON(http.StatusOK, echo.Map{"failures": failures, "count": len(failures)})
}

// ResolveFailure marks one failure as handled.
// POST /v1/ops/failures/:id/resolve
func (h *OpsHandler) ResolveFailure(c echo.Context) error {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Esc.Resolve(ctx, id); err != nil {
		if errors.Is(err, repository.ErrFailureNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "failure not found"})
		}
		log.Printf("ops-handler: resolve failure %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// CleanupFailures purges resolved failures older than the retention window.
// POST /v1/ops/failures/cleanup?retention_days=30
func (h *OpsHandler) CleanupFailures(c echo.Context) error {
	retention, _ := strconv.Atoi(c.QueryParam("retention_days"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	n, err := h.Esc.Cleanup(ctx, retention)
	if err != nil {
		log.Printf("ops-handler: cleanup failures: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}
