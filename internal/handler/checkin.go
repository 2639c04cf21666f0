package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/afterword/afterword/internal/checkin"
)

// CheckInService is the slice of the check-in service these handlers need.
type CheckInService interface {
	Consume(ctx context.Context, token string, now time.Time) (*checkin.Result, error)
	ShareRead(ctx context.Context, token string, now time.Time) (*checkin.ShareResult, error)
}

// CheckInHandler serves the unauthenticated token endpoints.  The token in
// the query string is the only credential.
type CheckInHandler struct {
	Svc CheckInService

	// MissFloor pads responses for unknown tokens so an existence probe
	// cannot time the difference between "no such row" and a full check-in.
	MissFloor time.Duration
}

func NewCheckInHandler(svc CheckInService) *CheckInHandler {
	return &CheckInHandler{Svc: svc, MissFloor: 150 * time.Millisecond}
}

// CheckIn consumes a token and resets the owning secret's deadline.
// POST /v1/check-in?token=...
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing check-in token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	started := time.Now()
	res, err := h.Svc.Consume(ctx, token, time.Now())
	if err != nil {
		return h.tokenError(c, err, started)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"secretTitle": res.SecretTitle,
		"nextCheckIn": res.NextCheckIn,
		"message":     "Check-in confirmed. Your next check-in deadline has been reset.",
	})
}

// Share answers the grace-window read that follows a check-in.
// GET /v1/share/:token
func (h *CheckInHandler) Share(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing check-in token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	started := time.Now()
	res, err := h.Svc.ShareRead(ctx, token, time.Now())
	if err != nil {
		return h.tokenError(c, err, started)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"secretTitle": res.SecretTitle,
		"available":   res.PayloadAvailable,
	})
}

// tokenError maps service errors to user-facing responses.  Each case gets
// its own clear, non-technical message; anything unexpected is logged
// server-side and answered generically.
func (h *CheckInHandler) tokenError(c echo.Context, err error, started time.Time) error {
	switch {
	case errors.Is(err, checkin.ErrInvalidToken):
		h.padToFloor(started)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "This link is not valid. Please use the most recent email we sent you."})
	case errors.Is(err, checkin.ErrTokenExpired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "This link has expired."})
	case errors.Is(err, checkin.ErrTokenUsed):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "This link has already been used."})
	case errors.Is(err, checkin.ErrSecretNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "The secret for this link no longer exists."})
	default:
		log.Printf("checkin-handler: internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
	}
}

// padToFloor sleeps out the remainder of MissFloor after a lookup miss.
func (h *CheckInHandler) padToFloor(started time.Time) {
	if rest := h.MissFloor - time.Since(started); rest > 0 {
		time.Sleep(rest)
	}
}
