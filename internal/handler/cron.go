package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/scheduler"
)

// SchedulerRunner runs one reminder/disclosure scan.
type SchedulerRunner interface {
	RunOnce(ctx context.Context, now time.Time) (scheduler.Summary, error)
}

// TokenJanitor purges long-expired check-in tokens after a run.
type TokenJanitor interface {
	DeleteExpiredBefore(ctx context.Context, cutoffMs int64) (int64, error)
}

// CronHandler serves the externally triggered scheduler endpoint.  Auth is
// handled by the CronAuth middleware; by the time a request reaches here it
// carries the shared secret.
type CronHandler struct {
	Sched  SchedulerRunner
	Tokens TokenJanitor
}

func NewCronHandler(sched SchedulerRunner, tokens TokenJanitor) *CronHandler {
	return &CronHandler{Sched: sched, Tokens: tokens}
}

// tokenPurgeLag keeps the cleanup cutoff two days behind expiry so a token
// consumed near its deadline still resolves share reads through the full
// 24-hour grace window.
const tokenPurgeLag = 2 * model.MillisPerDay

// ProcessReminders runs one scan and reports the aggregate counts.  Only a
// store-level failure (the candidate query itself) surfaces as 500;
// per-secret problems are already counted inside the summary.
// POST /v1/cron/check-secrets
func (h *CronHandler) ProcessReminders(c echo.Context) error {
	now := time.Now()
	sum, err := h.Sched.RunOnce(c.Request().Context(), now)
	if err != nil {
		log.Printf("cron-handler: scheduler run failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
	}

	// Maintenance pass: long-expired tokens are dead weight.  Best-effort;
	// a failure here never fails the run that already happened.
	if h.Tokens != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()
		if n, err := h.Tokens.DeleteExpiredBefore(ctx, now.UnixMilli()-tokenPurgeLag); err != nil {
			log.Printf("cron-handler: token cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("cron-handler: purged %d expired check-in tokens", n)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"processed":            sum.RemindersProcessed,
		"remindersProcessed":   sum.RemindersProcessed,
		"remindersSent":        sum.RemindersSent,
		"remindersFailed":      sum.RemindersFailed,
		"disclosuresTriggered": sum.DisclosuresTriggered,
		"timestamp":            now.UTC().Format(time.RFC3339),
	})
}
