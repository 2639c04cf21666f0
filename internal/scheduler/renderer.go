package scheduler

import (
	"fmt"
	"time"

	"github.com/afterword/afterword/internal/lifecycle"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/timefmt"
)

// Renderer builds message content for reminder and disclosure sends.  The
// visual templates live with the front end; this core only needs subjects
// and bodies.
type Renderer interface {
	Reminder(s *model.Secret, tier lifecycle.Tier, now time.Time, token string) (subject, body string)
	Disclosure(s *model.Secret, rcpt model.Recipient) (subject, body string)
}

// TextRenderer is the plain-text default.  BaseURL is where check-in links
// point.
type TextRenderer struct {
	BaseURL string
}

func (r *TextRenderer) Reminder(s *model.Secret, tier lifecycle.Tier, now time.Time, token string) (string, string) {
	remaining := timefmt.Remaining(lifecycle.RemainingDays(s, now))
	subject := fmt.Sprintf("Check in on %q: %s left", s.Title, remaining)
	body := fmt.Sprintf(
		"Your secret %q will be disclosed to its recipients in %s unless you check in.\n\n"+
			"Check in now:\n%s/v1/check-in?token=%s\n\n"+
			"If you checked in recently you can ignore this message.\n",
		s.Title, remaining, r.BaseURL, token)
	return subject, body
}

func (r *TextRenderer) Disclosure(s *model.Secret, rcpt model.Recipient) (string, string) {
	subject := fmt.Sprintf("A secret has been entrusted to you: %q", s.Title)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"The owner of %q missed their scheduled check-in, and you were named as a recipient.\n"+
			"Visit %s/disclosure to retrieve the contents.\n",
		rcpt.Name, s.Title, r.BaseURL)
	return subject, body
}
