package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPProvider delivers over plain SMTP with STARTTLS.  It is the "real"
// provider; credentials come from configuration, never from the
// environment directly.
type SMTPProvider struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewSMTPProvider(host string, port int, username, password, from string) *SMTPProvider {
	return &SMTPProvider{Host: host, Port: port, Username: username, Password: password, From: from}
}

func (p *SMTPProvider) Name() string { return "smtp" }

// Send performs one delivery attempt.  SMTP has no tracking facility, so
// TrackingHonored is always false, and the reported MessageID is the
// Message-ID header we generated rather than a provider receipt.
func (p *SMTPProvider) Send(ctx context.Context, msg Message) (ProviderResult, error) {
	from := msg.From
	if from == "" {
		from = p.From
	}
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), p.Host)

	d := net.Dialer{Timeout: 15 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		if t := time.Until(deadline); t > 0 && t < d.Timeout {
			d.Timeout = t
		}
	}

	addr := fmt.Sprintf("%s:%d", p.Host, p.Port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, p.Host)
	if err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	defer c.Quit()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: p.Host}); err != nil {
			return ProviderResult{}, classifySMTP(err)
		}
	}
	if p.Username != "" {
		auth := smtp.PlainAuth("", p.Username, p.Password, p.Host)
		if err := c.Auth(auth); err != nil {
			return ProviderResult{}, classifySMTP(err)
		}
	}
	if err := c.Mail(from); err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	if err := c.Rcpt(strings.TrimSpace(msg.To)); err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	w, err := c.Data()
	if err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	if _, err := w.Write(buildMIME(from, msgID, msg)); err != nil {
		_ = w.Close()
		return ProviderResult{}, classifySMTP(err)
	}
	if err := w.Close(); err != nil {
		return ProviderResult{}, classifySMTP(err)
	}
	return ProviderResult{MessageID: msgID}, nil
}

// classifySMTP maps transport and SMTP reply-code failures onto SendError
// kinds.  4xx replies are transient by definition; 535/530-family replies
// are credential problems; 550/551/553 reject the recipient.
func classifySMTP(err error) *SendError {
	var ne net.Error
	if errors.As(err, &ne) {
		kind := KindNetwork
		if ne.Timeout() {
			kind = KindTimeout
		}
		return &SendError{Kind: kind, Msg: err.Error()}
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 421 || te.Code == 450 || te.Code == 451 || te.Code == 452:
			// Throttling and transient local errors.  SMTP carries no
			// Retry-After; one minute is a conservative stand-in.
			return &SendError{Kind: KindRateLimit, Msg: te.Error(), RetryAfter: 60}
		case te.Code == 530 || te.Code == 534 || te.Code == 535:
			return &SendError{Kind: KindAuth, Msg: te.Error()}
		case te.Code == 550 || te.Code == 551 || te.Code == 553:
			return &SendError{Kind: KindInvalidRecipient, Msg: te.Error()}
		case te.Code >= 500:
			return &SendError{Kind: KindInvalidRecipient, Msg: te.Error()}
		default:
			return &SendError{Kind: KindNetwork, Msg: te.Error()}
		}
	}
	return &SendError{Kind: KindUnknown, Msg: err.Error()}
}

// buildMIME assembles the raw RFC 822 message.  When both bodies are present
// a multipart/alternative envelope is used with the plain part first.
func buildMIME(from, msgID string, msg Message) []byte {
	var b strings.Builder
	write := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	write("From", from)
	write("To", msg.To)
	write("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	write("Message-ID", msgID)
	write("Date", time.Now().UTC().Format(time.RFC1123Z))
	write("MIME-Version", "1.0")

	// Deterministic header order keeps the output testable.
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, msg.Headers[k])
	}

	switch {
	case msg.HTMLBody != "" && msg.Body != "":
		boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
		write("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
		b.WriteString("\r\n")
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Body)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	case msg.HTMLBody != "":
		write("Content-Type", "text/html; charset=utf-8")
		b.WriteString("\r\n" + msg.HTMLBody + "\r\n")
	default:
		write("Content-Type", "text/plain; charset=utf-8")
		b.WriteString("\r\n" + msg.Body + "\r\n")
	}
	return []byte(b.String())
}
