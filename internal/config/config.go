package config

import (
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Required values are enforced by must() at startup
// so a misconfigured process fails fast instead of limping along.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	CronSecret   string // bearer secret for the scheduler trigger endpoint
	OpsJWTSecret string // HS256 secret for the operator surface (optional, disables ops routes when empty)

	EmailProvider     string // "mock" or "smtp"
	SMTPHost          string
	SMTPPort          string
	SMTPUsername      string
	SMTPPassword      string
	EmailFrom         string // From address on all outgoing mail
	FailureNotifyAddr string // where critical/high delivery failures are escalated

	AMQPURL string // RabbitMQ URL for lifecycle audit events (optional, disables publishing when empty)

	BaseURL          string        // public base URL used in check-in links
	LookaheadDays    int           // how far ahead of a deadline the scheduler scans
	SchedulerTimeout time.Duration // wall-clock cap on a single scheduler run
	Workers          int           // concurrent secrets processed per run
}

// Load reads configuration from environment variables. Missing required
// variables cause the process to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		CronSecret:   must("CRON_SECRET"),
		OpsJWTSecret: os.Getenv("OPS_JWT_SECRET"),

		EmailProvider:     envStr("EMAIL_PROVIDER", "mock"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          envStr("SMTP_PORT", "587"),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		EmailFrom:         envStr("EMAIL_FROM", "no-reply@afterword.dev"),
		FailureNotifyAddr: envStr("FAILURE_NOTIFY_ADDR", "ops@afterword.dev"),

		AMQPURL: os.Getenv("AMQP_URL"),

		BaseURL:          envStr("BASE_URL", "http://localhost:8080"),
		LookaheadDays:    envInt("SCHEDULER_LOOKAHEAD_DAYS", 7),
		SchedulerTimeout: envDur("SCHEDULER_TIMEOUT", 4*time.Minute),
		Workers:          envInt("SCHEDULER_WORKERS", 8),
	}
	if cfg.EmailProvider == "smtp" && cfg.SMTPHost == "" {
		log.Fatal("EMAIL_PROVIDER=smtp requires SMTP_HOST")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
