package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/afterword/afterword/internal/checkin"
	"github.com/afterword/afterword/internal/config"
	"github.com/afterword/afterword/internal/database"
	"github.com/afterword/afterword/internal/email"
	"github.com/afterword/afterword/internal/escalation"
	"github.com/afterword/afterword/internal/handler"
	"github.com/afterword/afterword/internal/queue"
	"github.com/afterword/afterword/internal/repository"
	"github.com/afterword/afterword/internal/router"
	"github.com/afterword/afterword/internal/scheduler"
	queuepub "github.com/afterword/afterword/internal/service"
)

func main() {
	// .env is a local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	secrets := &repository.SecretRepo{DB: db}
	tokens := &repository.TokenRepo{DB: db}
	reminders := &repository.ReminderLogRepo{DB: db}
	failures := &repository.FailureRepo{DB: db}

	provider := buildProvider(cfg)
	mailer := email.NewService(provider, cfg.EmailFrom)
	log.Printf("email provider: %s", provider.Name())

	esc := escalation.NewService(failures, mailer, cfg.FailureNotifyAddr)

	pub := queuepub.New(cfg.AMQPURL)
	if cfg.AMQPURL != "" {
		go func() {
			if err := queue.StartLifecycleConsumer(cfg.AMQPURL); err != nil {
				log.Printf("lifecycle consumer stopped: %v", err)
			}
		}()
	}

	sched := scheduler.New(secrets, tokens, reminders, mailer, esc,
		&scheduler.TextRenderer{BaseURL: cfg.BaseURL}, pub,
		scheduler.Options{
			LookaheadDays: cfg.LookaheadDays,
			Workers:       cfg.Workers,
			RunTimeout:    cfg.SchedulerTimeout,
		})

	checkins := checkin.NewService(tokens, secrets, pub)

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e)
	router.RegisterCheckIn(e, handler.NewCheckInHandler(checkins),
		config.LoadRateLimitConfig(), config.NewRedisClient())
	router.RegisterCron(e, handler.NewCronHandler(sched, tokens), cfg.CronSecret)
	router.RegisterOps(e, handler.NewOpsHandler(esc), cfg.OpsJWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// buildProvider selects the outbound mail implementation. The mock provider
// keeps local and test environments from sending real mail.
func buildProvider(cfg config.Config) email.Provider {
	switch cfg.EmailProvider {
	case "smtp":
		port, err := strconv.Atoi(cfg.SMTPPort)
		if err != nil {
			log.Fatalf("invalid SMTP_PORT %q", cfg.SMTPPort)
		}
		return email.NewSMTPProvider(cfg.SMTPHost, port, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	case "mock":
		return email.NewMockProvider()
	default:
		log.Fatalf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
		return nil
	}
}
