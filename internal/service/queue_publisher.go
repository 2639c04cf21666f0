// Package queue_publisher publishes lifecycle audit events to RabbitMQ.
// The audit trail is best-effort: errors are logged and returned so
// callers can carry on without interrupting the check-in or scheduler flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/afterword/afterword/internal/queue"
)

// Publisher holds the broker address.  The URL is injected from
// configuration at startup; business code never reads the environment.
// A zero URL disables publishing entirely.
type Publisher struct {
	URL string
}

func New(url string) *Publisher { return &Publisher{URL: url} }

// PublishLifecycle publishes one event to the durable secret.lifecycle
// queue.  Messages are marked persistent so they survive broker restarts.
// The function never panics; any error is logged and returned.
func (p *Publisher) PublishLifecycle(ctx context.Context, event q.LifecycleEvent) error {
	if p == nil || p.URL == "" {
		return nil
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent).  Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(
		"secret.lifecycle", // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                 // default exchange
		"secret.lifecycle", // routing key = queue name
		false,              // mandatory
		false,              // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// CheckedIn satisfies the check-in service's Auditor interface.
func (p *Publisher) CheckedIn(ctx context.Context, secretID string, atMs int64) {
	_ = p.PublishLifecycle(ctx, q.LifecycleEvent{
		Kind:       q.KindCheckedIn,
		SecretID:   secretID,
		OccurredAt: time.UnixMilli(atMs).UTC().Format(time.RFC3339),
	})
}
