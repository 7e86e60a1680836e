package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"

	"achrilik/config"
	"achrilik/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Mailer sends the buyer-facing tracking e-mail.
type Mailer interface {
	SendTrackingEmail(ctx context.Context, n models.TrackingNotification) error
}

// LogMailer writes the e-mail to the log instead of sending it.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) SendTrackingEmail(_ context.Context, n models.TrackingNotification) error {
	m.Log.Info("tracking email",
		"to", n.RecipientEmail,
		"order_id", n.OrderID,
		"tracking_url", n.TrackingURL,
	)
	return nil
}

// StartNotificationConsumer drains the notification queue and the dead letter
// queue until ctx is done or the channel closes.
func StartNotificationConsumer(ctx context.Context, ch *amqp.Channel, cfg *config.Config, mailer Mailer, log *slog.Logger) error {
	msgs, err := ch.Consume(
		cfg.NotificationQueue,
		"marketplace-notifications", // consumer tag
		false,                       // auto-ack
		false,                       // exclusive
		false,                       // no-local
		false,                       // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.NotificationQueue, err)
	}

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"marketplace-dlq", // consumer tag
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.DeadLetterQueue, err)
	}

	go drain(ctx, msgs, func(msg amqp.Delivery) { processNotification(ctx, msg, mailer, log) })
	go drain(ctx, dlqMsgs, func(msg amqp.Delivery) { processDeadLetter(msg, log) })
	return nil
}

func drain(ctx context.Context, msgs <-chan amqp.Delivery, handle func(amqp.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(msg)
		}
	}
}

// processNotification acks delivered mail, retries a failed send once and
// dead-letters anything it cannot parse.
func processNotification(ctx context.Context, msg amqp.Delivery, mailer Mailer, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in notification handler", "panic", r)
			_ = msg.Nack(false, false)
		}
	}()

	var n models.TrackingNotification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		log.Warn("malformed notification, dead-lettering", "err", err)
		_ = msg.Nack(false, false)
		return
	}
	if _, err := mail.ParseAddress(n.RecipientEmail); err != nil || n.TrackingURL == "" {
		log.Warn("unusable notification, dead-lettering", "order_id", n.OrderID, "to", n.RecipientEmail)
		_ = msg.Nack(false, false)
		return
	}

	if err := mailer.SendTrackingEmail(ctx, n); err != nil {
		// One redelivery, then the dead letter queue.
		requeue := !msg.Redelivered
		log.Warn("tracking email failed", "order_id", n.OrderID, "requeue", requeue, "err", err)
		_ = msg.Nack(false, requeue)
		return
	}
	if err := msg.Ack(false); err != nil {
		log.Warn("ack notification", "order_id", n.OrderID, "err", err)
	}
}

func processDeadLetter(msg amqp.Delivery, log *slog.Logger) {
	log.Error("dead letter received", "message_id", msg.MessageId, "body", string(msg.Body))
	if err := msg.Ack(false); err != nil {
		log.Warn("ack dead letter", "err", err)
	}
}
