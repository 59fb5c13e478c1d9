package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Forwarder relays bus events to a RabbitMQ topic exchange, using the event
// type as routing key.
type Forwarder struct {
	ch       amqpChannel
	exchange string
	close    func() error
}

// DialForwarder connects to the broker and declares a durable topic exchange.
func DialForwarder(url string, exchange string) (*Forwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	f := newForwarder(ch, exchange)
	f.close = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return f, nil
}

func newForwarder(ch amqpChannel, exchange string) *Forwarder {
	return &Forwarder{ch: ch, exchange: exchange}
}

func (f *Forwarder) Forward(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = f.ch.PublishWithContext(ctx, f.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    time.Now().UTC(),
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Run forwards events from the bus until ctx is done. Publish failures are
// logged and the event is skipped.
func (f *Forwarder) Run(ctx context.Context, bus Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	slog.Info("event forwarder started", "exchange", f.exchange)
	for {
		select {
		case <-ctx.Done():
			slog.Info("event forwarder stopped")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := f.Forward(ctx, e); err != nil {
				slog.Error("event forward failed", "type", e.Type, "event_id", e.ID, "error", err)
			}
		}
	}
}

func (f *Forwarder) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}
