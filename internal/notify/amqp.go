package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// RoutingKey is the topic alerts are published under
const RoutingKey = "billing.charge.alert"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier publishes alerts to a RabbitMQ topic exchange
type AMQPNotifier struct {
	conn     *amqp091.Connection
	channel  publisher
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPNotifier dials the broker and declares the alert exchange
func NewAMQPNotifier(amqpURL, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{conn: conn, channel: channel, exchange: exchange, logger: logger, now: time.Now}, nil
}

// Notify publishes one alert
func (n *AMQPNotifier) Notify(ctx context.Context, subject, body, recipient string) {
	jsonBody, err := json.Marshal(Message{Subject: subject, Body: body, Recipient: recipient})
	if err != nil {
		n.logger.Error("failed to marshal notification", "subject", subject, "error", err)
		return
	}

	err = n.channel.PublishWithContext(ctx,
		n.exchange, // exchange
		RoutingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    n.now(),
			Body:         jsonBody,
		})
	if err != nil {
		n.logger.Error("failed to publish notification", "subject", subject, "error", err)
		return
	}

	n.logger.Debug("published notification", "exchange", n.exchange, "subject", subject)
}

// Close gracefully closes the channel and connection.
func (n *AMQPNotifier) Close() {
	if ch, ok := n.channel.(*amqp091.Channel); ok && ch != nil {
		ch.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
