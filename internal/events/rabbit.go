package events

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkaminski/adspulse/internal/logger"
)

// RabbitPublisher publishes job events to a durable topic exchange.
type RabbitPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        *logger.Logger
}

// NewRabbitPublisher dials the broker and declares the exchange.
// Parameters:
//   - url: AMQP connection URL.
//   - exchange: topic exchange name, declared durable.
//   - routingKey: routing key applied to every event.
// Returns:
//   - *RabbitPublisher: connected publisher.
//   - error: dial, channel or declare failure.
func NewRabbitPublisher(url, exchange, routingKey string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		log:        logger.GetDefault().WithField(logger.FieldComponent, "events"),
	}, nil
}

// JobFinished publishes one terminal-state event. Failures are logged and
// swallowed.
func (p *RabbitPublisher) JobFinished(ctx context.Context, event JobEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).WithField(logger.FieldJobID, event.JobID).Warn("Failed to encode job event")
		return
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		p.log.WithError(err).WithField(logger.FieldJobID, event.JobID).Warn("Failed to publish job event")
	}
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
