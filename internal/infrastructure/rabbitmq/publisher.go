package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/streadway/amqp"
)

// Publisher sends relayed events to a durable topic exchange. Routing keys look like
// pos.inventory.StockMoved so consumers can bind per aggregate or per event.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish is safe for concurrent use; amqp channels are not.
func (p *Publisher) Publish(ctx context.Context, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, routingKey(key, event), false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

func routingKey(key string, event any) string {
	if e, ok := event.(store.Event); ok {
		return "pos." + strings.ToLower(e.AggregateType) + "." + e.EventType
	}
	return "pos." + key
}

func buildMessage(event any) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if e, ok := event.(store.Event); ok {
		msg.MessageId = e.ID
		msg.Timestamp = e.Timestamp
		msg.Headers = amqp.Table{
			"aggregate_id":   e.AggregateID,
			"aggregate_type": e.AggregateType,
			"event_type":     e.EventType,
			"version":        strconv.Itoa(e.Version),
		}
	}
	return msg, nil
}
