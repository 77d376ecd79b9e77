package kafka

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeadLetterSuffix names the topic that receives messages the handler keeps rejecting.
const DeadLetterSuffix = ".dead-letter"

const (
	defaultHandleAttempts = 5
	defaultRetryBackoff   = 200 * time.Millisecond
	maxRetryBackoff       = 10 * time.Second
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. An offset is committed only once the
// handler accepted the message or, after the retries ran out, the message was copied to the
// dead-letter topic. Nothing is skipped silently.
type Consumer struct {
	reader     messageReader
	deadLetter messageWriter
	attempts   int
	backoff    time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	deadLetter := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic + DeadLetterSuffix,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Consumer{
		reader:     reader,
		deadLetter: deadLetter,
		attempts:   defaultHandleAttempts,
		backoff:    defaultRetryBackoff,
	}
}

// Consume blocks until ctx is cancelled and returns ctx's error.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Consumer] Error reading message: %v", err)
			continue
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("[Consumer] Error committing offset %d: %v", msg.Offset, err)
		}
	}
}

// handle returns an error only when ctx ends before the message was settled.
func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = handler(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		log.Printf("[Consumer] Attempt %d/%d failed at offset %d: %v", attempt, c.attempts, msg.Offset, err)
		if attempt < c.attempts {
			if waitErr := c.wait(ctx, attempt); waitErr != nil {
				return waitErr
			}
		}
	}
	return c.sendToDeadLetter(ctx, msg, err)
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		kafka.Header{Key: "x-source-topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "x-source-partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "x-source-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
	)
	dead := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers, Time: time.Now()}

	for attempt := 1; ; attempt++ {
		err := c.deadLetter.WriteMessages(ctx, dead)
		if err == nil {
			log.Printf("[Consumer] Moved offset %d to dead-letter topic: %v", msg.Offset, cause)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Consumer] Error writing offset %d to dead-letter topic: %v", msg.Offset, err)
		if waitErr := c.wait(ctx, attempt); waitErr != nil {
			return waitErr
		}
	}
}

func (c *Consumer) wait(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(attempt)
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Consumer) Close() error {
	return errors.Join(c.reader.Close(), c.deadLetter.Close())
}
