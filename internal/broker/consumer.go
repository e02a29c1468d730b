package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Read retry delays; the delay doubles after each consecutive failure.
const (
	minReadBackoff = 200 * time.Millisecond
	maxReadBackoff = 10 * time.Second
)

// MessageHandler processes one message. A returned error is logged and the
// message is not redelivered.
type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads one topic as a member of a consumer group.
type Consumer struct {
	reader     messageReader
	topic      string
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewConsumer joins groupID on topic.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, topic, logger)
}

func newConsumer(reader messageReader, topic string, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		logger:     logger,
		minBackoff: minReadBackoff,
		maxBackoff: maxReadBackoff,
	}
}

// Consume feeds messages to handler until ctx is canceled or the reader is
// closed. Read failures are retried with a growing delay.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	wait := c.minBackoff
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("read message", "topic", c.topic, "retry_in", wait.String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait = min(wait*2, c.maxBackoff)
			continue
		}
		wait = c.minBackoff

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("handle message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
