package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/roles"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Outcomes recorded for every consumed message.
const (
	outcomeStored    = "stored"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Consumer stores every telemetry message of a topic and commits its
// offset once the message was handled.
type Consumer struct {
	reader   MessageReader
	ingester roles.TelemetryIngester
	cfg      Config
	logger   *zap.Logger
}

// NewConsumer creates a consumer over reader.
func NewConsumer(reader MessageReader, ingester roles.TelemetryIngester, cfg Config, logger *zap.Logger) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.StoreAttempts <= 0 {
		cfg.StoreAttempts = 1
	}
	return &Consumer{reader: reader, ingester: ingester, cfg: cfg, logger: logger}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started",
		zap.Strings("brokers", c.cfg.Brokers),
		zap.String("topic", c.cfg.Topic),
		zap.String("group_id", c.cfg.GroupID),
	)
	defer c.logger.Info("kafka consumer stopped")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return nil
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafkago.ErrGroupClosed):
				return nil
			}
			c.logger.Error("kafka fetch failed", zap.Error(err))
			if !sleep(ctx, c.cfg.RetryBackoff) {
				return nil
			}
			continue
		}

		outcome := c.handle(ctx, msg)
		messagesTotal.WithLabelValues(outcome).Inc()
		if ctx.Err() != nil && outcome == outcomeDropped {
			// Shutting down mid-retry; leave the offset for the next owner.
			return nil
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.logger.Error("kafka commit failed",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
		commitCancel()
	}
}

// handle decodes and stores one message, retrying storage failures.
func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) string {
	fields := []zap.Field{
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	doc, err := c.ingester.Decode(msg.Value)
	if err != nil {
		c.logger.Warn("kafka transmission rejected", append(fields, zap.Error(err))...)
		return outcomeInvalid
	}

	for attempt := 1; ; attempt++ {
		stored, err := c.ingester.Ingest(ctx, roles.TransportKafka, doc)
		switch {
		case err == nil:
			c.logger.Debug("kafka transmission stored", append(fields,
				zap.String("id", stored.ID),
				zap.String("device_id", stored.DeviceID),
				zap.String("site_id", stored.SiteID),
			)...)
			return outcomeStored
		case errors.Is(err, telemetry.ErrDuplicateDocument):
			return outcomeDuplicate
		}

		c.logger.Warn("kafka transmission not stored", append(fields,
			zap.Int("attempt", attempt),
			zap.Error(err),
		)...)
		if attempt >= c.cfg.StoreAttempts || !sleep(ctx, c.cfg.RetryBackoff) {
			return outcomeDropped
		}
	}
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
