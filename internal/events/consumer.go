package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

const (
	KAFKA_TOPIC_REQUESTS = "analysis-requests"
	KAFKA_GROUP_ID       = "ytsentiment-workers"

	READ_TIMEOUT    = time.Second
	CONSUME_RETRIES = 5
	RETRY_DELAY     = 2 * time.Second
)

// AnalysisRequested asks a worker to analyze a video.
type AnalysisRequested struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

// MessageSource is the part of *kafka.Consumer the request consumer needs.
type MessageSource interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
}

type RequestHandler func(ctx context.Context, req AnalysisRequested) error

type ConsumerConfig struct {
	Broker  string
	GroupID string
	Topic   string
}

// NewKafkaConsumer subscribes a manually committing consumer to the
// request topic.
func NewKafkaConsumer(cfg ConsumerConfig) (*kafka.Consumer, error) {
	if cfg.Topic == "" {
		cfg.Topic = KAFKA_TOPIC_REQUESTS
	}
	if cfg.GroupID == "" {
		cfg.GroupID = KAFKA_GROUP_ID
	}

	slog.Info("[KafkaClient] Initializing Kafka Consumer...",
		slog.String("broker", cfg.Broker),
		slog.String("group_id", cfg.GroupID),
		slog.String("topic", cfg.Topic))

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Broker,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create consumer: %w", err)
	}

	if err := c.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("[KafkaClient] Failed to subscribe to topic: %w", err)
	}

	slog.Info("[KafkaClient] Kafka Consumer initialized successfully")
	return c, nil
}

// RequestConsumer reads analysis requests one at a time and commits each
// offset once its request has been handled, successfully or not. Requests
// that fail are logged and not redelivered.
type RequestConsumer struct {
	source     MessageSource
	handle     RequestHandler
	retryDelay time.Duration
}

func NewRequestConsumer(source MessageSource, handle RequestHandler) *RequestConsumer {
	return &RequestConsumer{source: source, handle: handle, retryDelay: RETRY_DELAY}
}

// Run consumes until ctx is done or every broker is down.
func (rc *RequestConsumer) Run(ctx context.Context) error {
	slog.Info("[RequestConsumer] Listening for messages...")

	for {
		msg, err := rc.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Warn("[RequestConsumer] Stopping consumer...")
				return nil
			}
			return err
		}

		rc.process(ctx, msg)
		if ctx.Err() != nil {
			// interrupted mid request, leave it for the next worker
			slog.Warn("[RequestConsumer] Stopping consumer...")
			return nil
		}

		if err := rc.commit(ctx, msg); err != nil && ctx.Err() == nil {
			slog.Warn("[RequestConsumer] Failed to commit offset",
				slog.String("error", err.Error()))
		}
	}
}

func (rc *RequestConsumer) process(ctx context.Context, msg *kafka.Message) {
	var req AnalysisRequested
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		slog.Warn("[RequestConsumer] Skipping malformed request",
			slog.String("error", err.Error()),
			slog.String("offset", msg.TopicPartition.Offset.String()))
		return
	}

	start := time.Now()
	if err := rc.handle(ctx, req); err != nil {
		slog.Error("[RequestConsumer] Analysis request failed",
			slog.String("url", req.URL),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("[RequestConsumer] Analysis request handled",
		slog.String("url", req.URL),
		slog.Duration("elapsed", time.Since(start)))
}

// next blocks until a message arrives. Read timeouts are not failures.
func (rc *RequestConsumer) next(ctx context.Context) (*kafka.Message, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := rc.source.ReadMessage(READ_TIMEOUT)
		if err == nil {
			return msg, nil
		}

		var kafkaErr kafka.Error
		if errors.As(err, &kafkaErr) {
			switch kafkaErr.Code() {
			case kafka.ErrTimedOut:
				continue
			case kafka.ErrAllBrokersDown:
				slog.Error("[KafkaIterator] All Kafka brokers are down. Aborting")
				return nil, err
			}
		}

		failures++
		if failures >= CONSUME_RETRIES {
			return nil, fmt.Errorf("[KafkaIterator] Failed to read message after %d retries: %w", failures, err)
		}
		slog.Warn("[KafkaIterator] Failed to read message, retrying...",
			slog.Int("attempt", failures),
			slog.Int("max_retries", CONSUME_RETRIES),
			slog.String("error", err.Error()))
		sleep(ctx, rc.retryDelay)
	}
}

func (rc *RequestConsumer) commit(ctx context.Context, msg *kafka.Message) error {
	var err error
	for i := 0; i < CONSUME_RETRIES; i++ {
		if _, err = rc.source.CommitMessage(msg); err == nil {
			slog.Debug("[KafkaCommitHandler] Successfully committed offset",
				slog.Int("partition", int(msg.TopicPartition.Partition)),
				slog.String("offset", msg.TopicPartition.Offset.String()))
			return nil
		}

		var kafkaErr kafka.Error
		if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrAllBrokersDown {
			return err
		}
		slog.Warn("[KafkaCommitHandler] Failed to commit offset, retrying...",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		if !sleep(ctx, rc.retryDelay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("[KafkaCommitHandler] Failed to commit message after %d retries: %w", CONSUME_RETRIES, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
