package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
)

const (
	KAFKA_TOPIC_ANALYSES = "comment-analyses"
	PRODUCE_RETRIES      = 3
	FLUSH_TIMEOUT_MS     = 5000
)

// AnalysisCompleted is published once per stored analysis.
type AnalysisCompleted struct {
	AnalysisID   string                  `json:"analysis_id"`
	VideoID      string                  `json:"video_id"`
	Counts       map[sentiment.Label]int `json:"counts"`
	CommentCount int                     `json:"comment_count"`
	Model        models.ModelInfo        `json:"model"`
	CreatedAt    time.Time               `json:"created_at"`
}

func NewAnalysisCompleted(a *models.Analysis) AnalysisCompleted {
	return AnalysisCompleted{
		AnalysisID:   a.ID,
		VideoID:      a.VideoID,
		Counts:       a.Counts,
		CommentCount: len(a.Predictions),
		Model:        a.Model,
		CreatedAt:    a.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, a *models.Analysis) error
	Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.Analysis) error { return nil }
func (NoopPublisher) Close()                                          {}

type KafkaConfig struct {
	Broker string
	Topic  string
}

type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	slog.Info("[KafkaClient] Initializing Kafka Producer...", slog.String("broker", cfg.Broker))

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Broker,
		"security.protocol":                     "PLAINTEXT",
		"api.version.request":                   "true",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = KAFKA_TOPIC_ANALYSES
	}

	go logDeliveries(p.Events())

	slog.Info("[KafkaClient] Kafka Producer initialized successfully", slog.String("topic", topic))
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

// BuildMessage encodes the event for an analysis, keyed by video id so
// every analysis of a video lands on the same partition.
func BuildMessage(topic string, a *models.Analysis) (*kafka.Message, error) {
	payload, err := json.Marshal(NewAnalysisCompleted(a))
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] failed to marshal event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(a.VideoID),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "event-type", Value: []byte("AnalysisCompleted")}},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, a *models.Analysis) error {
	msg, err := BuildMessage(p.topic, a)
	if err != nil {
		return err
	}

	for i := 0; i < PRODUCE_RETRIES; i++ {
		err = p.producer.Produce(msg, nil)
		if err == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to produce message, retrying...",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		if ctx.Err() != nil {
			break
		}
		// queue full: let librdkafka drain before the next attempt
		p.producer.Flush(100)
	}
	if err != nil {
		return fmt.Errorf("[KafkaClient] failed to produce analysis %s: %w", a.ID, err)
	}

	slog.Info("[KafkaClient] Published analysis event",
		slog.String("topic", p.topic),
		slog.String("analysis_id", a.ID),
		slog.String("video_id", a.VideoID))
	return nil
}

func (p *KafkaPublisher) Close() {
	slog.Info("[KafkaClient] Shutting down Kafka producer...")
	if remaining := p.producer.Flush(FLUSH_TIMEOUT_MS); remaining > 0 {
		slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	p.producer.Close()
	slog.Info("[KafkaClient] Kafka producer shut down")
}

func logDeliveries(events chan kafka.Event) {
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				slog.Error("[KafkaClient] Delivery failed",
					slog.String("key", string(ev.Key)),
					slog.String("error", ev.TopicPartition.Error.Error()))
			}
		case kafka.Error:
			slog.Error("[KafkaClient] Producer error", slog.String("error", ev.Error()))
		}
	}
}
