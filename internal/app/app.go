package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spacesedan/ytsentiment/config"
	"github.com/spacesedan/ytsentiment/internal/clients"
	"github.com/spacesedan/ytsentiment/internal/comments"
	"github.com/spacesedan/ytsentiment/internal/events"
	"github.com/spacesedan/ytsentiment/internal/pipeline"
	"github.com/spacesedan/ytsentiment/internal/preprocessing"
	"github.com/spacesedan/ytsentiment/internal/registry"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
	"github.com/spacesedan/ytsentiment/internal/store"
)

// NewNormalizer builds the text normalizer both binaries share.
func NewNormalizer(s *config.Settings) (*preprocessing.Normalizer, error) {
	lemmatizer, err := preprocessing.NewGolemLemmatizer()
	if err != nil {
		return nil, err
	}

	var stop preprocessing.StopwordSet = preprocessing.NLTKEnglish()
	if s.Preprocessing.Stopwords == config.STOPWORDS_LIBRARY {
		stop = preprocessing.LibrarySet{Lang: s.Preprocessing.StopwordsLang}
	}
	return preprocessing.NewNormalizer(stop, lemmatizer, s.Preprocessing.Workers), nil
}

// NewAnalyzer wires the YouTube client, the normalizer and the registered
// model into a pipeline.Analyzer.
func NewAnalyzer(ctx context.Context, s *config.Settings) (*pipeline.Analyzer, error) {
	yt, err := clients.NewYouTubeClient(ctx, clients.YouTubeConfig{
		APIKey:   s.YouTube.APIKey,
		Endpoint: s.YouTube.Endpoint,
		QPS:      s.YouTube.QPS,
	})
	if err != nil {
		return nil, err
	}
	if !yt.Configured() {
		slog.Warn("[App] YOUTUBE_API_KEY is not set, every analysis will return no comments")
	}

	normalizer, err := NewNormalizer(s)
	if err != nil {
		return nil, err
	}

	inference, err := LoadInference(ctx, s)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.Config{Limit: s.YouTube.Limit}
	if s.BaselineEnabled {
		cfg.Baseline = sentiment.NewBaseline()
	}
	return pipeline.NewAnalyzer(comments.NewFetcher(yt), normalizer, inference, cfg), nil
}

// LoadInference resolves the configured model from the registry.
func LoadInference(ctx context.Context, s *config.Settings) (*pipeline.InferenceContext, error) {
	reg, err := registry.NewClient(ctx, registry.Config{
		TrackingURI: s.Model.TrackingURI,
		Token:       s.Model.TrackingToken,
	})
	if err != nil {
		return nil, err
	}

	awsCfg, err := clients.GetAWSConfig(ctx, s.AWS.Region, s.AWS.Endpoint)
	if err != nil {
		return nil, err
	}

	return pipeline.LoadInferenceContext(ctx, pipeline.LoadOptions{
		Registry:              reg,
		Artifacts:             &registry.Artifacts{S3: clients.GetS3Client(awsCfg), Registry: reg},
		ModelName:             s.Model.Name,
		Stage:                 s.Model.Stage,
		Backend:               s.Model.PredictorBackend,
		ServingURL:            s.Model.ServingURL,
		ClassLabels:           s.Model.ClassLabels,
		LightGBMModelFile:     s.Model.LightGBMModelFile,
		VectorizerConventions: s.Model.VectorizerConventions,
	})
}

// NewStore returns the configured result store and a func releasing it.
func NewStore(ctx context.Context, s *config.Settings) (store.Store, func(), error) {
	switch s.Store.Backend {
	case config.STORE_VALKEY:
		client, err := clients.NewValkey(ctx, clients.ValkeyConfig{
			Address:  s.Store.ValkeyAddress,
			Password: s.Store.ValkeyPassword,
			TLS:      s.Store.ValkeyTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewValkeyStore(client, s.Store.TTL), client.Close, nil

	case config.STORE_DYNAMODB:
		awsCfg, err := clients.GetAWSConfig(ctx, s.AWS.Region, s.AWS.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		db := clients.GetDynamoDBClient(awsCfg)
		return store.NewDynamoStore(db, s.Store.DynamoDBTable, s.Store.TTL), func() {}, nil

	case config.STORE_POSTGRES:
		pool, err := store.NewPostgresPool(ctx, s.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(pool, s.Store.TTL)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil

	case config.STORE_MEMORY, "":
		return store.NewMemoryStore(s.Store.TTL), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("[App] unknown store backend %q", s.Store.Backend)
	}
}

// NewPublisher returns a Kafka publisher when a broker is set, otherwise a
// no-op.
func NewPublisher(s *config.Settings) (events.Publisher, error) {
	if s.Kafka.Broker == "" {
		slog.Info("[App] KAFKA_BROKER is not set, analysis events are disabled")
		return events.NoopPublisher{}, nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Broker: s.Kafka.Broker,
		Topic:  s.Kafka.Topic,
	})
}
