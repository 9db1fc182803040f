package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PREDICTOR_SERVING  = "serving"
	PREDICTOR_LIGHTGBM = "lightgbm"

	STORE_MEMORY   = "memory"
	STORE_VALKEY   = "valkey"
	STORE_DYNAMODB = "dynamodb"
	STORE_POSTGRES = "postgres"

	STOPWORDS_NLTK    = "nltk"
	STOPWORDS_LIBRARY = "library"
)

type YouTubeSettings struct {
	APIKey   string
	Endpoint string
	QPS      float64
	Limit    int
}

type ModelSettings struct {
	TrackingURI           string
	TrackingToken         string
	Name                  string
	Stage                 string
	PredictorBackend      string
	ServingURL            string
	ClassLabels           []float64
	LightGBMModelFile     string
	VectorizerConventions []string
}

type PreprocessingSettings struct {
	Stopwords     string
	StopwordsLang string
	Workers       int
}

type StoreSettings struct {
	Backend        string
	ValkeyAddress  string
	ValkeyPassword string
	ValkeyTLS      bool
	DynamoDBTable  string
	PostgresDSN    string
	TTL            time.Duration
}

type AWSSettings struct {
	Region   string
	Endpoint string
}

type KafkaSettings struct {
	Broker       string
	Topic        string
	RequestTopic string
	GroupID      string
}

type ServerSettings struct {
	Addr            string
	AnalysisTimeout time.Duration
}

// Settings is everything the binaries read from the environment.
type Settings struct {
	LogLevel        string
	YouTube         YouTubeSettings
	Model           ModelSettings
	Preprocessing   PreprocessingSettings
	Store           StoreSettings
	AWS             AWSSettings
	Kafka           KafkaSettings
	Server          ServerSettings
	BaselineEnabled bool
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("[Config] %s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("[Config] %s must be a number: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("[Config] %s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("[Config] %s must be a duration: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseClassLabels parses a comma separated list such as "-1,0,1".
func ParseClassLabels(raw string) ([]float64, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("[Config] class labels must not be empty")
	}
	labels := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("[Config] invalid class label %q: %w", p, err)
		}
		labels = append(labels, v)
	}
	return labels, nil
}

// Load builds Settings from the process environment.
func Load() (*Settings, error) {
	var err error
	s := &Settings{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		YouTube: YouTubeSettings{
			APIKey:   os.Getenv("YOUTUBE_API_KEY"),
			Endpoint: os.Getenv("YOUTUBE_API_ENDPOINT"),
		},
		Model: ModelSettings{
			TrackingURI:       getEnv("MLFLOW_TRACKING_URI", "http://localhost:5000"),
			TrackingToken:     os.Getenv("MLFLOW_TRACKING_TOKEN"),
			Name:              getEnv("MODEL_NAME", "my_model"),
			Stage:             getEnv("MODEL_STAGE", "Staging"),
			PredictorBackend:  getEnv("PREDICTOR_BACKEND", PREDICTOR_SERVING),
			ServingURL:        getEnv("MODEL_SERVING_URL", "http://localhost:5001"),
			LightGBMModelFile: getEnv("LIGHTGBM_MODEL_FILE", "lgbm_model.txt"),
			VectorizerConventions: splitList(getEnv("VECTORIZER_CONVENTIONS",
				"tfidf_vectorizer.json,vectorizer.json")),
		},
		Preprocessing: PreprocessingSettings{
			Stopwords:     getEnv("STOPWORDS", STOPWORDS_NLTK),
			StopwordsLang: getEnv("STOPWORDS_LANG", "en"),
		},
		Store: StoreSettings{
			Backend:        getEnv("STORE_BACKEND", STORE_MEMORY),
			ValkeyAddress:  getEnv("VALKEY_INIT_ADDRESS", "localhost:6379"),
			ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
			DynamoDBTable:  getEnv("DYNAMODB_TABLE", "CommentAnalyses"),
			PostgresDSN:    getEnv("POSTGRES_DSN", "postgres://localhost:5432/ytsentiment?sslmode=disable"),
		},
		AWS: AWSSettings{
			Region:   getEnv("AWS_REGION", "us-west-2"),
			Endpoint: os.Getenv("AWS_ENDPOINT"),
		},
		Kafka: KafkaSettings{
			Broker:       os.Getenv("KAFKA_BROKER"),
			Topic:        getEnv("KAFKA_TOPIC", "comment-analyses"),
			RequestTopic: getEnv("KAFKA_REQUEST_TOPIC", "analysis-requests"),
			GroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "ytsentiment-workers"),
		},
		Server: ServerSettings{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
	}

	if s.YouTube.QPS, err = getEnvFloat("YOUTUBE_QPS", 5); err != nil {
		return nil, err
	}
	if s.YouTube.Limit, err = getEnvInt("COMMENT_LIMIT", 100); err != nil {
		return nil, err
	}
	if s.YouTube.Limit <= 0 {
		return nil, fmt.Errorf("[Config] COMMENT_LIMIT must be positive, got %d", s.YouTube.Limit)
	}
	if s.Model.ClassLabels, err = ParseClassLabels(getEnv("MODEL_CLASS_LABELS", "-1,0,1")); err != nil {
		return nil, err
	}
	if s.Preprocessing.Workers, err = getEnvInt("NORMALIZE_WORKERS", 8); err != nil {
		return nil, err
	}
	if s.Store.ValkeyTLS, err = getEnvBool("VALKEY_TLS", false); err != nil {
		return nil, err
	}
	if s.Store.TTL, err = getEnvDuration("RESULT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if s.Server.AnalysisTimeout, err = getEnvDuration("ANALYSIS_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if s.BaselineEnabled, err = getEnvBool("BASELINE_ENABLED", true); err != nil {
		return nil, err
	}

	switch s.Model.PredictorBackend {
	case PREDICTOR_SERVING, PREDICTOR_LIGHTGBM:
	default:
		return nil, fmt.Errorf("[Config] unknown PREDICTOR_BACKEND %q", s.Model.PredictorBackend)
	}
	switch s.Store.Backend {
	case STORE_MEMORY, STORE_VALKEY, STORE_DYNAMODB, STORE_POSTGRES:
	default:
		return nil, fmt.Errorf("[Config] unknown STORE_BACKEND %q", s.Store.Backend)
	}
	switch s.Preprocessing.Stopwords {
	case STOPWORDS_NLTK, STOPWORDS_LIBRARY:
	default:
		return nil, fmt.Errorf("[Config] unknown STOPWORDS %q", s.Preprocessing.Stopwords)
	}

	return s, nil
}
