package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	BlueskyHandle      string `envconfig:"BLUESKY_HANDLE"`
	BlueskyAppPassword string `envconfig:"BLUESKY_APP_PASSWORD"`
	BlueskyService     string `envconfig:"BLUESKY_SERVICE" default:"https://bsky.social"`
	JetstreamURL       string `envconfig:"JETSTREAM_URL" default:"wss://jetstream2.us-east.bsky.network/subscribe"`

	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL"`
	ChatModel      string  `envconfig:"CHAT_MODEL"`
	Temperature    float32 `envconfig:"TEMPERATURE" default:"0.4"`
	MaxTokens      int     `envconfig:"MAX_TOKENS" default:"1536"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"400"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"40"`
	MaxResults   int `envconfig:"MAX_RESULTS" default:"12"`
	RecentDays   int `envconfig:"RECENT_DAYS" default:"14"`

	// MinPassages is the quality threshold below which a fresh-search answer
	// falls back to live streaming.
	MinPassages int `envconfig:"MIN_PASSAGES" default:"3"`

	StreamMaxPosts int    `envconfig:"STREAM_MAX_POSTS" default:"200"`
	StreamMinutes  int    `envconfig:"STREAM_MINUTES" default:"2"`
	StreamKeywords string `envconfig:"STREAM_KEYWORDS"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"bluesearch-sessions"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("BLUESEARCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasBluesky() bool {
	return c.BlueskyHandle != "" && c.BlueskyAppPassword != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// StreamDuration returns the streaming session bound as a duration.
func (c *Config) StreamDuration() time.Duration {
	return time.Duration(c.StreamMinutes) * time.Minute
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
