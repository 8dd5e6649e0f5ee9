package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Mongo     MongoConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	Zilliz    ZillizConfig
	LLM       LLMConfig
	Stages    StagesConfig
	Search    SearchConfig
	Notion    NotionConfig
	Ingestion IngestionConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	Environment    string
	AllowedOrigins []string
}

// StoreConfig selects the document store backend: mongo, sqlite or memory.
type StoreConfig struct {
	Driver string
}

type MongoConfig struct {
	URI               string
	Database          string
	MaxPoolSize       uint64
	ConnectTimeoutSec int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type ZillizConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float32
	MaxTokens           int
	EmbeddingModel      string
	EmbeddingCostPer1K  float64
	EmbeddingTimeoutSec int
}

type StagesConfig struct {
	TimeoutSec int
	Verbose    bool
}

type SearchConfig struct {
	Enabled    bool
	SerpAPIKey string
	MaxResults int
	TimeoutSec int
}

type NotionConfig struct {
	APIKey     string
	BaseURL    string
	Version    string
	TimeoutSec int
}

type IngestionConfig struct {
	ChunkSize        int
	OverlapSentences int
}

type RateLimitConfig struct {
	GenerationPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/content-agent")

	v.SetEnvPrefix("CONTENT_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mongo", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	if c.Stages.TimeoutSec <= 0 {
		return fmt.Errorf("stages.timeoutSec must be positive, got %d", c.Stages.TimeoutSec)
	}
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunkSize must be positive, got %d", c.Ingestion.ChunkSize)
	}
	return nil
}

func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Stages.TimeoutSec) * time.Second
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	// generation requests hold the connection for the whole pipeline run
	v.SetDefault("server.writeTimeout", 900)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowedOrigins", []string{"*"})

	v.SetDefault("store.driver", "mongo")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "DoctorAI")
	v.SetDefault("mongo.maxPoolSize", 50)
	v.SetDefault("mongo.connectTimeoutSec", 10)

	v.SetDefault("sqlite.path", "./data/content.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("zilliz.enabled", true)
	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.apiKey", "")
	v.SetDefault("zilliz.collectionName", "notion_docs")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 4096)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.embeddingCostPer1K", 0.00002)
	v.SetDefault("llm.embeddingTimeoutSec", 60)

	v.SetDefault("stages.timeoutSec", 300)
	v.SetDefault("stages.verbose", true)

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.serpAPIKey", "")
	v.SetDefault("search.maxResults", 5)
	v.SetDefault("search.timeoutSec", 10)

	v.SetDefault("notion.apiKey", "")
	v.SetDefault("notion.baseURL", "https://api.notion.com/v1")
	v.SetDefault("notion.version", "2022-06-28")
	v.SetDefault("notion.timeoutSec", 30)

	v.SetDefault("ingestion.chunkSize", 1000)
	v.SetDefault("ingestion.overlapSentences", 1)

	v.SetDefault("rateLimit.generationPerMinute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
