package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultJWTExpiresIn      = "24h"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "omnidesk"
	DefaultPGSSLMode         = "disable"
	DefaultRedisAddr         = "127.0.0.1:6379"
	DefaultQdrantHost        = "127.0.0.1"
	DefaultQdrantPort        = 6334
	DefaultQdrantCollection  = "knowledge"
	DefaultKnowledgeBackend  = "pgvector"
	DefaultKnowledgeTable    = "document_chunks"
	DefaultChromemDir        = "data/knowledge"
	DefaultUploadDir         = "data/upload"
	DefaultTopK              = 10
	DefaultLLMProvider       = "gpt"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultGeminiModel       = "gemini-2.0-flash-001"
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultBotLabel          = "Bot"
	DefaultPauseDuration     = time.Hour
	DefaultSessionTTL        = 300 * time.Second
	DefaultReplyTTL          = 300 * time.Second
	DefaultFieldTTL          = 24 * time.Hour
	DefaultGraphBaseURL      = "https://graph.facebook.com/v23.0"
	DefaultZaloOpenAPIURL    = "https://openapi.zalo.me"
	DefaultWebOriginURL      = "http://localhost:3000"
	DefaultProfileTopic      = "customer-profile-updated"
	DefaultSheetSyncTopic    = "customer-sheet-sync"
	DefaultFieldRefreshSpec  = "@every 10m"
	DefaultDashboardLogSpec  = "@hourly"
	DefaultRateLimitRequests = 120
	DefaultRateLimitWindow   = time.Minute
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	LLM       LLMConfig       `toml:"llm"`
	Handoff   HandoffConfig   `toml:"handoff"`
	Cache     CacheConfig     `toml:"cache"`
	Channels  ChannelsConfig  `toml:"channels"`
	Web       WebConfig       `toml:"web"`
	Uploads   UploadsConfig   `toml:"uploads"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Jobs      JobsConfig      `toml:"jobs"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

// RedisConfig leaves Addr empty to run with the in-process cache.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// KafkaConfig leaves Brokers empty to disable event publishing.
type KafkaConfig struct {
	Brokers        []string `toml:"brokers"`
	ClientID       string   `toml:"client_id"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	ProfileTopic   string   `toml:"profile_topic"`
	SheetSyncTopic string   `toml:"sheet_sync_topic"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type QdrantConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	APIKey         string `toml:"api_key"`
	UseTLS         bool   `toml:"use_tls"`
	Collection     string `toml:"collection"`
	TextField      string `toml:"text_field"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// KnowledgeConfig selects the vector search backend used by the RAG pipeline.
type KnowledgeConfig struct {
	Backend           string `toml:"backend" validate:"oneof=pgvector qdrant chromem"`
	Table             string `toml:"table"`
	TopK              int    `toml:"top_k" validate:"gte=0"`
	ChromemDir        string `toml:"chromem_dir"`
	ChromemCollection string `toml:"chromem_collection"`
}

type LLMConfig struct {
	Provider        string `toml:"provider" validate:"oneof=gpt openai gemini google"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	EmbeddingAPIKey string `toml:"embedding_api_key"`
	EmbeddingURL    string `toml:"embedding_base_url"`
	EmbeddingModel  string `toml:"embedding_model"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type HandoffConfig struct {
	PauseMinutes int    `toml:"pause_minutes"`
	BotLabel     string `toml:"bot_label"`
}

func (c HandoffConfig) PauseDuration() time.Duration {
	if c.PauseMinutes <= 0 {
		return DefaultPauseDuration
	}
	return time.Duration(c.PauseMinutes) * time.Minute
}

type CacheConfig struct {
	SessionTTLSeconds int `toml:"session_ttl_seconds"`
	ReplyTTLSeconds   int `toml:"reply_ttl_seconds"`
	FieldTTLSeconds   int `toml:"field_ttl_seconds"`
}

func (c CacheConfig) SessionTTL() time.Duration {
	return secondsOr(c.SessionTTLSeconds, DefaultSessionTTL)
}

func (c CacheConfig) ReplyTTL() time.Duration {
	return secondsOr(c.ReplyTTLSeconds, DefaultReplyTTL)
}

func (c CacheConfig) FieldTTL() time.Duration {
	return secondsOr(c.FieldTTLSeconds, DefaultFieldTTL)
}

type ChannelsConfig struct {
	Facebook FacebookConfig `toml:"facebook"`
	Telegram TelegramConfig `toml:"telegram"`
	Zalo     ZaloConfig     `toml:"zalo"`
}

type FacebookConfig struct {
	GraphBaseURL string               `toml:"graph_base_url"`
	VerifyToken  string               `toml:"verify_token"`
	AppID        string               `toml:"app_id"`
	AppSecret    string               `toml:"app_secret"`
	RedirectURL  string               `toml:"redirect_url"`
	Pages        []FacebookPageConfig `toml:"pages" validate:"dive"`
}

type FacebookPageConfig struct {
	PageID      string `toml:"page_id" validate:"required"`
	AccessToken string `toml:"access_token" validate:"required"`
}

// PageTokens indexes page access tokens by page id.
func (c FacebookConfig) PageTokens() map[string]string {
	tokens := make(map[string]string, len(c.Pages))
	for _, p := range c.Pages {
		id := strings.TrimSpace(p.PageID)
		if id == "" {
			continue
		}
		tokens[id] = strings.TrimSpace(p.AccessToken)
	}
	return tokens
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

type ZaloConfig struct {
	BaseURL     string `toml:"base_url"`
	AccessToken string `toml:"access_token"`
}

type WebConfig struct {
	DefaultOriginURL string `toml:"default_origin_url"`
}

// UploadsConfig sets where inline attachments are written. BaseURL prefixes
// the stored references; empty keeps them relative.
type UploadsConfig struct {
	Dir     string `toml:"dir"`
	BaseURL string `toml:"base_url"`
}

type RateLimitConfig struct {
	Enabled       bool `toml:"enabled"`
	Requests      int  `toml:"requests"`
	WindowSeconds int  `toml:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return secondsOr(c.WindowSeconds, DefaultRateLimitWindow)
}

// JobsConfig holds cron specs for periodic maintenance jobs.
type JobsConfig struct {
	FieldRefresh string `toml:"field_refresh"`
	DashboardLog string `toml:"dashboard_log"`
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr:     DefaultRedisAddr,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			ClientID:       "omnidesk",
			ProfileTopic:   DefaultProfileTopic,
			SheetSyncTopic: DefaultSheetSyncTopic,
		},
		Qdrant: QdrantConfig{
			Host:       DefaultQdrantHost,
			Port:       DefaultQdrantPort,
			Collection: DefaultQdrantCollection,
			TextField:  "text",
		},
		Knowledge: KnowledgeConfig{
			Backend:           DefaultKnowledgeBackend,
			Table:             DefaultKnowledgeTable,
			TopK:              DefaultTopK,
			ChromemDir:        DefaultChromemDir,
			ChromemCollection: DefaultQdrantCollection,
		},
		LLM: LLMConfig{
			Provider:       DefaultLLMProvider,
			EmbeddingModel: DefaultEmbeddingModel,
			TimeoutSeconds: 60,
		},
		Handoff: HandoffConfig{
			PauseMinutes: int(DefaultPauseDuration / time.Minute),
			BotLabel:     DefaultBotLabel,
		},
		Channels: ChannelsConfig{
			Facebook: FacebookConfig{GraphBaseURL: DefaultGraphBaseURL},
			Zalo:     ZaloConfig{BaseURL: DefaultZaloOpenAPIURL},
		},
		Web: WebConfig{
			DefaultOriginURL: DefaultWebOriginURL,
		},
		Uploads: UploadsConfig{
			Dir: DefaultUploadDir,
		},
		RateLimit: RateLimitConfig{
			Requests:      DefaultRateLimitRequests,
			WindowSeconds: int(DefaultRateLimitWindow / time.Second),
		},
		Jobs: JobsConfig{
			FieldRefresh: DefaultFieldRefreshSpec,
			DashboardLog: DefaultDashboardLogSpec,
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct tags on the whole config.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
