// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string // empty disables the gRPC health server
	FrontendURL string
	LogFormat   string
	LogLevel    string

	Store      StoreConfig
	LLM        LLMConfig
	Knowledge  KnowledgeConfig
	Leads      LeadsConfig
	RateLimit  RateLimitConfig
	Brand      BrandConfig
	RedisURL   string
	AdminToken string // empty leaves admin routes open
	Taxonomy   string
	UploadMax  int64
	Transcript ConversationLogConfig
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver    string
	DBPath    string
	MongoURI  string
	MongoDB   string
	Retention time.Duration // 0 keeps sessions forever
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// KnowledgeConfig configures ingestion and retrieval.
type KnowledgeConfig struct {
	ChunkSize     int
	TopK          int
	SiteURL       string
	CrawlMaxPages int
	CrawlRate     float64
}

// LeadsConfig configures the spreadsheet lead sink.
type LeadsConfig struct {
	Enabled      bool
	Workbook     string
	SyncInterval time.Duration
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// BrandConfig is the company the assistant speaks for.
type BrandConfig struct {
	Company      string
	ContactEmail string
}

// ConversationLogConfig controls NDJSON conversation transcripts.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "json")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Store: StoreConfig{
			Driver:    strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
			DBPath:    getEnv("DB_PATH", "./data/leadbot.db"),
			MongoURI:  getEnv("MONGO_URI", ""),
			MongoDB:   getEnv("MONGO_DB", "leadbot"),
			Retention: getEnvDuration("SESSION_RETENTION", 0),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", ""),
			Timeout: getEnvDuration("GENERATION_TIMEOUT", 30*time.Second),
		},
		Knowledge: KnowledgeConfig{
			ChunkSize:     getEnvInt("KB_CHUNK_SIZE", 500),
			TopK:          getEnvInt("KB_TOP_K", 3),
			SiteURL:       getEnv("SITE_URL", ""),
			CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 20),
			CrawlRate:     getEnvFloat("CRAWL_RATE", 2),
		},
		Leads: LeadsConfig{
			Enabled:      getEnvBool("LEADS_ENABLED", true),
			Workbook:     getEnv("LEADS_WORKBOOK", "./data/leads.xlsx"),
			SyncInterval: getEnvDuration("LEADS_SYNC_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Brand: BrandConfig{
			Company:      getEnv("COMPANY_NAME", "Zentiam"),
			ContactEmail: getEnv("CONTACT_EMAIL", "hello@zentiam.com"),
		},
		RedisURL:   getEnv("REDIS_URL", ""),
		AdminToken: getEnv("ADMIN_TOKEN", ""),
		Taxonomy:   getEnv("TAXONOMY_PATH", ""),
		UploadMax:  int64(getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		Transcript: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
		if c.Store.MongoDB == "" {
			return fmt.Errorf("MONGO_DB cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Store.Driver)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("SESSION_RETENTION must be >= 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0")
	}
	if c.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("KB_CHUNK_SIZE must be > 0")
	}
	if c.Knowledge.TopK <= 0 {
		return fmt.Errorf("KB_TOP_K must be > 0")
	}
	if c.Knowledge.CrawlMaxPages <= 0 {
		return fmt.Errorf("CRAWL_MAX_PAGES must be > 0")
	}
	if c.Leads.Enabled && c.Leads.Workbook == "" {
		return fmt.Errorf("LEADS_WORKBOOK cannot be empty when leads are enabled")
	}
	if c.Leads.SyncInterval <= 0 {
		return fmt.Errorf("LEADS_SYNC_INTERVAL must be > 0")
	}
	if c.RateLimit.Requests < 0 || (c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0 when RATE_LIMIT_REQUESTS is set")
	}
	if c.UploadMax <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.Transcript.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.Transcript.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the chat widget.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "24h") or plain
// seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
