package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Warehouse WarehouseConfig
	Ai        AIConfig
	Realtime  RealtimeConfig
	Query     QueryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	OtelEnabled        bool
	OtelEndpoint       string
}

func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type DatabaseConfig struct {
	Connection string
}

type WarehouseConfig struct {
	Driver string // "pgx" or "sqlite"
	DSN    string
	// Schema is the default schema for unqualified table names (pgx only).
	Schema         string
	ReadOnlyTx     bool
	SchemaCacheTTL time.Duration
}

type AIConfig struct {
	LLMProvider string // "ollama" or "openai"
	LLMModel    string
	LLMBaseURL  string
	LLMAPIKey   string
}

type RealtimeConfig struct {
	MaxConsecutiveDrops int
	SendBuffer          int
	IdleTimeout         time.Duration
	TypingTimeout       time.Duration
	TypingSweepInterval time.Duration
	IntentsPerSecond    float64
	IntentBurst         int
}

type QueryConfig struct {
	RowLimit          int
	ExecTimeout       time.Duration
	GenerationTimeout time.Duration
	TotalTimeout      time.Duration
	MaxSchemaTables   int
	PerUserPerMinute  float64
	AuditTopic        string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/realtime.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Warehouse: WarehouseConfig{
			Driver:         getEnv("WAREHOUSE_DRIVER", "pgx"),
			DSN:            getEnv("WAREHOUSE_DSN", ""),
			Schema:         getEnv("WAREHOUSE_SCHEMA", ""),
			ReadOnlyTx:     getEnvAsBool("WAREHOUSE_READ_ONLY_TX", true),
			SchemaCacheTTL: getEnvAsDuration("WAREHOUSE_SCHEMA_CACHE_TTL", 10*time.Minute),
		},
		Ai: AIConfig{
			LLMProvider: getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:    getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
			LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		},
		Realtime: RealtimeConfig{
			MaxConsecutiveDrops: getEnvAsInt("WS_MAX_CONSECUTIVE_DROPS", 32),
			SendBuffer:          getEnvAsInt("WS_SEND_BUFFER", 256),
			IdleTimeout:         getEnvAsDuration("WS_IDLE_TIMEOUT", 60*time.Second),
			TypingTimeout:       getEnvAsDuration("TYPING_TIMEOUT", 5*time.Second),
			TypingSweepInterval: getEnvAsDuration("TYPING_SWEEP_INTERVAL", time.Second),
			IntentsPerSecond:    getEnvAsFloat("WS_INTENTS_PER_SECOND", 20),
			IntentBurst:         getEnvAsInt("WS_INTENT_BURST", 40),
		},
		Query: QueryConfig{
			RowLimit:          getEnvAsInt("QUERY_ROW_LIMIT", 1000),
			ExecTimeout:       getEnvAsDuration("QUERY_EXEC_TIMEOUT", 30*time.Second),
			GenerationTimeout: getEnvAsDuration("QUERY_GENERATION_TIMEOUT", 20*time.Second),
			TotalTimeout:      getEnvAsDuration("QUERY_TOTAL_TIMEOUT", 45*time.Second),
			MaxSchemaTables:   getEnvAsInt("QUERY_MAX_SCHEMA_TABLES", 10),
			PerUserPerMinute:  getEnvAsFloat("QUERY_PER_USER_PER_MINUTE", 10),
			AuditTopic:        getEnv("QUERY_AUDIT_TOPIC", "query_audit"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
