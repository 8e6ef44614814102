package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// MercadoLibre API credentials
	MeliBaseURL      string
	MeliAppID        string
	MeliClientSecret string
	MeliRefreshToken string
	MeliMaxRetries   int
	MeliTimeout      time.Duration

	// Conversation flow tuning
	ResendLimit      int
	MessagePause     time.Duration
	StateTTL         time.Duration
	OrderScanLimit   int
	BotEnabledAtBoot bool

	// Inventory backend: "postgres", "sheets" or "memory"
	InventoryBackend string
	SheetsScriptURL  string

	// Stores
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Webhook queue
	UseMemoryQueue  bool
	WorkerCount     int
	WebhookQueueURL string

	// AWS (SQS queue in production)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// LLM providers
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	// Operator notifications
	TelegramToken     string
	TelegramChatID    string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridToEmail   string

	// Dashboard auth
	AdminJWTSecret     string
	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		MeliBaseURL:      getEnv("MELI_BASE_URL", "https://api.mercadolibre.com"),
		MeliAppID:        getEnv("MELI_APP_ID", ""),
		MeliClientSecret: getEnv("MELI_CLIENT_SECRET", ""),
		MeliRefreshToken: getEnv("MELI_REFRESH_TOKEN", ""),
		MeliMaxRetries:   getEnvAsInt("MELI_MAX_RETRIES", 3),
		MeliTimeout:      getEnvAsDuration("MELI_TIMEOUT", 15*time.Second),

		ResendLimit:      getEnvAsInt("RESEND_LIMIT", 2),
		MessagePause:     getEnvAsDuration("MESSAGE_PAUSE", 500*time.Millisecond),
		StateTTL:         getEnvAsDuration("STATE_TTL", 24*time.Hour),
		OrderScanLimit:   getEnvAsInt("ORDER_SCAN_LIMIT", 20),
		BotEnabledAtBoot: getEnvAsBool("BOT_ENABLED", true),

		InventoryBackend: getEnv("INVENTORY_BACKEND", "postgres"),
		SheetsScriptURL:  getEnv("SHEETS_SCRIPT_URL", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		WebhookQueueURL: getEnv("WEBHOOK_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		TelegramToken:     getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridToEmail:   getEnv("SENDGRID_TO_EMAIL", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
