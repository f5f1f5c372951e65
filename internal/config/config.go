package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	MongoURI    string
	DBName      string
	Environment string
	AppId       string

	MaxUploadBytes int64         // hard ceiling on accepted upload size
	MaxRows        int           // hard ceiling on data rows per file
	BatchSize      int           // rows committed per import batch
	BatchTimeout   time.Duration // per-batch commit deadline
	SampleRows     int           // preview rows handed to the suggester
	SessionTTL     time.Duration // idle sessions older than this are reaped

	SuggestProvider string // none | heuristic | llm | http
	SuggestTimeout  time.Duration
	SuggestURL      string
	SuggestAPIKey   string
	LLMProvider     string // ollama | openai | anthropic
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-catalog"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-catalog"),

		MaxUploadBytes: getEnvInt64("IMPORT_MAX_BYTES", 10<<20),
		MaxRows:        getEnvInt("IMPORT_MAX_ROWS", 5000),
		BatchSize:      getEnvInt("IMPORT_BATCH_SIZE", 100),
		BatchTimeout:   getEnvDuration("IMPORT_BATCH_TIMEOUT", 15*time.Second),
		SampleRows:     getEnvInt("IMPORT_SAMPLE_ROWS", 5),
		SessionTTL:     getEnvDuration("IMPORT_SESSION_TTL", time.Hour),

		SuggestProvider: getEnv("SUGGEST_PROVIDER", "heuristic"),
		SuggestTimeout:  getEnvDuration("SUGGEST_TIMEOUT", 8*time.Second),
		SuggestURL:      getEnv("SUGGEST_URL", ""),
		SuggestAPIKey:   getEnv("SUGGEST_API_KEY", ""),
		LLMProvider:     getEnv("LLM_PROVIDER", "ollama"),
		LLMModel:        getEnv("LLM_MODEL", "llama3"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid value for %s, using default %s", key, fallback)
	}
	return fallback
}
