package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// LangSmith API
	APIKey      string
	SessionIDs  []string
	FilterName  string
	PageLimit   int
	HoursWindow float64

	// File output
	OutputDir    string
	FileTimezone string

	// S3
	S3Bucket  string
	AWSRegion string

	// MongoDB
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Postgres
	DatabaseURL string

	// NATS events (disabled when empty)
	NatsURL   string
	NatsToken string

	// Daemon mode
	Port int

	LogLevel string
}

func Load() Config {
	return Config{
		APIKey:          envStr("LANGSMITH_API_KEY", ""),
		SessionIDs:      envList("LS_SESSION_IDS", "8aa48f29-844f-40cf-8062-301e9fc4f500"),
		FilterName:      envStr("LS_FILTER_NAME", "tutor"),
		PageLimit:       envInt("LS_LIMIT", 100),
		HoursWindow:     envFloat("LS_HOURS_WINDOW", 24),
		OutputDir:       envStr("LS_OUTPUT_DIR", "langsmith-exports"),
		FileTimezone:    envStr("LS_FILE_TIMEZONE", "Asia/Jerusalem"),
		S3Bucket:        envStr("S3_BUCKET_NAME", ""),
		AWSRegion:       envStr("AWS_REGION", "us-east-1"),
		MongoURI:        envStr("MONGO_CONNECTION_STRING", ""),
		MongoDatabase:   envStr("MONGO_DATABASE_NAME", ""),
		MongoCollection: envStr("MONGO_COLLECTION_NAME", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		Port:            envInt("LSEXPORT_PORT", 8760),
		LogLevel:        envStr("LOG_LEVEL", "info"),
	}
}

// Validate catches configuration errors before any fetch begins.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("LANGSMITH_API_KEY is required")
	}
	if len(c.SessionIDs) == 0 {
		return fmt.Errorf("LS_SESSION_IDS must name at least one session")
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("LS_LIMIT must be positive")
	}
	if c.MongoURI != "" {
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE_NAME is required for MongoDB upload")
		}
		if c.MongoCollection == "" {
			return fmt.Errorf("MONGO_COLLECTION_NAME is required for MongoDB upload")
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envList(key, fallback string) []string {
	raw := envStr(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
