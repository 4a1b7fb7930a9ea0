package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	ProjectID      string
	VertexAIRegion string
	GeminiModel    string
	CacheTTL       time.Duration
	SessionTTL     time.Duration
	Port           string
	MaxDocumentMB  int64
	SweepOrphans   bool
}

// Load reads configuration from the environment, after loading an
// optional .env file from the working directory. PROJECT_ID is the only
// required key.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	projectID := GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	cacheTTL, err := parseDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDuration("SESSION_TTL", "2h")
	if err != nil {
		return nil, err
	}

	maxMB, err := strconv.ParseInt(GetEnv("MAX_DOCUMENT_MB", "50"), 10, 64)
	if err != nil || maxMB <= 0 {
		return nil, fmt.Errorf("MAX_DOCUMENT_MB must be a positive integer: %q", GetEnv("MAX_DOCUMENT_MB", "50"))
	}

	sweep, err := strconv.ParseBool(GetEnv("SWEEP_ORPHANS", "false"))
	if err != nil {
		return nil, fmt.Errorf("SWEEP_ORPHANS must be a boolean: %w", err)
	}

	return &Config{
		ProjectID:      projectID,
		VertexAIRegion: GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiModel:    GetEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		CacheTTL:       cacheTTL,
		SessionTTL:     sessionTTL,
		Port:           GetEnv("PORT", "8080"),
		MaxDocumentMB:  maxMB,
		SweepOrphans:   sweep,
	}, nil
}

// MaxDocumentBytes is the upload/download size cap in bytes.
func (c *Config) MaxDocumentBytes() int64 {
	return c.MaxDocumentMB << 20
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := GetEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 1h or 30m: %q", key, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive: %q", key, raw)
	}
	return d, nil
}
