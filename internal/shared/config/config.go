package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"marketplace-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port                  string
	CORSAllowOrigin       []string
	ObjectStoreType       string
	LocalStoreDir         string
	PublicBaseURL         string
	AWSRegion             string
	S3Bucket              string
	S3Prefix              string
	SSEKMSKeyID           string
	DownloadURLTTL        time.Duration
	DatabaseURL           string
	Env                   string
	LogLevel              string
	ComplianceCatalogFile string
	ModerationQueueURL    string
	JWTSecret             string
	ListingHoldDays       int
	SweepConcurrency      int
	DevSeedCompanies      []string
}

// IsDev reports whether the process runs in a developer environment where
// header-based actor identity is accepted.
func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "local"
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	jwtSecret := os.Getenv("JWT_SECRET")

	if env == "production" && dbURL == "" {
		telemetry.Error("DATABASE_URL is required in production", nil)
	}
	if env == "production" && jwtSecret == "" {
		telemetry.Error("JWT_SECRET is required in production", nil)
	}

	port := getEnv("PORT", "8080")

	return Config{
		Port:                  port,
		CORSAllowOrigin:       splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:       normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:         getEnv("LOCAL_STORE_DIR", "./data"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:"+port),
		AWSRegion:             getEnv("AWS_REGION", ""),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		S3Prefix:              getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:           getEnv("SSE_KMS_KEY_ID", ""),
		DownloadURLTTL:        getDuration("DOWNLOAD_URL_TTL", 15*time.Minute),
		DatabaseURL:           dbURL,
		Env:                   env,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ComplianceCatalogFile: getEnv("COMPLIANCE_CATALOG_FILE", ""),
		ModerationQueueURL:    getEnv("MODERATION_SQS_QUEUE_URL", ""),
		JWTSecret:             jwtSecret,
		ListingHoldDays:       getInt("LISTING_HOLD_DAYS", 90),
		SweepConcurrency:      getInt("COMPLIANCE_SWEEP_CONCURRENCY", 4),
		DevSeedCompanies:      splitAndTrim(getEnv("DEV_SEED_COMPANIES", "")),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		telemetry.Warn("config invalid int, using default", map[string]any{"key": key, "value": raw, "default": def})
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		telemetry.Warn("config invalid duration, using default", map[string]any{"key": key, "value": raw, "default": def.String()})
		return def
	}
	return v
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
