package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppID              string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	StorageRoot        string
	StreamHost         string
	ProgressInterval   time.Duration
	EngineAddTimeout   time.Duration
	MaxConcurrentAdds  int64
	ListenPort         int
	NoUpload           bool
	MessageLocale      string
	MongoURI           string // empty disables descriptor persistence
	MongoDatabase      string
	MongoCollection    string
	CORSAllowedOrigins []string
	OTLPEndpoint       string
	TraceSampleRate    float64
}

func LoadConfig() Config {
	appID := getEnv("APP_ID", "torrentplay")
	return Config{
		AppID:              appID,
		HTTPAddr:           getEnv("HTTP_ADDR", "127.0.0.1:8090"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		StorageRoot:        getEnv("TORRENT_STORAGE_ROOT", filepath.Join(os.TempDir(), appID)),
		StreamHost:         getEnv("STREAM_HOST", "127.0.0.1"),
		ProgressInterval:   getEnvDuration("PROGRESS_INTERVAL", 2*time.Second),
		EngineAddTimeout:   getEnvDuration("ENGINE_ADD_TIMEOUT", 30*time.Second),
		MaxConcurrentAdds:  getEnvInt64("ENGINE_MAX_CONCURRENT_ADDS", 4),
		ListenPort:         int(getEnvInt64("TORRENT_LISTEN_PORT", 0)),
		NoUpload:           getEnvBool("TORRENT_NO_UPLOAD", false),
		MessageLocale:      strings.ToLower(getEnv("MESSAGE_LOCALE", "en")),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "torrentplay"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "descriptors"),
		CORSAllowedOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRate:    getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("1500ms", "2s") or a bare number of
// milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms <= 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
