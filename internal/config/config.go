package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration loaded from environment variables and
// an optional config file. Environment variables win.
type Config struct {
	Env                   string
	Port                  string
	DatabaseURL           string
	JWTSecret             string
	JWTIssuer             string
	AccessTTL             time.Duration
	MediaStoragePath      string
	MaxUploadBytes        int64
	MetricsDiskPath       string
	MetricsSampleInterval time.Duration
	MetricsHistory        int
	CorsOrigins           []string
	LogDir                string
	LogRetentionDays      int
	LogLevel              string
	CacheTTL              time.Duration
	DefaultPageSize       int
}

var ErrMissing = errors.New("missing configuration")

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("JWT_ISSUER", "tradehub")
	v.SetDefault("ACCESS_TTL_SECONDS", 14400)
	v.SetDefault("MEDIA_STORAGE_PATH", "storage/media")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("METRICS_DISK_PATH", "storage/media")
	v.SetDefault("METRICS_SAMPLE_INTERVAL", 5)
	v.SetDefault("METRICS_HISTORY", 120)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("LOG_DIR", "storage/logs")
	v.SetDefault("LOG_RETENTION_DAYS", 7)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("DEFAULT_PAGE_SIZE", 10)
}

// Load reads configuration. configFile may be empty; when set, any format
// viper understands by extension is accepted.
func Load(configFile string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:                   v.GetString("APP_ENV"),
		Port:                  strings.TrimSpace(v.GetString("PORT")),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		JWTSecret:             strings.TrimSpace(v.GetString("JWT_SECRET")),
		JWTIssuer:             v.GetString("JWT_ISSUER"),
		AccessTTL:             seconds(v.GetInt("ACCESS_TTL_SECONDS")),
		MediaStoragePath:      v.GetString("MEDIA_STORAGE_PATH"),
		MaxUploadBytes:        v.GetInt64("MAX_UPLOAD_BYTES"),
		MetricsDiskPath:       v.GetString("METRICS_DISK_PATH"),
		MetricsSampleInterval: seconds(v.GetInt("METRICS_SAMPLE_INTERVAL")),
		MetricsHistory:        v.GetInt("METRICS_HISTORY"),
		CorsOrigins:           parseCSV(v.GetString("CORS_ORIGINS")),
		LogDir:                v.GetString("LOG_DIR"),
		LogRetentionDays:      v.GetInt("LOG_RETENTION_DAYS"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		CacheTTL:              seconds(v.GetInt("CACHE_TTL_SECONDS")),
		DefaultPageSize:       v.GetInt("DEFAULT_PAGE_SIZE"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("%w: DATABASE_URL", ErrMissing)
	}
	if cfg.MetricsSampleInterval <= 0 {
		cfg.MetricsSampleInterval = 5 * time.Second
	}
	return cfg, nil
}

// RequireAuth reports a missing JWT secret; only commands that issue tokens
// need one.
func (c Config) RequireAuth() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissing)
	}
	return nil
}

func (c Config) Addr() string {
	if c.Port == "" {
		return ":8080"
	}
	return ":" + c.Port
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
