package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "bizreg/pkg/platform/strings"
)

// Config captures process configuration for the server and the importer CLI.
type Config struct {
	Addr       string
	LogLevel   string
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Import     ImportConfig
	Search     SearchConfig
	Admin      AdminConfig
	Enrichment EnrichmentConfig
	RateLimit  RateLimitConfig
}

// DatabaseConfig selects the PostgreSQL backend. An empty URL keeps every
// store in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig configures the shared Redis used by the enrichment cache and the
// rate limiter. An empty URL keeps both in process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures import event publishing. No brokers means events
// are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ImportConfig struct {
	DumpURL         string
	LayoutFile      string
	BatchSize       int
	Country         string
	Schedule        time.Duration
	DownloadTimeout time.Duration
}

type SearchConfig struct {
	SimilarityThreshold float64
}

// AdminConfig guards the import trigger. Either credential grants access.
type AdminConfig struct {
	Token  string
	JWTKey string
}

type EnrichmentConfig struct {
	DetailURL      string
	StakeholderURL string
	CacheSize      int
	CacheTTL       time.Duration
	Timeout        time.Duration
}

// RateLimitConfig bounds public API traffic per client IP.
type RateLimitConfig struct {
	Disabled        bool
	SearchPerMinute int
	ReadPerMinute   int
}

// RegistryCacheTTL is the default lifetime of cached enrichment data.
var RegistryCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	e := env{errs: &errs}

	cfg := Config{
		Addr:     e.str("BIZREG_ADDR", ":8080"),
		LogLevel: e.str("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:          e.str("DATABASE_URL", ""),
			MaxOpenConns: e.int("DATABASE_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: e.list("KAFKA_BROKERS"),
			Topic:   e.str("IMPORT_TOPIC", "bizreg.imports"),
		},
		Import: ImportConfig{
			DumpURL:         e.str("DUMP_URL", ""),
			LayoutFile:      e.str("DUMP_LAYOUT_FILE", ""),
			BatchSize:       e.int("IMPORT_BATCH_SIZE", 5000),
			Country:         e.str("COUNTRY_CODE", "SK"),
			Schedule:        e.duration("IMPORT_SCHEDULE", 0),
			DownloadTimeout: e.duration("DUMP_DOWNLOAD_TIMEOUT", 30*time.Minute),
		},
		Search: SearchConfig{
			SimilarityThreshold: e.float("SEARCH_SIMILARITY_THRESHOLD", 0.3),
		},
		Admin: AdminConfig{
			Token:  e.str("ADMIN_TOKEN", ""),
			JWTKey: e.str("ADMIN_JWT_KEY", ""),
		},
		Enrichment: EnrichmentConfig{
			DetailURL:      e.str("DETAIL_API_URL", ""),
			StakeholderURL: e.str("STAKEHOLDER_API_URL", ""),
			CacheSize:      e.int("ENRICHMENT_CACHE_SIZE", 10000),
			CacheTTL:       e.duration("ENRICHMENT_CACHE_TTL", RegistryCacheTTL),
			Timeout:        e.duration("ENRICHMENT_TIMEOUT", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			Disabled:        e.bool("RATE_LIMIT_DISABLED", false),
			SearchPerMinute: e.int("RATE_LIMIT_SEARCH_PER_MINUTE", 120),
			ReadPerMinute:   e.int("RATE_LIMIT_READ_PER_MINUTE", 600),
		},
	}

	if cfg.Search.SimilarityThreshold <= 0 || cfg.Search.SimilarityThreshold > 1 {
		errs = append(errs, "SEARCH_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if cfg.Import.BatchSize <= 0 {
		errs = append(errs, "IMPORT_BATCH_SIZE must be positive")
	}
	if !cfg.RateLimit.Disabled && (cfg.RateLimit.SearchPerMinute <= 0 || cfg.RateLimit.ReadPerMinute <= 0) {
		errs = append(errs, "rate limits must be positive unless RATE_LIMIT_DISABLED is set")
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

type env struct {
	errs *[]string
}

func (e env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (e env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (e env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e env) list(key string) []string {
	return platformstrings.SplitList(e.str(key, ""), ",")
}
