package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port            string
	Env             string   // development, staging, production
	AllowedOrigins  []string // 로그 스트림 WebSocket 허용 Origin (같은 호스트는 항상 허용)
	ShutdownTimeout time.Duration

	// Storage
	StoreDriver string // postgres, memory
	Database    DatabaseConfig
	Redis       RedisConfig

	// External collaborators
	DART  DARTConfig
	Naver NaverConfig

	// Orchestration
	Collection CollectionConfig
	Evaluation EvaluationConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DARTConfig holds DART (전자공시) API configuration
type DARTConfig struct {
	APIKey  string
	BaseURL string
}

// NaverConfig holds Naver Finance / 뉴스 검색 configuration
type NaverConfig struct {
	BaseURL       string // 시세 (fchart)
	SearchBaseURL string // 뉴스 검색
}

// CollectionConfig controls the collection-job orchestrator
type CollectionConfig struct {
	Workers         int           // 동시 실행 unit 수
	UnitTimeout     time.Duration // 외부 호출 1회 타임아웃
	MaxAttempts     int           // 외부 호출 최대 시도 횟수
	InitialBackoff  time.Duration
	GraceDelay      time.Duration // dispatch 후 첫 poll까지
	PollInterval    time.Duration // running 동안 재확인 간격
	MaxWallClock    time.Duration // 이 시간 내 완료 안 되면 failed
	MinutesPerType  int           // 예상 완료 시각 계산용
	ConflictRetries int           // 낙관적 잠금 충돌 재시도
	RequestsPerSec  float64       // 외부 호출 스로틀
}

// EvaluationConfig controls the evaluation pipeline
type EvaluationConfig struct {
	EstimatedDuration time.Duration
	Timeout           time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "30s"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Prefix:   getEnv("REDIS_PREFIX", "aaa"),
		},

		DART: DARTConfig{
			APIKey:  getEnv("DART_API_KEY", ""),
			BaseURL: getEnv("DART_BASE_URL", "https://opendart.fss.or.kr/api"),
		},
		Naver: NaverConfig{
			BaseURL:       getEnv("NAVER_BASE_URL", "https://fchart.stock.naver.com"),
			SearchBaseURL: getEnv("NAVER_SEARCH_BASE_URL", "https://search.naver.com"),
		},

		Collection: CollectionConfig{
			Workers:         getEnvAsInt("COLLECTION_WORKERS", 8),
			UnitTimeout:     getEnvAsDuration("COLLECTION_UNIT_TIMEOUT", "30s"),
			MaxAttempts:     getEnvAsInt("COLLECTION_MAX_ATTEMPTS", 3),
			InitialBackoff:  getEnvAsDuration("COLLECTION_INITIAL_BACKOFF", "1s"),
			GraceDelay:      getEnvAsDuration("COLLECTION_GRACE_DELAY", "300s"),
			PollInterval:    getEnvAsDuration("COLLECTION_POLL_INTERVAL", "60s"),
			MaxWallClock:    getEnvAsDuration("COLLECTION_MAX_WALL_CLOCK", "6h"),
			MinutesPerType:  getEnvAsInt("COLLECTION_MINUTES_PER_TYPE", 5),
			ConflictRetries: getEnvAsInt("COLLECTION_CONFLICT_RETRIES", 5),
			RequestsPerSec:  getEnvAsFloat("COLLECTION_REQUESTS_PER_SEC", 5),
		},
		Evaluation: EvaluationConfig{
			EstimatedDuration: getEnvAsDuration("EVALUATION_ESTIMATED_DURATION", "1h"),
			Timeout:           getEnvAsDuration("EVALUATION_TIMEOUT", "30m"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// UseMemoryStore reports whether repositories should be in-process
func (c *Config) UseMemoryStore() bool {
	return c.StoreDriver == "memory"
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: postgres, memory")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	cc := c.Collection
	if cc.Workers <= 0 {
		return fmt.Errorf("COLLECTION_WORKERS must be positive")
	}
	if cc.UnitTimeout <= 0 || cc.PollInterval <= 0 || cc.MaxWallClock <= 0 {
		return fmt.Errorf("collection timeouts must be positive")
	}
	if cc.MaxAttempts <= 0 || cc.ConflictRetries <= 0 {
		return fmt.Errorf("collection retry counts must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
