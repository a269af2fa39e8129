package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	minStoreTimeout = 2 * time.Second
	maxStoreTimeout = 5 * time.Second
)

type Config struct {
	// Application
	AppEnv   string
	HTTPAddr string
	LogLevel string

	// Backends
	StoreBackend string
	BusBackend   string
	// StoreDefaulted is set when no backend was configured and the
	// in-memory store was picked.
	StoreDefaulted bool

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Timing
	StoreTimeout     time.Duration
	RoomTTL          time.Duration
	AnswerGrace      time.Duration
	LobbyIdleTimeout time.Duration

	SeedQuestionsFile  string
	CORSAllowedOrigins []string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "")),
		BusBackend:   strings.ToLower(getEnv("BUS_BACKEND", "")),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "quiz"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "quiz_battle"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		SeedQuestionsFile:  getEnv("SEED_QUESTIONS_FILE", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"STORE_TIMEOUT", 3 * time.Second, &cfg.StoreTimeout},
		{"ROOM_TTL", 24 * time.Hour, &cfg.RoomTTL},
		{"ANSWER_GRACE", 2 * time.Second, &cfg.AnswerGrace},
		{"LOBBY_IDLE_TIMEOUT", 10 * time.Minute, &cfg.LobbyIdleTimeout},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeConfiguration, "invalid "+d.key)
		}
		*d.dst = v
	}
	cfg.StoreTimeout = min(max(cfg.StoreTimeout, minStoreTimeout), maxStoreTimeout)

	cfg.resolveBackends()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveBackends fills in backends left unset: Redis when a Redis host
// is configured, else Postgres when a database host is, else memory.
func (c *Config) resolveBackends() {
	if c.StoreBackend == "" {
		switch {
		case c.RedisHost != "":
			c.StoreBackend = BackendRedis
		case c.DBHost != "":
			c.StoreBackend = BackendPostgres
		default:
			c.StoreBackend = BackendMemory
			c.StoreDefaulted = true
		}
	}
	if c.BusBackend == "" {
		if c.StoreBackend == BackendRedis {
			c.BusBackend = BackendRedis
		} else {
			c.BusBackend = BackendMemory
		}
	}
}

func configErr(format string, args ...any) error {
	return apperr.New(apperr.ErrCodeConfiguration, fmt.Sprintf(format, args...))
}

// Validate fails closed: a backend that was asked for but cannot be
// reached with the given settings is an error, never a silent fallback.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
		if c.IsProduction() {
			return configErr("STORE_BACKEND=memory is not allowed in production")
		}
	case BackendRedis:
		if c.RedisHost == "" {
			return configErr("REDIS_HOST is required for the redis store")
		}
	case BackendPostgres:
		if c.DBHost == "" {
			return configErr("DB_HOST is required for the postgres store")
		}
		if c.DBPassword == "" {
			return configErr("DB_PASSWORD is required for the postgres store")
		}
	default:
		return configErr("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BusBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisHost == "" {
			return configErr("REDIS_HOST is required for the redis bus")
		}
	default:
		return configErr("unknown BUS_BACKEND %q", c.BusBackend)
	}

	if c.RoomTTL <= 0 {
		return configErr("ROOM_TTL must be positive")
	}
	if c.AnswerGrace < 0 {
		return configErr("ANSWER_GRACE must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, c.RedisPort)
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
