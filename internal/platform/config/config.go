// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// through CUSTODIA_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates per-subsystem configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Postgres captures database connectivity. An empty DSN selects the in-memory
// stores, which is the default for development and unit tests.
type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis captures the optional distributed-lock backend. An empty URL selects
// the in-process keyed mutex.
type Redis struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// Kafka captures the audit event sink. Empty brokers select the in-memory
// audit store.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv assembles the full configuration from the environment.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("CUSTODIA_ADDR", ":8080"),
			JWTSigningKey:   envOr("CUSTODIA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			RequestTimeout:  envDuration("CUSTODIA_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("CUSTODIA_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			DSN:          os.Getenv("CUSTODIA_POSTGRES_DSN"),
			MaxOpenConns: envInt("CUSTODIA_POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("CUSTODIA_POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("CUSTODIA_REDIS_URL"),
			PoolSize:     envInt("CUSTODIA_REDIS_POOL_SIZE", 10),
			DialTimeout:  envDuration("CUSTODIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CUSTODIA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CUSTODIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      envDuration("CUSTODIA_REDIS_LOCK_TTL", 15*time.Second),
		},
		Kafka: Kafka{
			Brokers:    splitNonEmpty(os.Getenv("CUSTODIA_KAFKA_BROKERS")),
			AuditTopic: envOr("CUSTODIA_KAFKA_AUDIT_TOPIC", "custodia.audit"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
