// Package config loads service configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Worker   Worker
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// Postgres captures database configuration. Empty DSN runs the service on
// in-memory stores, which is the dev and unit test mode.
type Postgres struct {
	DSN string
}

// Redis captures the verification checkpoint cache configuration. Empty URL
// disables the cache; verification then always walks the full chain.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the event stream configuration. No brokers disables the
// outbox relay; events accumulate until a relay picks them up.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Worker captures background worker cadence.
type Worker struct {
	SealInterval  time.Duration
	RelayInterval time.Duration
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("FUNDLEDGER_ADDR", ":8080"),
			JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			ShutdownTimeout: envDuration("FUNDLEDGER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("FUNDLEDGER_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("FUNDLEDGER_REDIS_URL"),
			PoolSize:     envInt("FUNDLEDGER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FUNDLEDGER_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("FUNDLEDGER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FUNDLEDGER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("FUNDLEDGER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("FUNDLEDGER_KAFKA_BROKERS")),
			Topic:   envOr("FUNDLEDGER_KAFKA_TOPIC", "fundledger.events"),
		},
		Worker: Worker{
			SealInterval:  envDuration("FUNDLEDGER_SEAL_INTERVAL", 5*time.Second),
			RelayInterval: envDuration("FUNDLEDGER_RELAY_INTERVAL", 2*time.Second),
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
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
