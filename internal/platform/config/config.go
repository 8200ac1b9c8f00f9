// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Workflow Workflow
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminJWTSecret  string
	ShutdownTimeout time.Duration
}

// Postgres holds the relational store settings. An empty URL selects the
// in-memory stores (development and tests).
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis holds cache/TTL store settings. An empty URL selects the in-memory
// token and session stores.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds audit relay settings. Empty brokers disable the relay and
// audit entries stay queryable from the store only.
type Kafka struct {
	Brokers       []string
	TopicPrefix   string
	RelayInterval time.Duration
	RelayBatch    int
}

// Workflow holds the succession workflow knobs.
type Workflow struct {
	SweepInterval       time.Duration
	DocumentExpiryDays  int
	TokenTTL            time.Duration
	MaxReuploadAttempts int
	DocSessionTTL       time.Duration
	MaxUploadBytes      int64
	AllowedContentTypes []string
}

// FromEnv assembles a Config from the environment.
func FromEnv() Config {
	docExpiryDays := envInt("DOCUMENT_EXPIRY_DAYS", 14)
	return Config{
		Server: Server{
			Addr:            envStr("SECUREVAULT_ADDR", ":8080"),
			AdminJWTSecret:  envStr("ADMIN_JWT_SECRET", "dev-secret-change-in-production"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			URL:             os.Getenv("POSTGRES_URL"),
			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:       envList("KAFKA_BROKERS"),
			TopicPrefix:   envStr("KAFKA_TOPIC_PREFIX", "securevault.audit"),
			RelayInterval: envDuration("AUDIT_RELAY_INTERVAL", 2*time.Second),
			RelayBatch:    envInt("AUDIT_RELAY_BATCH", 100),
		},
		Workflow: Workflow{
			SweepInterval:      envDuration("INACTIVITY_SWEEP_INTERVAL", time.Hour),
			DocumentExpiryDays: docExpiryDays,
			// Token lifetime tracks the document-upload deadline unless
			// overridden, so a nominee's link works for the whole window.
			TokenTTL:            envDuration("TOKEN_TTL", time.Duration(docExpiryDays)*24*time.Hour),
			MaxReuploadAttempts: envInt("MAX_REUPLOAD_ATTEMPTS", 3),
			DocSessionTTL:       envDuration("DOC_SESSION_TTL", 300*time.Second),
			MaxUploadBytes:      int64(envInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
			AllowedContentTypes: []string{"application/pdf", "image/jpeg", "image/jpg", "image/png"},
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
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
