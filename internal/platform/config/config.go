// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server needs at startup. Optional
// integrations (Redis, Postgres, Kafka) stay disabled while their address is
// empty.
type Config struct {
	Addr     string `env:"CARBONLEDGER_ADDR" envDefault:":8080"`
	LogLevel string `env:"CARBONLEDGER_LOG_LEVEL" envDefault:"info"`

	// AdminIdentity seeds the registry admin. Required: without it no
	// privileged operation could ever succeed.
	AdminIdentity string `env:"CARBONLEDGER_ADMIN_IDENTITY,notEmpty"`

	JWT   JWTConfig   `envPrefix:"CARBONLEDGER_JWT_"`
	Redis RedisConfig `envPrefix:"CARBONLEDGER_REDIS_"`
	Audit AuditConfig `envPrefix:"CARBONLEDGER_AUDIT_"`
}

// JWTConfig configures access token issuance and validation.
type JWTConfig struct {
	SigningKey string        `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"ISSUER" envDefault:"carbonledger"`
	Audience   string        `env:"AUDIENCE" envDefault:"carbonledger-api"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
}

// RedisConfig configures the facility snapshot cache.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	SnapshotTTL  time.Duration `env:"SNAPSHOT_TTL" envDefault:"5m"`
}

// AuditConfig selects and tunes the audit trail sink. With neither a Postgres
// DSN nor Kafka brokers configured the trail is kept in memory.
type AuditConfig struct {
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"carbonledger.audit"`
	BufferSize   int      `env:"BUFFER_SIZE" envDefault:"256"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
