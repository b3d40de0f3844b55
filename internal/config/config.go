package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, populated from the environment.
type Config struct {
	ListenAddr string `env:"LUMENID_ADDR" envDefault:":8080"`
	IssuerURL  string `env:"LUMENID_ISSUER" envDefault:"http://localhost:8080"`

	// Optional backing stores. With no DSN the provider runs on in-memory
	// stores; with no Redis address sessions and codes stay in process.
	PostgresDSN string `env:"LUMENID_PG_DSN"`
	RedisAddr   string `env:"LUMENID_REDIS_ADDR"`

	// Signing keys, PEM-encoded. When both are empty an ephemeral dev key
	// is generated at startup.
	SigningKeyFile    string `env:"LUMENID_SIGNING_KEY_FILE"`
	SigningPubKeyFile string `env:"LUMENID_SIGNING_PUB_FILE"`
	SigningKeyID      string `env:"LUMENID_SIGNING_KID" envDefault:"default"`

	SessionKey    string        `env:"LUMENID_SESSION_KEY"`
	SessionTTL    time.Duration `env:"LUMENID_SESSION_TTL" envDefault:"8h"`
	SecureCookies bool          `env:"LUMENID_SECURE_COOKIES" envDefault:"false"`

	CodeTTL    time.Duration `env:"LUMENID_CODE_TTL" envDefault:"5m"`
	IDTokenTTL time.Duration `env:"LUMENID_ID_TOKEN_TTL" envDefault:"5m"`

	MaxFailedAttempts int           `env:"LUMENID_MAX_FAILED_ATTEMPTS" envDefault:"5"`
	FailureWindow     time.Duration `env:"LUMENID_FAILURE_WINDOW" envDefault:"10m"`
	LockoutDuration   time.Duration `env:"LUMENID_LOCKOUT_DURATION" envDefault:"15m"`

	// ClientsFile points at a JSON client table; empty means the built-in
	// development table.
	ClientsFile string `env:"LUMENID_CLIENTS_FILE"`

	SeedUsers bool `env:"LUMENID_SEED" envDefault:"true"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.CodeTTL > 10*time.Minute {
		return Config{}, fmt.Errorf("config: code TTL must not exceed 10m, got %s", cfg.CodeTTL)
	}
	return cfg, nil
}
