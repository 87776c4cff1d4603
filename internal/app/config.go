package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config is the full service configuration, sourced from a .env file,
// the process environment, and command line flags, in that order of
// increasing precedence.
type Config struct {
	Issuer   string   `validate:"required"`
	Audience []string `validate:"omitempty,dive,required"`

	// Signing material. Exactly one source applies: a PEM file for
	// asymmetric algorithms, an inline secret for HMAC, or neither for
	// an ephemeral random HMAC key.
	Algorithm      string `validate:"required,oneof=HS256 HS384 HS512 RS256 RS384 RS512 ES256 ES384"`
	SigningSecret  string
	SigningKeyFile string
	KeyHistory     int `validate:"gte=0,lte=10"`

	// DatabaseFile is the SQLite path for refresh token records. Empty
	// selects the in-memory store; records then die with the process.
	DatabaseFile string

	RefreshRotation      bool
	RefreshMaxPerUser    int `validate:"gte=0"`
	RefreshRevokeReplay  bool
	RefreshMaxLifetime   time.Duration `validate:"gte=0"`
	HousekeepingInterval time.Duration `validate:"gte=0"`

	Env       string `validate:"oneof=dev staging prod"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	Port                int           `validate:"gt=0,lte=65535"`
	ShutdownGracePeriod time.Duration `validate:"gt=0"`
}

// LoadConfig assembles the configuration. A missing .env file is fine;
// a malformed one is not.
func LoadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Issuer:               getEnvOrDefault("KEYLINE_ISSUER", "keyline"),
		Algorithm:            getEnvOrDefault("KEYLINE_ALGORITHM", "HS256"),
		SigningSecret:        os.Getenv("KEYLINE_SIGNING_SECRET"),
		SigningKeyFile:       os.Getenv("KEYLINE_SIGNING_KEY_FILE"),
		KeyHistory:           getEnvIntOrDefault("KEYLINE_KEY_HISTORY", 3),
		DatabaseFile:         os.Getenv("KEYLINE_DATABASE_FILE"),
		RefreshRotation:      getEnvBoolOrDefault("KEYLINE_REFRESH_ROTATION", true),
		RefreshMaxPerUser:    getEnvIntOrDefault("KEYLINE_REFRESH_MAX_PER_USER", 10),
		RefreshRevokeReplay:  getEnvBoolOrDefault("KEYLINE_REFRESH_REVOKE_REPLAY", true),
		RefreshMaxLifetime:   getEnvDurationOrDefault("KEYLINE_REFRESH_MAX_LIFETIME", 0),
		HousekeepingInterval: getEnvDurationOrDefault("KEYLINE_HOUSEKEEPING_INTERVAL", time.Hour),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
	if aud := os.Getenv("KEYLINE_AUDIENCE"); aud != "" {
		cfg.Audience = splitCSV(aud)
	}

	if err := cfg.parseFlags(args); err != nil {
		return Config{}, err
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) parseFlags(args []string) error {
	fs := pflag.NewFlagSet("keyline", pflag.ContinueOnError)

	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "Issuer claim stamped into tokens")
	fs.StringSliceVar(&c.Audience, "audience", c.Audience, "Audience values stamped into tokens")
	fs.StringVar(&c.Algorithm, "algorithm", c.Algorithm, "JWT signing algorithm")
	fs.StringVar(&c.SigningKeyFile, "signing-key-file", c.SigningKeyFile, "PEM file with the signing key")
	fs.StringVarP(&c.DatabaseFile, "database", "d", c.DatabaseFile, "SQLite file for refresh records (empty for in-memory)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "HTTP listen port")

	return fs.Parse(args)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
