package session

import (
	"os"
	"strings"
	"time"
)

// TokenFormat selects the token envelope.
type TokenFormat string

const (
	FormatPaseto TokenFormat = "paseto"
	FormatJWT    TokenFormat = "jwt"
)

// minJWTSecretBytes is the minimum HS256 secret size.
const minJWTSecretBytes = 32

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim.
	Issuer string

	// Format selects PASETO v4.public or JWT HS256.
	Format TokenFormat

	// TTL is the lifetime of a session and of its token.
	TTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public tokens.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key used when Format is FormatJWT.
	JWTSecret string
}

// DefaultConfig returns defaults suitable for development; keys are not set.
func DefaultConfig() Config {
	return Config{
		Issuer:    "tasker",
		Format:    FormatPaseto,
		TTL:       7 * 24 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - TASKER_PASETO_V4_SECRET_KEY_HEX (format paseto)
//   - TASKER_JWT_SECRET, at least 32 bytes (format jwt)
//
// Optional (durations must be valid Go duration strings):
//   - TASKER_AUTH_ISSUER
//   - TASKER_AUTH_TOKEN_FORMAT (paseto | jwt)
//   - TASKER_AUTH_SESSION_TTL
//   - TASKER_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("TASKER_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("TASKER_AUTH_TOKEN_FORMAT"); v != "" {
		switch f := TokenFormat(strings.ToLower(strings.TrimSpace(v))); f {
		case FormatPaseto, FormatJWT:
			cfg.Format = f
		default:
			return Config{}, ErrConfig
		}
	}

	if v := os.Getenv("TASKER_AUTH_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("TASKER_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("TASKER_PASETO_V4_SECRET_KEY_HEX"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("TASKER_JWT_SECRET"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the key for the selected format is present.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	switch c.Format {
	case FormatPaseto:
		if c.PasetoV4SecretKeyHex == "" {
			return ErrConfig
		}
	case FormatJWT:
		if len(c.JWTSecret) < minJWTSecretBytes {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}
