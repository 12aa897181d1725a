package session

import (
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnv_MissingSecretKey(t *testing.T) {
	t.Setenv("TASKER_AUTH_TOKEN_FORMAT", "")
	t.Setenv("TASKER_PASETO_V4_SECRET_KEY_HEX", "")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("TASKER_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("TASKER_AUTH_SESSION_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_UnknownFormat(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("TASKER_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("TASKER_AUTH_TOKEN_FORMAT", "saml")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for unknown format, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortJWTSecret(t *testing.T) {
	t.Setenv("TASKER_AUTH_TOKEN_FORMAT", "jwt")
	t.Setenv("TASKER_JWT_SECRET", "too-short")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for short jwt secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("TASKER_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("TASKER_AUTH_TOKEN_FORMAT", "")
	t.Setenv("TASKER_AUTH_ISSUER", "tasker-test")
	t.Setenv("TASKER_AUTH_SESSION_TTL", "48h")
	t.Setenv("TASKER_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Issuer != "tasker-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.Format != FormatPaseto {
		t.Fatalf("format mismatch: %q", cfg.Format)
	}
	if cfg.TTL != 48*time.Hour {
		t.Fatalf("ttl mismatch: %v", cfg.TTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
}

func TestLoadConfigFromEnv_JWT(t *testing.T) {
	t.Setenv("TASKER_AUTH_TOKEN_FORMAT", "JWT")
	t.Setenv("TASKER_JWT_SECRET", strings.Repeat("k", 32))
	t.Setenv("TASKER_PASETO_V4_SECRET_KEY_HEX", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Format != FormatJWT {
		t.Fatalf("format mismatch: %q", cfg.Format)
	}
	if cfg.TTL != 7*24*time.Hour {
		t.Fatalf("default ttl mismatch: %v", cfg.TTL)
	}
}
