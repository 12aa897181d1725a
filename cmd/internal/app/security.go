package app

import (
	"errors"
	"fmt"

	"tasker/cmd/security/token"
)

// NewTokenHasher builds the session token digester and enforces the
// startup security policy. Under RequireTokenHMAC a missing or short key
// fails fast instead of falling back to plain SHA-256.
func NewTokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return token.Hasher{}, errors.New("security policy: TASKER_REQUIRE_TOKEN_HMAC=true but TASKER_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return token.Hasher{}, fmt.Errorf("security policy: TASKER_REQUIRE_TOKEN_HMAC=true but TASKER_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
		default:
			return token.Hasher{}, err
		}
	}
	if cfg.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: TASKER_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
