package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// loginThrottleKeys returns the limiter keys for one login attempt.
func loginThrottleKeys(emailNorm string, ip net.IP) []string {
	keys := make([]string, 0, 2)
	if emailNorm != "" {
		keys = append(keys, "email:"+emailNorm)
	}
	if ip != nil {
		keys = append(keys, "ip:"+ip.String())
	}
	return keys
}

// checkLoginThrottle reports the longest block among keys.
func (h *Handler) checkLoginThrottle(ctx context.Context, keys []string) (bool, time.Duration, error) {
	var (
		blocked bool
		retry   time.Duration
	)
	for _, k := range keys {
		b, d, err := h.limiter.Check(ctx, k)
		if err != nil {
			return false, 0, err
		}
		if b {
			blocked = true
			if d > retry {
				retry = d
			}
		}
	}
	return blocked, retry, nil
}

func (h *Handler) recordLoginFailure(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := h.limiter.RecordFailure(ctx, k); err != nil {
			h.log.ErrorContext(ctx, "auth.login.throttle_record.fail", "err", err)
		}
	}
}

// resetLoginThrottle clears the email key only; an IP shared by many users
// keeps its count.
func (h *Handler) resetLoginThrottle(ctx context.Context, emailNorm string) {
	if emailNorm == "" {
		return
	}
	if err := h.limiter.Reset(ctx, "email:"+emailNorm); err != nil {
		h.log.ErrorContext(ctx, "auth.login.throttle_reset.fail", "err", err)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
