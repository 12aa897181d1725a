package authapi

import "context"

// Auth event names, used as log messages ("auth.<event>") and metric labels.
const (
	EventSignup         = "signup"
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLoginThrottled = "login_throttled"
	EventLogout         = "logout"
	EventLogoutAll      = "logout_all"
	EventAccountDeleted = "account_deleted"
)

// EventRecorder counts auth events.
type EventRecorder interface {
	AuthEvent(event string)
}

type noopEvents struct{}

func (noopEvents) AuthEvent(string) {}

// audit records an auth event. attrs are slog key/value pairs and must never
// carry passwords or tokens.
func (h *Handler) audit(ctx context.Context, event string, attrs ...any) {
	h.events.AuthEvent(event)
	h.log.InfoContext(ctx, "auth."+event, attrs...)
}
