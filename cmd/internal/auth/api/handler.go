package authapi

import (
	"errors"
	"log/slog"
	"net/http"

	"tasker/cmd/identity"
	"tasker/cmd/internal/auth/session"
	"tasker/cmd/internal/avatar"
	"tasker/cmd/internal/ratelimit"
)

// Handler wires the user HTTP endpoints to the account and session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts *identity.Accounts
	sessions *session.Service
	avatars  *avatar.Normalizer
	limiter  ratelimit.Limiter
	events   EventRecorder
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLimiter overrides the default in-memory login limiter.
func WithLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithEventRecorder sets the auth event sink (metrics).
func WithEventRecorder(r EventRecorder) HandlerOption {
	return func(h *Handler) {
		if r != nil {
			h.events = r
		}
	}
}

// WithAvatarNormalizer overrides the default avatar policy.
func WithAvatarNormalizer(n *avatar.Normalizer) HandlerOption {
	return func(h *Handler) {
		if n != nil {
			h.avatars = n
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts *identity.Accounts, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil || sessions == nil {
		return nil, errors.New("authapi: nil accounts or sessions")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.AvatarField == "" {
		cfg.AvatarField = DefaultConfig().AvatarField
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		avatars:  avatar.NewNormalizer(avatar.DefaultPolicy()),
		limiter:  ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig(), nil),
		events:   noopEvents{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the user routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	authed := func(fn http.HandlerFunc) http.Handler { return h.RequireAuth(fn) }

	mux.HandleFunc("POST /users", h.handleSignup)
	mux.HandleFunc("POST /users/login", h.handleLogin)
	mux.Handle("POST /users/logout", authed(h.handleLogout))
	mux.Handle("POST /users/logoutAll", authed(h.handleLogoutAll))
	mux.Handle("GET /users/me", authed(h.handleMe))
	mux.Handle("PATCH /users/me", authed(h.handleUpdateMe))
	mux.Handle("DELETE /users/me", authed(h.handleDeleteMe))
	mux.Handle("POST /users/me/avatar", authed(h.handleAvatarUpload))
	mux.Handle("DELETE /users/me/avatar", authed(h.handleAvatarDelete))
	mux.HandleFunc("GET /users/{id}/avatar", h.handleAvatarGet)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req identity.Draft
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	u, err := h.accounts.Create(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "auth.signup", err)
		return
	}

	issued, err := h.sessions.Issue(ctx, u.ID, h.sessionClient(r))
	if err != nil {
		h.writeServiceError(ctx, w, "auth.signup.session", err)
		return
	}

	h.audit(ctx, EventSignup, "user_id", u.ID, "session_id", issued.SessionID)
	writeJSON(w, http.StatusOK, toAuthResponse(u, issued))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	emailNorm := identity.NormalizeEmail(req.Email)
	keys := loginThrottleKeys(emailNorm, clientIP(r, h.cfg.TrustProxy))

	// Throttle before the password hash is computed.
	if blocked, retryAfter, err := h.checkLoginThrottle(ctx, keys); err != nil {
		h.log.ErrorContext(ctx, "auth.login.throttle.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.audit(ctx, EventLoginThrottled, "retry_after_s", int64(retryAfter.Seconds()))
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.accounts.FindByCredentials(ctx, emailNorm, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.recordLoginFailure(ctx, keys)
			h.audit(ctx, EventLoginFailure)
		}
		h.writeServiceError(ctx, w, "auth.login", err)
		return
	}
	h.resetLoginThrottle(ctx, emailNorm)

	issued, err := h.sessions.Issue(ctx, u.ID, h.sessionClient(r))
	if err != nil {
		h.writeServiceError(ctx, w, "auth.login.session", err)
		return
	}

	h.audit(ctx, EventLoginSuccess, "user_id", u.ID, "session_id", issued.SessionID)
	writeJSON(w, http.StatusOK, toAuthResponse(u, issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	if err := h.sessions.Revoke(ctx, p.User.ID, p.SessionID); err != nil {
		h.writeServiceError(ctx, w, "auth.logout", err)
		return
	}
	h.audit(ctx, EventLogout, "user_id", p.User.ID, "session_id", p.SessionID)
	writeEmpty(w)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	if err := h.sessions.RevokeAll(ctx, p.User.ID); err != nil {
		h.writeServiceError(ctx, w, "auth.logout_all", err)
		return
	}
	h.audit(ctx, EventLogoutAll, "user_id", p.User.ID)
	writeEmpty(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(p.User))
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch identity.Patch
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &patch); err != nil {
		if errors.Is(err, errUnknownField) {
			writeError(w, http.StatusBadRequest, "invalid_updates", "invalid updates")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	u, err := h.accounts.Update(ctx, p.User.ID, patch)
	if err != nil {
		h.writeServiceError(ctx, w, "auth.update_me", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	u, err := h.accounts.Delete(ctx, p.User.ID)
	if err != nil {
		h.writeServiceError(ctx, w, "auth.delete_me", err)
		return
	}
	h.audit(ctx, EventAccountDeleted, "user_id", u.ID)
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
