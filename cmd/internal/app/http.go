package app

import (
	"context"
	"net/http"
	"time"

	authapi "tasker/cmd/internal/auth/api"
)

func (a *App) buildHandler(auth *authapi.Handler) http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux, auth)

	var h http.Handler = a.metrics.Middleware(mux, mux)
	h = WithTimeout(h, a.cfg.RequestTimeout)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRecover(h, a.log)
	h = WithRequestLogging(h, a.log)
	h = WithRequestID(h)
	return h
}

func (a *App) registerHTTP(mux *http.ServeMux, auth *authapi.Handler) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && !a.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", a.metrics.Handler())

	if auth != nil {
		auth.Register(mux)
	}
}
