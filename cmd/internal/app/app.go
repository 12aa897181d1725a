// Package app wires the tasker server runtime: config, logging, storage,
// HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"os"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/redis/go-redis/v9"

	"tasker/cmd/identity"
	authapi "tasker/cmd/internal/auth/api"
	"tasker/cmd/internal/auth/session"
	"tasker/cmd/internal/avatar"
	"tasker/cmd/internal/notify"
	"tasker/cmd/internal/ratelimit"
	"tasker/cmd/internal/tasks"
	"tasker/cmd/security/password"
)

// closer releases a backing resource on shutdown.
type closer func(ctx context.Context) error

// App is the tasker server runtime: it owns the HTTP handler and every
// resource the handler depends on.
type App struct {
	cfg Config
	log Logger

	store     identity.Store
	dbEnabled bool
	closers   []closer

	dispatcher *notify.Dispatcher
	metrics    *Metrics
	handler    http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	store, purger, dbEnabled, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store, a.dbEnabled = store, dbEnabled

	hasher, err := NewTokenHasher(cfg)
	if err != nil {
		return nil, err
	}

	pw, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	sessCfg, err := a.sessionConfig()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewTokenManager(sessCfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, store, tokens, hasher)

	sender, err := a.newSender()
	if err != nil {
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		BufferSize:  cfg.NotifyBuffer,
		SendTimeout: notify.DefaultDispatcherConfig().SendTimeout,
	}, sender, log)
	a.metrics.RegisterCounterFunc("tasker_notify_dropped_total",
		"Emails dropped because the dispatch queue was full.", a.dispatcher.Dropped)
	a.metrics.RegisterCounterFunc("tasker_notify_failed_total",
		"Emails the provider failed to accept.", a.dispatcher.Failed)

	accounts := identity.NewAccounts(store, a.dispatcher, purger,
		identity.WithPasswordHasher(pw),
		identity.WithLogger(log),
	)

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		return nil, err
	}

	avatarPolicy := avatar.DefaultPolicy()
	avatarPolicy.MaxBytes = cfg.AvatarMaxBytes

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), accounts, sessions,
		authapi.WithLimiter(limiter),
		authapi.WithEventRecorder(a.metrics),
		authapi.WithAvatarNormalizer(avatar.NewNormalizer(avatarPolicy)),
	)
	if err != nil {
		return nil, err
	}

	a.handler = a.buildHandler(auth)
	ok = true
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.close(shutdownCtx)
		return err
	}

	a.close(shutdownCtx)
	a.log.Info("server.stopped")
	return nil
}

// Close drains pending emails and releases storage resources.
func (a *App) Close(ctx context.Context) { a.close(ctx) }

func (a *App) close(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Error("notify.close.fail", "err", err)
		}
		a.dispatcher = nil
	}
	// Release in reverse acquisition order.
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	a.closers = nil
}

// newStore selects Mongo, then Postgres, then the in-memory dev store.
func (a *App) newStore(ctx context.Context) (identity.Store, identity.TaskPurger, bool, error) {
	cfg := a.cfg
	switch {
	case cfg.MongoURI != "":
		client, err := NewMongoClient(ctx, cfg)
		if err != nil {
			return nil, nil, false, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		st, err := identity.NewMongoStore(client, cfg.MongoDB)
		if err != nil {
			return nil, nil, false, err
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, nil, false, fmt.Errorf("mongo: ensure indexes: %w", err)
		}
		purger, err := tasks.NewMongoPurger(client, cfg.MongoDB)
		if err != nil {
			return nil, nil, false, err
		}
		a.log.Info("db.enabled.mongo_store", "db", cfg.MongoDB)
		return st, purger, true, nil

	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })

		st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, nil, false, err
		}
		purger, err := tasks.NewPostgresPurger(pool, cfg.DBSchema)
		if err != nil {
			return nil, nil, false, err
		}
		a.log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		return st, purger, true, nil

	default:
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), tasks.NoopPurger{}, false, nil
	}
}

// sessionConfig loads session settings. Without a database an ephemeral
// signing key is acceptable, since sessions die with the process anyway.
func (a *App) sessionConfig() (session.Config, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err == nil {
		return sessCfg, nil
	}
	keyMissing := strings.TrimSpace(os.Getenv("TASKER_PASETO_V4_SECRET_KEY_HEX")) == "" &&
		strings.TrimSpace(os.Getenv("TASKER_AUTH_TOKEN_FORMAT")) == ""
	if a.dbEnabled || !keyMissing {
		return session.Config{}, fmt.Errorf("session config: %w", err)
	}

	sessCfg = session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	a.log.Warn("session.ephemeral_signing_key")
	return sessCfg, nil
}

func (a *App) newSender() (notify.Sender, error) {
	if a.cfg.SendGridAPIKey == "" {
		a.log.Info("notify.log_only")
		return notify.NewLogNotifier(a.log), nil
	}
	from, err := mail.ParseAddress(a.cfg.EmailFrom)
	if err != nil {
		return nil, fmt.Errorf("TASKER_EMAIL_FROM: %w", err)
	}
	sg, err := notify.NewSendGridNotifier(notify.SendGridConfig{
		APIKey:   a.cfg.SendGridAPIKey,
		FromName: from.Name,
		FromAddr: from.Address,
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("notify.sendgrid", "from", from.Address)
	return sg, nil
}

func (a *App) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	rcfg := ratelimit.Config{MaxFailures: a.cfg.LoginMaxFailures, Window: a.cfg.LoginWindow}
	if a.cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(rcfg, nil), nil
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.log.Info("ratelimit.redis")
	return ratelimit.NewRedisLimiter(client, rcfg, "tasker"), nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
