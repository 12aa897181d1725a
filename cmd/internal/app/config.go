package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Store selection: Mongo when MongoURI is set, else Postgres when
	// DatabaseURL is set, else in-memory.
	MongoURI    string
	MongoDB     string
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisURL enables the shared login limiter.
	RedisURL string

	SendGridAPIKey string
	EmailFrom      string
	NotifyBuffer   int

	LoginMaxFailures int
	LoginWindow      time.Duration
	AvatarMaxBytes   int64

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true, /readyz returns 503 unless a database is configured.
	ReadinessRequireDB bool

	// If true, TASKER_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session
	// token digests are HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("TASKER_HTTP_ADDR", "0.0.0.0:3000"),
		LogLevel:  EnvString("TASKER_LOG_LEVEL", "info"),
		LogFormat: EnvString("TASKER_LOG_FORMAT", "json"),
		LogColor:  EnvBool("TASKER_LOG_COLOR", false),

		ReadHeaderTimeout: EnvDuration("TASKER_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TASKER_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TASKER_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TASKER_HTTP_IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:    EnvDuration("TASKER_HTTP_REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:   EnvDuration("TASKER_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("TASKER_HTTP_MAX_HEADER_BYTES", 1<<20),

		MongoURI:    EnvString("TASKER_MONGO_URI", ""),
		MongoDB:     EnvString("TASKER_MONGO_DB", "task-manager-api"),
		DatabaseURL: EnvString("TASKER_DATABASE_URL", ""),
		DBSchema:    EnvString("TASKER_DB_SCHEMA", "tasker"),
		DBMaxConns:  EnvInt32("TASKER_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TASKER_DB_MIN_CONNS", 0),

		RedisURL: EnvString("TASKER_REDIS_URL", ""),

		SendGridAPIKey: EnvString("TASKER_SENDGRID_API_KEY", ""),
		EmailFrom:      EnvString("TASKER_EMAIL_FROM", "Task Manager <no-reply@example.com>"),
		NotifyBuffer:   EnvInt("TASKER_NOTIFY_BUFFER", 256),

		LoginMaxFailures: EnvInt("TASKER_AUTH_LOGIN_MAX", 10),
		LoginWindow:      EnvDuration("TASKER_AUTH_LOGIN_WINDOW", 15*time.Minute),
		AvatarMaxBytes:   int64(EnvInt("TASKER_AVATAR_MAX_BYTES", 1_000_000)),

		CORSAllowedOrigins:   EnvList("TASKER_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("TASKER_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TASKER_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("TASKER_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("TASKER_REQUIRE_TOKEN_HMAC", false),
	}
}
