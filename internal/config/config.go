package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	GLPI     GLPIConfig
	Push     PushConfig
	Stream   StreamConfig
	Events   EventsConfig
	Timeline TimelineConfig
	Webhook  WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowOrigins      string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines viewer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	AllowedEmailDomain    string
}

// GLPIConfig points at the ticketing backend REST API.
type GLPIConfig struct {
	BaseURL           string
	AppToken          string
	UserToken         string
	TimeZone          string
	TimeoutSeconds    int
	DocumentProxyPath string
}

// PushConfig holds Web Push (VAPID) settings.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	AppURL          string
	TicketPath      string
	TTLSeconds      int
	Icon            string
	Badge           string
}

// StreamConfig tunes server-sent event connections.
type StreamConfig struct {
	HeartbeatSeconds int
	QueueSize        int
}

// EventsConfig tunes the in-process event bus.
type EventsConfig struct {
	ReplayWindowSeconds int
}

// TimelineConfig tunes timeline reconciliation.
type TimelineConfig struct {
	PollSeconds            int
	SessionIdleMinutes     int
	SessionSweepSeconds    int
	MaxConcurrentDocuments int
}

// WebhookConfig controls inbound notification handling.
type WebhookConfig struct {
	QuarantineKey        string
	QuarantineMax        int
	StatusDictionaryPath string
	Enrich               bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-portal"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSAllowOrigins:      getEnv("HTTP_CORS_ALLOW_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			AllowedEmailDomain:    os.Getenv("AUTH_ALLOWED_EMAIL_DOMAIN"),
		},
		GLPI: GLPIConfig{
			BaseURL:           strings.TrimRight(os.Getenv("GLPI_REST_API_URL"), "/"),
			AppToken:          os.Getenv("GLPI_APP_TOKEN"),
			UserToken:         os.Getenv("GLPI_USER_TOKEN"),
			TimeZone:          getEnv("GLPI_TIMEZONE", "UTC"),
			TimeoutSeconds:    getEnvAsInt("GLPI_TIMEOUT_SECONDS", 15),
			DocumentProxyPath: getEnv("GLPI_DOCUMENT_PROXY_PATH", "/documents"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:soporte@example.com"),
			AppURL:          getEnv("APP_PUBLIC_URL", "http://localhost:3000"),
			TicketPath:      getEnv("PUSH_TICKET_PATH", "/detalleticket"),
			TTLSeconds:      getEnvAsInt("PUSH_TTL_SECONDS", 86400),
			Icon:            getEnv("PUSH_ICON", "/icon-192x192.png"),
			Badge:           getEnv("PUSH_BADGE", "/icon-72x72.png"),
		},
		Stream: StreamConfig{
			HeartbeatSeconds: getEnvAsInt("STREAM_HEARTBEAT_SECONDS", 30),
			QueueSize:        getEnvAsInt("STREAM_QUEUE_SIZE", 64),
		},
		Events: EventsConfig{
			ReplayWindowSeconds: getEnvAsInt("EVENTS_REPLAY_WINDOW_SECONDS", 300),
		},
		Timeline: TimelineConfig{
			PollSeconds:            getEnvAsInt("TIMELINE_POLL_SECONDS", 10),
			SessionIdleMinutes:     getEnvAsInt("TIMELINE_SESSION_IDLE_MINUTES", 30),
			SessionSweepSeconds:    getEnvAsInt("TIMELINE_SESSION_SWEEP_SECONDS", 60),
			MaxConcurrentDocuments: getEnvAsInt("TIMELINE_MAX_CONCURRENT_DOCUMENTS", 8),
		},
		Webhook: WebhookConfig{
			QuarantineKey:        getEnv("WEBHOOK_QUARANTINE_KEY", "ticket-portal:webhook:quarantine"),
			QuarantineMax:        getEnvAsInt("WEBHOOK_QUARANTINE_MAX", 200),
			StatusDictionaryPath: os.Getenv("WEBHOOK_STATUS_DICTIONARY_PATH"),
			Enrich:               getEnvAsBool("WEBHOOK_ENRICH", true),
		},
	}

	if cfg.Stream.HeartbeatSeconds <= 0 {
		return nil, fmt.Errorf("invalid STREAM_HEARTBEAT_SECONDS: %d", cfg.Stream.HeartbeatSeconds)
	}
	if _, err := time.LoadLocation(cfg.GLPI.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid GLPI_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Configured reports whether the backend can be reached.
func (g GLPIConfig) Configured() bool {
	return g.BaseURL != "" && g.AppToken != ""
}

// ServiceAccountConfigured reports whether the service user token is set.
func (g GLPIConfig) ServiceAccountConfigured() bool {
	return g.Configured() && g.UserToken != ""
}

// Timeout returns the backend request timeout.
func (g GLPIConfig) Timeout() time.Duration {
	return secondsOr(g.TimeoutSeconds, 15*time.Second)
}

// Enabled reports whether VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// Heartbeat returns the stream heartbeat interval.
func (s StreamConfig) Heartbeat() time.Duration {
	return secondsOr(s.HeartbeatSeconds, 30*time.Second)
}

// ReplayWindow returns how long updates stay replayable.
func (e EventsConfig) ReplayWindow() time.Duration {
	return secondsOr(e.ReplayWindowSeconds, 5*time.Minute)
}

// PollInterval returns the timeline refresh tick.
func (t TimelineConfig) PollInterval() time.Duration {
	return secondsOr(t.PollSeconds, 10*time.Second)
}

// SessionIdle returns the idle timeout for viewing sessions.
func (t TimelineConfig) SessionIdle() time.Duration {
	if t.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(t.SessionIdleMinutes) * time.Minute
}

// SweepInterval returns how often idle sessions are evicted.
func (t TimelineConfig) SweepInterval() time.Duration {
	return secondsOr(t.SessionSweepSeconds, time.Minute)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
