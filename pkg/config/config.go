package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Workflow     WorkflowConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Redis.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Workflow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FOODFUND_APP_ENV" required:"true"`
	Port         string   `envconfig:"FOODFUND_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FOODFUND_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FOODFUND_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FOODFUND_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FOODFUND_SERVICE_KIND" default:"api"`
}

// DBConfig accepts either a full DSN or discrete postgres settings.
type DBConfig struct {
	DSN    string `envconfig:"FOODFUND_DB_DSN"`
	Driver string `envconfig:"FOODFUND_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FOODFUND_DB_HOST"`
	Port     int    `envconfig:"FOODFUND_DB_PORT" default:"5432"`
	User     string `envconfig:"FOODFUND_DB_USER"`
	Password string `envconfig:"FOODFUND_DB_PASSWORD"`
	Name     string `envconfig:"FOODFUND_DB_NAME"`
	SSLMode  string `envconfig:"FOODFUND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FOODFUND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FOODFUND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FOODFUND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FOODFUND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FOODFUND_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FOODFUND_REDIS_URL"`
	Address      string        `envconfig:"FOODFUND_REDIS_ADDR"`
	Password     string        `envconfig:"FOODFUND_REDIS_PASSWORD"`
	DB           int           `envconfig:"FOODFUND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FOODFUND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FOODFUND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FOODFUND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FOODFUND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FOODFUND_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"FOODFUND_REDIS_KEY_PREFIX" default:"ff"`
}

func (r RedisConfig) validate() error {
	if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("one of %s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

// JWTConfig verifies bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret            string        `envconfig:"FOODFUND_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"FOODFUND_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"FOODFUND_JWT_EXPIRATION_MINUTES" default:"60"`
	ClockSkew         time.Duration `envconfig:"FOODFUND_JWT_CLOCK_SKEW" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FOODFUND_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FOODFUND_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FOODFUND_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FOODFUND_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FOODFUND_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic            string `envconfig:"FOODFUND_PUBSUB_DOMAIN_TOPIC" required:"true"`
	SettlementTopic        string `envconfig:"FOODFUND_PUBSUB_SETTLEMENT_TOPIC" default:"ff-donation-settlements"`
	SettlementSubscription string `envconfig:"FOODFUND_PUBSUB_SETTLEMENT_SUBSCRIPTION" required:"true"`
	NotificationTopic      string `envconfig:"FOODFUND_PUBSUB_NOTIFICATION_TOPIC" default:"ff-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FOODFUND_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FOODFUND_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FOODFUND_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// WorkflowConfig carries the phase workflow policies that are deployment choices.
type WorkflowConfig struct {
	MaxAuditResubmissions     int           `envconfig:"FOODFUND_WORKFLOW_MAX_AUDIT_RESUBMISSIONS" default:"3"`
	MaxDisbursementRejections int           `envconfig:"FOODFUND_WORKFLOW_MAX_DISBURSEMENT_REJECTIONS" default:"3"`
	SequentialPhases          bool          `envconfig:"FOODFUND_WORKFLOW_SEQUENTIAL_PHASES" default:"false"`
	CancelRoles               []string      `envconfig:"FOODFUND_WORKFLOW_CANCEL_ROLES" default:"platform_admin"`
	PhaseLockTTL              time.Duration `envconfig:"FOODFUND_WORKFLOW_PHASE_LOCK_TTL" default:"30s"`
	PhaseLockWait             time.Duration `envconfig:"FOODFUND_WORKFLOW_PHASE_LOCK_WAIT" default:"5s"`
	SweepThreshold            string        `envconfig:"FOODFUND_WORKFLOW_SWEEP_THRESHOLD" default:"0.5"`
}

// SweepRatio returns the funding ratio under which a closed campaign is swept.
func (w WorkflowConfig) SweepRatio() decimal.Decimal {
	ratio, err := decimal.NewFromString(strings.TrimSpace(w.SweepThreshold))
	if err != nil {
		return decimal.NewFromFloat(0.5)
	}
	return ratio
}

// CanCancel reports whether the role is configured to cancel phases and campaigns.
func (w WorkflowConfig) CanCancel(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, allowed := range w.CancelRoles {
		if strings.EqualFold(strings.TrimSpace(allowed), role) {
			return true
		}
	}
	return false
}

func (w WorkflowConfig) validate() error {
	if w.MaxAuditResubmissions < 0 {
		return fmt.Errorf("%s must be non-negative", EnvWorkflowMaxAuditResubmissions)
	}
	if w.MaxDisbursementRejections < 0 {
		return fmt.Errorf("%s must be non-negative", EnvWorkflowMaxDisbursementRejections)
	}
	ratio, err := decimal.NewFromString(strings.TrimSpace(w.SweepThreshold))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvWorkflowSweepThreshold, err)
	}
	if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvWorkflowSweepThreshold)
	}
	return nil
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"FOODFUND_CRON_INTERVAL" default:"1m"`
	JobTimeout          time.Duration `envconfig:"FOODFUND_CRON_JOB_TIMEOUT" default:"5m"`
	CloseBatchSize      int           `envconfig:"FOODFUND_CRON_CLOSE_BATCH_SIZE" default:"100"`
	OutboxRetentionDays int           `envconfig:"FOODFUND_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	LockTTL             time.Duration `envconfig:"FOODFUND_CRON_LOCK_TTL" default:"10m"`
}

// RateLimitConfig bounds authenticated API traffic per user. Limit 0 disables it.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"FOODFUND_RATE_LIMIT_WINDOW" default:"1m"`
	Limit      int           `envconfig:"FOODFUND_RATE_LIMIT_REQUESTS" default:"120"`
	WriteLimit int           `envconfig:"FOODFUND_RATE_LIMIT_WRITE_REQUESTS" default:"30"`
}

func (db *DBConfig) resolveDSN() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%s: unsupported driver %q", EnvDBDriver, db.Driver)
	}
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		return fmt.Errorf("%s is required for sqlite", EnvDBDSN)
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
