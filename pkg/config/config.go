package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

const (
	EnvPrefix = "EDIHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "EDIHUB_DB_DSN"
	EnvDBHost = "EDIHUB_DB_HOST"
	EnvDBUser = "EDIHUB_DB_USER"
	EnvDBName = "EDIHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Mailbox      MailboxConfig
	Sender       SenderConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sender.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EDIHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"EDIHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EDIHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EDIHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EDIHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EDIHUB_DB_DSN"`
	Driver string `envconfig:"EDIHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EDIHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"EDIHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EDIHUB_DB_USER"`
	LegacyPassword string `envconfig:"EDIHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"EDIHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"EDIHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EDIHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EDIHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EDIHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EDIHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EDIHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EDIHUB_REDIS_ADDR"`
	Password     string        `envconfig:"EDIHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"EDIHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EDIHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EDIHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EDIHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EDIHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EDIHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EDIHUB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EDIHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EDIHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EDIHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"EDIHUB_GCS_BUCKET_NAME" required:"true"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"EDIHUB_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription string `envconfig:"EDIHUB_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

// MailboxConfig tunes the bundling trigger. A bundle closes when its oldest
// message is older than BundlingWindow or it holds MaxBundleSize messages.
type MailboxConfig struct {
	BundlingWindow   time.Duration `envconfig:"EDIHUB_MAILBOX_BUNDLING_WINDOW" default:"1h"`
	MaxBundleSize    int           `envconfig:"EDIHUB_MAILBOX_MAX_BUNDLE_SIZE" default:"2000"`
	SweepInterval    time.Duration `envconfig:"EDIHUB_MAILBOX_SWEEP_INTERVAL" default:"30s"`
	PurgeRetention   time.Duration `envconfig:"EDIHUB_MAILBOX_PURGE_RETENTION" default:"24h"`
	DocumentCacheTTL time.Duration `envconfig:"EDIHUB_MAILBOX_DOCUMENT_CACHE_TTL" default:"30m"`
}

// SenderConfig identifies the hub itself in generated document headers.
type SenderConfig struct {
	ActorNumber string `envconfig:"EDIHUB_SENDER_ACTOR_NUMBER" required:"true"`
	ActorRole   string `envconfig:"EDIHUB_SENDER_ACTOR_ROLE" default:"DGL"`
}

func (s SenderConfig) validate() error {
	if strings.TrimSpace(s.ActorNumber) == "" {
		return fmt.Errorf("sender actor number is required")
	}
	if !enums.ActorRole(s.ActorRole).IsValid() {
		return fmt.Errorf("invalid sender actor role %q", s.ActorRole)
	}
	return nil
}

// Role returns the typed sender role.
func (s SenderConfig) Role() enums.ActorRole {
	return enums.ActorRole(s.ActorRole)
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EDIHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EDIHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EDIHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EDIHUB_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
