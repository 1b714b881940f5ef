package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Idempotency  IdempotencyConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("%s is required for the postgres driver", EnvDBDSN)
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("%s is required for the sqlite driver", EnvSQLitePath)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, c.DB.Driver)
	}
	if c.JWT.ExpirationMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvJWTExpMins)
	}
	if c.Idempotency.Enabled && c.Redis.URL == "" && c.Redis.Address == "" {
		return fmt.Errorf("%s or %s is required when idempotency is enabled", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLEPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLEPAY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TABLEPAY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TABLEPAY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TABLEPAY_LOG_WARN_STACK" default:"false"`

	// CORSOrigins lists the POS web clients allowed to call the API.
	CORSOrigins []string `envconfig:"TABLEPAY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TABLEPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	Driver     string `envconfig:"TABLEPAY_DB_DRIVER" default:"postgres"`
	DSN        string `envconfig:"TABLEPAY_DB_DSN"`
	SQLitePath string `envconfig:"TABLEPAY_SQLITE_PATH"`

	LegacyHost     string `envconfig:"TABLEPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLEPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLEPAY_DB_USER"`
	LegacyPassword string `envconfig:"TABLEPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLEPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLEPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLEPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLEPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLEPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLEPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLEPAY_REDIS_URL"`
	Address      string        `envconfig:"TABLEPAY_REDIS_ADDR"`
	Password     string        `envconfig:"TABLEPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLEPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLEPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLEPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLEPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLEPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLEPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TABLEPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLEPAY_JWT_ISSUER" default:"tablepay"`
	ExpirationMinutes int    `envconfig:"TABLEPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TABLEPAY_AUTO_MIGRATE" default:"false"`
}

// IdempotencyConfig controls replay protection for payment POSTs.
type IdempotencyConfig struct {
	Enabled bool          `envconfig:"TABLEPAY_IDEMPOTENCY_ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"TABLEPAY_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TABLEPAY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"TABLEPAY_PUBSUB_PAYMENTS_TOPIC" default:"tablepay-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TABLEPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TABLEPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TABLEPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig drives the cron worker's ledger housekeeping jobs.
type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"TABLEPAY_MAINTENANCE_INTERVAL" default:"15m"`
	OutboxRetentionDays int           `envconfig:"TABLEPAY_OUTBOX_RETENTION_DAYS" default:"30"`
	ReconcileLookback   time.Duration `envconfig:"TABLEPAY_RECONCILE_LOOKBACK" default:"1h"`
	ReconcileBatchSize  int           `envconfig:"TABLEPAY_RECONCILE_BATCH_SIZE" default:"200"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.Driver != DriverPostgres {
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
