package config

// EnvPrefix namespaces every variable read by envconfig.
const EnvPrefix = "TABLEPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "TABLEPAY_APP_ENV"
	EnvPort     = "TABLEPAY_APP_PORT"
	EnvLogLevel = "TABLEPAY_LOG_LEVEL"

	EnvDBDriver   = "TABLEPAY_DB_DRIVER"
	EnvDBDSN      = "TABLEPAY_DB_DSN"
	EnvDBHost     = "TABLEPAY_DB_HOST"
	EnvDBUser     = "TABLEPAY_DB_USER"
	EnvDBName     = "TABLEPAY_DB_NAME"
	EnvSQLitePath = "TABLEPAY_SQLITE_PATH"

	EnvRedisURL  = "TABLEPAY_REDIS_URL"
	EnvRedisAddr = "TABLEPAY_REDIS_ADDR"

	EnvJWTSecret  = "TABLEPAY_JWT_SECRET"
	EnvJWTIssuer  = "TABLEPAY_JWT_ISSUER"
	EnvJWTExpMins = "TABLEPAY_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID       = "TABLEPAY_GCP_PROJECT_ID"
	EnvPubSubPaymentTopic = "TABLEPAY_PUBSUB_PAYMENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
