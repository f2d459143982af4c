package config

const EnvPrefix = "SUPPLYHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names read by Load. Tests and cmd entrypoints use them
// instead of repeating the literals.
const (
	EnvAppEnv       = "SUPPLYHUB_APP_ENV"
	EnvPort         = "SUPPLYHUB_APP_PORT"
	EnvLogLevel     = "SUPPLYHUB_LOG_LEVEL"
	EnvLogWarnStack = "SUPPLYHUB_LOG_WARN_STACK"
	EnvServiceKind  = "SUPPLYHUB_SERVICE_KIND"

	EnvDBDSN      = "SUPPLYHUB_DB_DSN"
	EnvDBDriver   = "SUPPLYHUB_DB_DRIVER"
	EnvDBHost     = "SUPPLYHUB_DB_HOST"
	EnvDBPort     = "SUPPLYHUB_DB_PORT"
	EnvDBUser     = "SUPPLYHUB_DB_USER"
	EnvDBPassword = "SUPPLYHUB_DB_PASSWORD"
	EnvDBName     = "SUPPLYHUB_DB_NAME"
	EnvDBSSLMode  = "SUPPLYHUB_DB_SSLMODE"

	EnvRedisURL = "SUPPLYHUB_REDIS_URL"

	EnvJWTSecret  = "SUPPLYHUB_JWT_SECRET"
	EnvJWTIssuer  = "SUPPLYHUB_JWT_ISSUER"
	EnvJWTExpMins = "SUPPLYHUB_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite          = "SUPPLYHUB_USE_SQLITE"
	EnvAutoMigrate        = "SUPPLYHUB_AUTO_MIGRATE"
	EnvEscrowAutoRelease  = "SUPPLYHUB_FEATURE_ESCROW_AUTO_RELEASE"
	EnvKafkaBrokers       = "SUPPLYHUB_KAFKA_BROKERS"
	EnvKafkaTopic         = "SUPPLYHUB_KAFKA_NOTIFICATIONS_TOPIC"
	EnvKafkaBufferSize    = "SUPPLYHUB_KAFKA_BUFFER_SIZE"
	EnvStoreMutationTries = "SUPPLYHUB_STORE_MUTATION_RETRIES"
	EnvCronInterval       = "SUPPLYHUB_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
