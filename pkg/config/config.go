package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Kafka        KafkaConfig
	Store        StoreConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUPPLYHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"SUPPLYHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUPPLYHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUPPLYHUB_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SUPPLYHUB_LOG_FORMAT" default:"json"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"SUPPLYHUB_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUPPLYHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUPPLYHUB_DB_DSN"`
	Driver string `envconfig:"SUPPLYHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUPPLYHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"SUPPLYHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUPPLYHUB_DB_USER"`
	LegacyPassword string `envconfig:"SUPPLYHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUPPLYHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUPPLYHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUPPLYHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUPPLYHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUPPLYHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUPPLYHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"SUPPLYHUB_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUPPLYHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUPPLYHUB_REDIS_ADDR"`
	Password     string        `envconfig:"SUPPLYHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUPPLYHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUPPLYHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUPPLYHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUPPLYHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUPPLYHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUPPLYHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	// IdempotencyTTL bounds how long a replayed POST returns the stored response.
	IdempotencyTTL time.Duration `envconfig:"SUPPLYHUB_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SUPPLYHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SUPPLYHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SUPPLYHUB_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite         bool `envconfig:"SUPPLYHUB_USE_SQLITE" default:"false"`
	AutoMigrate       bool `envconfig:"SUPPLYHUB_AUTO_MIGRATE" default:"false"`
	EscrowAutoRelease bool `envconfig:"SUPPLYHUB_FEATURE_ESCROW_AUTO_RELEASE" default:"false"`
}

// KafkaConfig configures the notification publisher. An empty broker list
// falls back to log-only notifications.
type KafkaConfig struct {
	Brokers    []string      `envconfig:"SUPPLYHUB_KAFKA_BROKERS"`
	Topic      string        `envconfig:"SUPPLYHUB_KAFKA_NOTIFICATIONS_TOPIC" default:"supplyhub.notifications"`
	BufferSize int           `envconfig:"SUPPLYHUB_KAFKA_BUFFER_SIZE" default:"256"`
	BatchTime  time.Duration `envconfig:"SUPPLYHUB_KAFKA_BATCH_TIMEOUT" default:"50ms"`
}

func (k KafkaConfig) Enabled() bool {
	for _, b := range k.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

type StoreConfig struct {
	// MutationRetries caps optimistic retries on group order writes.
	MutationRetries uint64        `envconfig:"SUPPLYHUB_STORE_MUTATION_RETRIES" default:"5"`
	RetryBaseDelay  time.Duration `envconfig:"SUPPLYHUB_STORE_RETRY_BASE_DELAY" default:"10ms"`
}

type CronConfig struct {
	Interval     time.Duration `envconfig:"SUPPLYHUB_CRON_INTERVAL" default:"15m"`
	LockTTL      time.Duration `envconfig:"SUPPLYHUB_CRON_LOCK_TTL" default:"10m"`
	ReleaseBatch int           `envconfig:"SUPPLYHUB_CRON_RELEASE_BATCH" default:"100"`
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
