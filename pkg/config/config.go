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
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	Orders       OrdersConfig
	Cron         CronConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string   `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BAZAAR_CORS_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr exposes /metrics from worker processes; empty disables it.
	MetricsAddr  string   `envconfig:"BAZAAR_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BAZAAR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the shipping rules applied at order placement.
type CheckoutConfig struct {
	ShippingFee           int64  `envconfig:"BAZAAR_CHECKOUT_SHIPPING_FEE" default:"40000"`
	FreeShippingThreshold int64  `envconfig:"BAZAAR_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"500000"`
	Currency              string `envconfig:"BAZAAR_CHECKOUT_CURRENCY" default:"vnd"`
}

type PaymentsConfig struct {
	Deadline              time.Duration `envconfig:"BAZAAR_PAYMENT_DEADLINE" default:"15m"`
	WebhookIdempotencyTTL time.Duration `envconfig:"BAZAAR_PAYMENT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// OrdersConfig carries product decisions for the status state machine.
type OrdersConfig struct {
	// RefundOnCancel flips payment to refunded when a paid order is cancelled.
	// Returned orders are always refunded.
	RefundOnCancel bool `envconfig:"BAZAAR_ORDERS_REFUND_ON_CANCEL" default:"false"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"1m"`
	LockTTL               time.Duration `envconfig:"BAZAAR_CRON_LOCK_TTL" default:"5m"`
	OutboxRetention       time.Duration `envconfig:"BAZAAR_OUTBOX_RETENTION" default:"720h"`
	DeadLetterRetention   time.Duration `envconfig:"BAZAAR_OUTBOX_DLQ_RETENTION" default:"2160h"`
	NotificationRetention time.Duration `envconfig:"BAZAAR_NOTIFICATION_RETENTION" default:"720h"`
}

// RateLimitConfig throttles order placement per customer.
type RateLimitConfig struct {
	PlacementWindow time.Duration `envconfig:"BAZAAR_RATE_LIMIT_PLACEMENT_WINDOW" default:"1m"`
	PlacementLimit  int           `envconfig:"BAZAAR_RATE_LIMIT_PLACEMENT_LIMIT" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"BAZAAR_STRIPE_API_KEY"`
	Secret string `envconfig:"BAZAAR_STRIPE_SECRET"`
	Env    string `envconfig:"BAZAAR_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BAZAAR_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"BAZAAR_PUBSUB_ORDERS_TOPIC" default:"bazaar-order-events"`
	NotificationTopic string `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_TOPIC" default:"bazaar-notification-events"`
}

type KafkaConfig struct {
	Brokers  []string `envconfig:"BAZAAR_KAFKA_BROKERS"`
	ClientID string   `envconfig:"BAZAAR_KAFKA_CLIENT_ID" default:"bazaar-outbox"`
}

type EventingConfig struct {
	Broker string `envconfig:"BAZAAR_EVENTING_BROKER" default:"pubsub"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvEventingBroker, BrokerPubSub, BrokerKafka)
	}
}

// IsKafka reports whether outbox events go to Kafka instead of Pub/Sub.
func (e EventingConfig) IsKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Broker), BrokerKafka)
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
