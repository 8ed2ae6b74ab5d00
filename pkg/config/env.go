package config

// EnvPrefix is passed to envconfig; every variable is spelled out in the struct tags.
const EnvPrefix = "BAZAAR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"

	defaultSQLiteDSN = "file:bazaar.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvPort     = "BAZAAR_APP_PORT"
	EnvLogLevel = "BAZAAR_LOG_LEVEL"

	EnvDBDSN     = "BAZAAR_DB_DSN"
	EnvDBDriver  = "BAZAAR_DB_DRIVER"
	EnvDBHost    = "BAZAAR_DB_HOST"
	EnvDBUser    = "BAZAAR_DB_USER"
	EnvDBName    = "BAZAAR_DB_NAME"
	EnvUseSQLite = "BAZAAR_USE_SQLITE"

	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret  = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer  = "BAZAAR_JWT_ISSUER"
	EnvJWTExpMins = "BAZAAR_JWT_EXPIRATION_MINUTES"

	EnvShippingFee           = "BAZAAR_CHECKOUT_SHIPPING_FEE"
	EnvFreeShippingThreshold = "BAZAAR_CHECKOUT_FREE_SHIPPING_THRESHOLD"
	EnvPaymentDeadline       = "BAZAAR_PAYMENT_DEADLINE"
	EnvRefundOnCancel        = "BAZAAR_ORDERS_REFUND_ON_CANCEL"

	EnvEventingBroker = "BAZAAR_EVENTING_BROKER"
	EnvKafkaBrokers   = "BAZAAR_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
