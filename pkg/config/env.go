package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	ProcessorStripe = "stripe"
	ProcessorSquare = "square"
)

const (
	EnvAppEnv               = "STOREFRONT_APP_ENV"
	EnvPort                 = "STOREFRONT_APP_PORT"
	EnvDBDSN                = "STOREFRONT_DB_DSN"
	EnvDBHost               = "STOREFRONT_DB_HOST"
	EnvDBUser               = "STOREFRONT_DB_USER"
	EnvDBName               = "STOREFRONT_DB_NAME"
	EnvUseSQLite            = "STOREFRONT_USE_SQLITE"
	EnvRedisURL             = "STOREFRONT_REDIS_URL"
	EnvJWTSecret            = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer            = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins           = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvPaymentsProcessor    = "STOREFRONT_PAYMENTS_PROCESSOR"
	EnvPubSubOrdersTopic    = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvGCPProjectID         = "STOREFRONT_GCP_PROJECT_ID"
	EnvStripeAPIKey         = "STOREFRONT_STRIPE_API_KEY"
	EnvSquareAccessToken    = "STOREFRONT_SQUARE_ACCESS_TOKEN"
	EnvCronInterval         = "STOREFRONT_CRON_INTERVAL"
	EnvOutboxMaxAttempts    = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	EnvEventingIdemTTL      = "STOREFRONT_EVENTING_IDEMPOTENCY_TTL"
	EnvPaymentsReconcile    = "STOREFRONT_PAYMENTS_RECONCILE_AFTER"
	EnvClientAPIBaseURL     = "STOREFRONT_CLIENT_API_BASE_URL"
	EnvClientRequestTimeout = "STOREFRONT_CLIENT_REQUEST_TIMEOUT"
	EnvClientLocalStore     = "STOREFRONT_CLIENT_LOCAL_STORE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
