package config

const (
	EnvPrefix = "ECOVIVA"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "ECOVIVA_APP_ENV"
	EnvPort     = "ECOVIVA_APP_PORT"
	EnvDBDSN    = "ECOVIVA_DB_DSN"
	EnvDBHost   = "ECOVIVA_DB_HOST"
	EnvDBUser   = "ECOVIVA_DB_USER"
	EnvDBName   = "ECOVIVA_DB_NAME"
	EnvRedisURL = "ECOVIVA_REDIS_URL"

	EnvGCPProjectID = "ECOVIVA_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic       = "ECOVIVA_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub         = "ECOVIVA_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubNotificationTopic = "ECOVIVA_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub   = "ECOVIVA_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
