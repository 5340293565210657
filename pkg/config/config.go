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
	FeatureFlags FeatureFlagsConfig
	Gateway      GatewayConfig
	Orders       OrdersConfig
	Inventory    InventoryConfig
	Compensation CompensationConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ECOVIVA_APP_ENV" required:"true"`
	Port         string `envconfig:"ECOVIVA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ECOVIVA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ECOVIVA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ECOVIVA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ECOVIVA_DB_DSN"`
	Driver string `envconfig:"ECOVIVA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ECOVIVA_DB_HOST"`
	LegacyPort     int    `envconfig:"ECOVIVA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ECOVIVA_DB_USER"`
	LegacyPassword string `envconfig:"ECOVIVA_DB_PASSWORD"`
	LegacyName     string `envconfig:"ECOVIVA_DB_NAME"`
	LegacySSLMode  string `envconfig:"ECOVIVA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ECOVIVA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ECOVIVA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ECOVIVA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ECOVIVA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ECOVIVA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ECOVIVA_REDIS_ADDR"`
	Password     string        `envconfig:"ECOVIVA_REDIS_PASSWORD"`
	DB           int           `envconfig:"ECOVIVA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ECOVIVA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ECOVIVA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ECOVIVA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ECOVIVA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ECOVIVA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ECOVIVA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ECOVIVA_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig tunes the simulated card acquirer.
type GatewayConfig struct {
	SuccessRate float64       `envconfig:"ECOVIVA_GATEWAY_SUCCESS_RATE" default:"0.9"`
	Latency     time.Duration `envconfig:"ECOVIVA_GATEWAY_LATENCY" default:"3s"`
}

type OrdersConfig struct {
	TaxRate          float64       `envconfig:"ECOVIVA_ORDERS_TAX_RATE" default:"0.19"`
	ShippingFlatFee  float64       `envconfig:"ECOVIVA_ORDERS_SHIPPING_FLAT_FEE" default:"0"`
	DeliveryLeadTime time.Duration `envconfig:"ECOVIVA_ORDERS_DELIVERY_LEAD_TIME" default:"168h"`
}

type InventoryConfig struct {
	DefaultMinimum int `envconfig:"ECOVIVA_INVENTORY_DEFAULT_MINIMUM" default:"5"`
}

// CompensationConfig tunes the retry queue drained by the worker.
type CompensationConfig struct {
	QueueKey     string        `envconfig:"ECOVIVA_COMPENSATION_QUEUE_KEY" default:"ecoviva:compensation:pending"`
	PollInterval time.Duration `envconfig:"ECOVIVA_COMPENSATION_POLL_INTERVAL" default:"5s"`
	MaxAttempts  int           `envconfig:"ECOVIVA_COMPENSATION_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ECOVIVA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ECOVIVA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ECOVIVA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"ECOVIVA_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"ECOVIVA_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"ECOVIVA_PUBSUB_NOTIFICATION_TOPIC" default:"ecoviva-notification-events"`
	NotificationSubscription string `envconfig:"ECOVIVA_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ECOVIVA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ECOVIVA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ECOVIVA_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
