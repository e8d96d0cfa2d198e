package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"concierge/pkg/client"
	"concierge/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreDriver       string
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration
	SQLDSN            string

	Port string

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL       string
	NotificationQueue string

	KafkaEnabled        bool
	KafkaEventsTopic    string
	KafkaEventsDLQTopic string

	CredentialMasterKey string
	SideEffectTimeout   time.Duration
	RequestTTL          time.Duration
	ReconcileInterval   time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads .env (when present) and the process environment, validates the
// result and exits on invalid configuration.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver:       getEnvStr(EnvStoreDriver, DefaultStoreDriver),
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		SQLDSN:            getEnvStr(EnvSQLDSN, ""),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, 0),

		RabbitMQURL:       getEnvStr(EnvRabbitMQURL, ""),
		NotificationQueue: getEnvStr(EnvNotificationQueue, DefaultNotificationQueue),

		KafkaEnabled:        getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaEventsTopic:    getEnvStr(EnvKafkaEventsTopic, DefaultKafkaEventsTopic),
		KafkaEventsDLQTopic: getEnvStr(EnvKafkaEventsDLQTopic, DefaultKafkaEventsDLQTopic),

		CredentialMasterKey: getEnvStr(EnvCredentialMasterKey, ""),
		SideEffectTimeout:   getEnvDuration(EnvSideEffectTimeout, DefaultSideEffectTimeout),
		RequestTTL:          getEnvDuration(EnvRequestTTL, DefaultRequestTTL),
		ReconcileInterval:   getEnvDuration(EnvReconcileInterval, DefaultReconcileInterval),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// Connect opens the store selected by StoreDriver plus the optional Redis
// client. Failures to reach the store are fatal.
func (cfg *Config) Connect() {
	switch cfg.StoreDriver {
	case StoreMongo:
		cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
	default:
		cfg.Client.SetSQL(cfg.Log, cfg.StoreDriver, cfg.SQLDSN, cfg.MongoConnTimeout)
	}
	if cfg.RedisAddr != "" {
		cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoreMySQL, StoreSQLite:
		if cfg.SQLDSN == "" {
			errors = append(errors, fmt.Sprintf("SQL_DSN is required for store driver %q", cfg.StoreDriver))
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [mongo, mysql, sqlite], got: %s", cfg.StoreDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.JWTSecret == "" {
		errors = append(errors, "JWTSecret cannot be empty")
	}
	if len(cfg.CredentialMasterKey) < 32 {
		errors = append(errors, "CredentialMasterKey must be at least 32 characters")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.KafkaEnabled && cfg.KafkaEventsTopic == "" {
		errors = append(errors, "KafkaEventsTopic cannot be empty when Kafka is enabled")
	}
	if cfg.NotificationQueue == "" {
		errors = append(errors, "NotificationQueue cannot be empty")
	}

	if cfg.SideEffectTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("SideEffectTimeout must be positive, got: %s", cfg.SideEffectTimeout))
	}
	if cfg.RequestTTL <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTTL must be positive, got: %s", cfg.RequestTTL))
	}
	if cfg.ReconcileInterval < 0 {
		errors = append(errors, fmt.Sprintf("ReconcileInterval cannot be negative, got: %s", cfg.ReconcileInterval))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"sql_dsn_set", cfg.SQLDSN != "",
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"redis_addr", cfg.RedisAddr,
		"rabbitmq_set", cfg.RabbitMQURL != "",
		"notification_queue", cfg.NotificationQueue,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_events_topic", cfg.KafkaEventsTopic,
		"side_effect_timeout", cfg.SideEffectTimeout,
		"request_ttl", cfg.RequestTTL,
		"reconcile_interval", cfg.ReconcileInterval,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 20
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
