package config

const (
	EnvStoreDriver       = "STORE_DRIVER"
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvSQLDSN            = "SQL_DSN"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvRabbitMQURL       = "RABBITMQ_URL"
	EnvNotificationQueue = "NOTIFICATION_QUEUE"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvKafkaEventsTopic    = "KAFKA_EVENTS_TOPIC"
	EnvKafkaEventsDLQTopic = "KAFKA_EVENTS_DLQ_TOPIC"

	EnvCredentialMasterKey = "CREDENTIAL_MASTER_KEY"
	EnvSideEffectTimeout   = "SIDE_EFFECT_TIMEOUT"
	EnvRequestTTL          = "REQUEST_TTL"
	EnvReconcileInterval   = "RECONCILE_INTERVAL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
