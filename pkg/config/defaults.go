package config

import "time"

const (
	StoreMongo  = "mongo"
	StoreMySQL  = "mysql"
	StoreSQLite = "sqlite"
)

const (
	DefaultStoreDriver       = StoreMongo
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "concierge"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultNotificationQueue = "concierge.notifications"

	DefaultKafkaEnabled        = false
	DefaultKafkaEventsTopic    = "allocation.events"
	DefaultKafkaEventsDLQTopic = "allocation.events.dlq"

	DefaultSideEffectTimeout = 10 * time.Second
	DefaultRequestTTL        = 48 * time.Hour
	DefaultReconcileInterval = 0

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 64 * 1024

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)
