package client

import (
	"context"
	"database/sql"
	"time"

	"concierge/pkg/logger"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the long-lived connections shared by the process. Only the
// ones selected by configuration are non-nil.
type Client struct {
	Mongo     *mongo.Client
	SQL       *sql.DB
	SQLDriver string
	Redis     *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

// SetSQL opens a MySQL or SQLite handle. SQLite is limited to a single open
// connection so writers serialize instead of failing with SQLITE_BUSY.
// MySQL always reports matched rows, not changed rows, so a conditional
// update that rewrites identical values still counts as a hit.
func (c *Client) SetSQL(log *logger.Logger, driver, dsn string, connTimeout time.Duration) {
	driverName := driver
	if driver == "sqlite" {
		driverName = "sqlite3"
	}

	if driverName == "mysql" {
		mysqlCfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			log.Fatal("Invalid MySQL DSN", "error", err)
		}
		mysqlCfg.ClientFoundRows = true
		mysqlCfg.ParseTime = true
		mysqlCfg.Loc = time.UTC
		dsn = mysqlCfg.FormatDSN()
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		log.Fatal("Failed to open SQL database", "driver", driver, "error", err)
	}

	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to ping SQL database", "driver", driver, "error", err)
	}

	log.Info("Successfully connected to SQL database", "driver", driver)
	c.SQL = db
	c.SQLDriver = driver
}

func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping Redis", "addr", addr, "error", err)
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = rdb
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect MongoDB", "error", err)
		} else {
			log.Info("MongoDB disconnected")
		}
	}
	if c.SQL != nil {
		if err := c.SQL.Close(); err != nil {
			log.Error("Failed to close SQL database", "error", err)
		} else {
			log.Info("SQL database closed")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis", "error", err)
		} else {
			log.Info("Redis closed")
		}
	}
}
