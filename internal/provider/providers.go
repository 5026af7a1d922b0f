package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/memorydb"
	"github.com/thaitype/monguard-sub000/internal/dao/mongodb"
	"github.com/thaitype/monguard-sub000/internal/dao/redisdb"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/db"
	"github.com/thaitype/monguard-sub000/internal/delta"
	"github.com/thaitype/monguard-sub000/internal/mq"
	"github.com/thaitype/monguard-sub000/internal/mq/noop"
	"github.com/thaitype/monguard-sub000/internal/mq/rabbitmq"
	"github.com/thaitype/monguard-sub000/pkg/snowflake"
)

// --- Type-safe configuration values for dependency injection ---

type AppName string
type AppMode string

// RedisNamespace is a custom type for the Redis key namespace.
type RedisNamespace string

func ProvideAppName(c *conf.AppConfig) AppName {
	return AppName(c.Name)
}

func ProvideAppMode(c *conf.AppConfig) AppMode {
	return AppMode(c.Mode)
}

// --- Providers for application components ---

// ProvideDatabase creates a new database instance from a client and config.
func ProvideDatabase(client *mongo.Client, cfg *conf.MongodbConfig) *mongo.Database {
	return client.Database(cfg.DB)
}

// ProvideTransactionManager picks the real MongoDB transaction manager when
// transactions are enabled and the no-op one otherwise. The optimistic
// strategy never opens a session, so the no-op manager costs nothing there.
func ProvideTransactionManager(cfg *conf.ConcurrencyConfig, client *mongo.Client) db.TransactionManager {
	if cfg != nil && cfg.TransactionsEnabled != nil && *cfg.TransactionsEnabled {
		return db.NewMongoTransactionManager(client)
	}
	return db.NewNoOpTransactionManager()
}

// ProvideDeltaComputer builds the diff engine with its default bounds and
// blacklist.
func ProvideDeltaComputer() *delta.Computer {
	return delta.NewComputer(delta.DefaultOptions())
}

// ProvideOutboxRepository selects the outbox backend from configuration.
// "mongo" shares the guarded database, "redis" uses a dedicated Redis
// instance, and "memory" keeps everything in process for development.
func ProvideOutboxRepository(appConfig *conf.AppConfig, database *mongo.Database, logger *zap.Logger) (repository.OutboxRepository, func(), error) {
	cfg := appConfig.OutboxConfig
	switch cfg.Backend {
	case "redis":
		client, cleanup, err := ProvideRedisClient(appConfig.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		namespace := string(ProvideRedisNamespace(appConfig))
		return redisdb.NewOutboxDAO(client, cfg, namespace, logger), cleanup, nil
	case "memory":
		return memorydb.NewOutboxStore(cfg), func() {}, nil
	default:
		return mongodb.NewOutboxDAO(database, cfg, logger), func() {}, nil
	}
}

// ProvidePublisher returns the message queue publisher for the relay. Dev and
// test modes get the no-op publisher so the relay can run without a broker.
func ProvidePublisher(mode AppMode, cfg *conf.RabbitMQConfig, logger *zap.Logger) (mq.Publisher, func(), error) {
	if mode == "dev" || mode == "test" {
		publisher := noop.NewPublisher()
		return publisher, func() {}, nil
	}
	publisher, err := rabbitmq.NewPublisher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

// ProvideMachineID attempts to parse a numeric id from the hostname (e.g., for StatefulSets).
// It defaults to 1 if parsing fails, which is safe for single-instance/dev environments.
func ProvideMachineID() uint16 {
	hostname, err := os.Hostname()
	if err != nil {
		fmt.Printf("WARN: Cannot get hostname, defaulting machine id to 1: %v\n", err)
		return 1
	}

	parts := strings.Split(hostname, "-")
	if len(parts) < 2 {
		fmt.Printf("WARN: Hostname '%s' does not fit 'name-id' format, defaulting machine id to 1\n", hostname)
		return 1
	}

	id, err := strconv.ParseUint(parts[len(parts)-1], 10, 16)
	if err != nil {
		fmt.Printf("WARN: Cannot parse id from hostname '%s', defaulting machine id to 1: %v\n", hostname, err)
		return 1
	}

	return uint16(id)
}

// ProvideIDGenerator builds the serial generator stamped onto audit entries,
// with the machine id derived from the hostname.
func ProvideIDGenerator() (*snowflake.Generator, error) {
	return snowflake.NewGenerator(ProvideMachineID())
}

// ProvideRecorder assembles the audit pipeline against the guarded database.
// Embedding applications hand the resulting recorder to logic.NewStrategy.
func ProvideRecorder(cfg *conf.AuditConfig, database *mongo.Database, outboxRepo repository.OutboxRepository, generator *snowflake.Generator, logger *zap.Logger) (*audit.Recorder, error) {
	auditRepo := mongodb.NewAuditLogDAO(database, logger)
	return audit.NewRecorder(cfg, auditRepo, outboxRepo, ProvideDeltaComputer(), generator, logger)
}

// ProvideRedisNamespace creates a namespace string for Redis keys.
func ProvideRedisNamespace(cfg *conf.AppConfig) RedisNamespace {
	return RedisNamespace(fmt.Sprintf("%s:%s:", cfg.Name, cfg.Mode))
}

// ProvideRedisClient creates and returns a new Redis client based on the application configuration.
// It also returns a cleanup function to close the connection.
func ProvideRedisClient(cfg *conf.RedisConfig) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Check the connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	cleanup := func() {
		client.Close()
	}

	return client, cleanup, nil
}
