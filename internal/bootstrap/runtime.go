// Package bootstrap assembles the allocation engine from configuration. The
// HTTP service and the operator CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"concierge/internal/allocation/repository"
	"concierge/internal/allocation/service"
	"concierge/internal/allocation/validator"
	"concierge/internal/credentials"
	"concierge/internal/events"
	"concierge/internal/notifications"
	"concierge/internal/sideeffects"
	"concierge/pkg/config"
	"concierge/pkg/kafka"
	kafka_config "concierge/pkg/kafka/config"
	kafka_middleware "concierge/pkg/kafka/middleware"
)

type notifier interface {
	service.Notifier
	Close() error
}

type publisher interface {
	service.EventPublisher
	Close() error
}

// Runtime owns everything built on top of a connected config.
type Runtime struct {
	Store      repository.Store
	Service    service.AllocationService
	Dispatcher *sideeffects.Dispatcher

	cfg       *config.Config
	notifier  notifier
	publisher publisher
}

// New expects cfg.Connect to have run.
func New(cfg *config.Config) (*Runtime, error) {
	store := repository.NewStore(cfg)

	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := newPublisher(cfg)
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}

	dispatcher := sideeffects.NewDispatcher(cfg.Log, cfg.SideEffectTimeout)
	svc := service.NewAllocationService(
		store,
		validator.NewAllocationValidator(cfg.Log),
		cfg,
		service.SideEffects{
			Dispatcher:  dispatcher,
			Credentials: credentials.NewProvisioner(store, cfg.CredentialMasterKey, cfg.Log),
			Notifier:    notifier,
			Events:      publisher,
		},
	)
	cfg.Log.Info("Allocation service initialized", "store", cfg.StoreDriver)

	return &Runtime{
		Store:      store,
		Service:    svc,
		Dispatcher: dispatcher,
		cfg:        cfg,
		notifier:   notifier,
		publisher:  publisher,
	}, nil
}

// Close waits for in-flight side effects, then closes the sinks. Store
// connections belong to cfg.Client and are closed by cfg.GracefulShutdown.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.Dispatcher.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain side effects: %w", err))
	}
	if err := r.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notifier: %w", err))
	}
	if err := r.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	return errors.Join(errs...)
}

func newNotifier(cfg *config.Config) (notifier, error) {
	if cfg.RabbitMQURL == "" {
		cfg.Log.Info("RABBITMQ_URL not set, notifications are logged only")
		return notifications.NewLogNotifier(cfg.Log), nil
	}

	n, err := notifications.NewAMQPNotifier(cfg.RabbitMQURL, cfg.NotificationQueue, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	cfg.Log.Info("Notifications published to RabbitMQ", "queue", cfg.NotificationQueue)
	return n, nil
}

func newPublisher(cfg *config.Config) (publisher, error) {
	if !cfg.KafkaEnabled {
		return events.NewLogPublisher(cfg.Log), nil
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid Kafka configuration: %w", err)
	}
	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaEventsTopic, cfg.KafkaEventsDLQTopic, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create Kafka producer: %w", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	cfg.Log.Info("Status changes published to Kafka", "topic", cfg.KafkaEventsTopic)
	return events.NewKafkaPublisher(producer), nil
}
