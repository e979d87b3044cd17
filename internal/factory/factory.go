package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"promo-service/internal/client"
	"promo-service/internal/config"
	"promo-service/internal/models"
	"promo-service/internal/ratelimit"
	"promo-service/internal/repository/promo"
	"promo-service/internal/service"
	"promo-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies. Backend
// selection happens exactly once here: with a Redis URL configured both
// the quota counter and the code store run against Redis; without one
// the process degrades to the in-memory counter and the file store.
type Factory struct {
	config *config.Config

	// Clients
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer

	// Core components
	quotaBackend ratelimit.Backend
	limiter      *ratelimit.Limiter
	promoStore   promo.Store
	promoService *service.PromoService

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{config: cfg}

	factory.initializeClients()
	if err := factory.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("redis_enabled", factory.redisClient != nil),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
	)

	return factory, nil
}

// initializeClients connects optional external services. A missing or
// unreachable backend degrades to the local fallback instead of failing
// startup.
func (f *Factory) initializeClients() {
	if f.config.HasRedis() {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			util.Warn("Redis initialization failed - falling back to local backends", util.ErrorField(err))
		} else {
			f.redisClient = redisClient
		}
	} else {
		util.Info("No Redis URL configured - using local backends")
	}

	if f.config.HasKafka() {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without redemption events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}
}

func (f *Factory) initializeComponents() error {
	if f.redisClient != nil {
		f.quotaBackend = ratelimit.NewRedisBackend(f.redisClient)
		f.promoStore = promo.NewRedisStore(f.redisClient)
	} else {
		f.quotaBackend = ratelimit.NewLocalBackend()
		store, err := promo.NewFileStore(f.config.Promo.FilePath)
		if err != nil {
			return err
		}
		f.promoStore = store
	}

	f.limiter = ratelimit.NewLimiter(
		f.quotaBackend,
		f.config.RateLimit.AllowList,
		f.config.RateLimit.DenyList,
		util.Get(),
	)

	var publisher service.EventPublisher
	if f.kafkaProducer != nil {
		publisher = &kafkaRedemptionPublisher{
			producer: f.kafkaProducer,
			topic:    f.config.Kafka.RedemptionTopic,
		}
	}

	f.promoService = service.NewPromoService(f.promoStore, publisher, util.Get())
	return nil
}

// kafkaRedemptionPublisher adapts the Kafka producer to the service's
// publisher interface.
type kafkaRedemptionPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

func (p *kafkaRedemptionPublisher) PublishRedemption(ctx context.Context, event *models.RedemptionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal redemption event: %w", err)
	}
	return p.producer.ProduceMessage(ctx, p.topic, []byte(event.Code), payload)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.promoStore == nil {
		healthErrors["promo_store"] = fmt.Errorf("promo store not initialized")
	}
	if f.limiter == nil {
		healthErrors["rate_limiter"] = fmt.Errorf("rate limiter not initialized")
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Limiter() *ratelimit.Limiter {
	return f.limiter
}

func (f *Factory) PromoStore() promo.Store {
	return f.promoStore
}

func (f *Factory) PromoService() *service.PromoService {
	return f.promoService
}
