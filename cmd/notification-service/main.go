// cmd/notification-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"bazaar/internal/pkg/bootstrap"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/pkg/redis"
	"bazaar/internal/service/notification/application"
	"bazaar/internal/service/notification/infrastructure"
	"bazaar/internal/service/notification/interfaces"
)

const serviceName = "notification-service"

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to connect to redis")
	}

	inbox, err := infrastructure.NewRedisInboxRepository(redisClient)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize inbox repository")
	}

	svc := application.NewNotificationApplicationService(inbox, inbox, otel.Tracer(serviceName))
	handler := interfaces.NewInboxHandler(svc)

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic, cfg.Infra.Kafka.ConsumerGroup)
	consumer := infrastructure.NewNotificationConsumerAdapter(reader, svc)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	consumer.Start(consumerCtx)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancelConsumer()
				consumer.Stop()
			},
			func(ctx context.Context) {
				if err := redisClient.Close(); err != nil {
					logger.L().Error().Err(err).Msg("error closing redis client")
				}
			},
		},
	})
}
