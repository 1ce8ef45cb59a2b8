// cmd/market-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"bazaar/internal/pkg/bootstrap"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/market/application"
	"bazaar/internal/service/market/infrastructure"
	"bazaar/internal/service/market/infrastructure/adapter"
	"bazaar/internal/service/market/interfaces"
)

const serviceName = "market-service"

// main 是应用的组装根 (Composition Root)：创建并装配所有依赖，然后启动。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to connect to mysql")
	}

	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic)
	notifier := adapter.NewNotificationKafkaAdapter(writer)

	svc := application.NewMarketApplicationService(
		infrastructure.NewGormListingRepository(db),
		infrastructure.NewGormOfferRepository(db),
		infrastructure.NewGormRatingRepository(db),
		notifier,
		otel.Tracer(serviceName),
		application.Options{
			FinalizeTimeout: cfg.App.FinalizeTimeout,
			VoidMaxAttempts: cfg.App.VoidRetry.MaxAttempts,
			VoidBaseDelay:   cfg.App.VoidRetry.BaseDelay,
		},
	)
	handler := interfaces.NewMarketHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				if err := notifier.Close(); err != nil {
					logger.L().Error().Err(err).Msg("error closing kafka writer")
				}
			},
		},
	})
}
