// cmd/reconciler/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"bazaar/internal/pkg/bootstrap"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/market/application"
	"bazaar/internal/service/market/infrastructure"
	"bazaar/internal/service/market/infrastructure/adapter"
)

const serviceName = "reconciler"

var sweepCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bazaar_reconcile_cancelled_total",
	Help: "Total number of stranded offers cancelled by the reconciliation sweep.",
})

// runSweepLoop 周期性执行残留报价清扫，直到 ctx 取消。
func runSweepLoop(ctx context.Context, svc *application.MarketApplicationService, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.L().Info().Dur("interval", interval).Int("batch", batch).Msg("reconciliation sweep started")
	for {
		select {
		case <-ticker.C:
			cancelled, err := svc.ReconcileStrandedOffers(ctx, batch)
			if err != nil {
				logger.L().Error().Err(err).Msg("reconciliation sweep failed, will retry next tick")
				continue
			}
			sweepCancelled.Add(float64(cancelled))
		case <-ctx.Done():
			logger.L().Info().Msg("reconciliation sweep stopped")
			return
		}
	}
}

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
		application.Options{},
	)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go runSweepLoop(sweepCtx, svc, cfg.App.ReconcileInterval, cfg.App.ReconcileBatch)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8085,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancelSweep()
				if err := notifier.Close(); err != nil {
					logger.L().Error().Err(err).Msg("error closing kafka writer")
				}
			},
		},
	})
}
