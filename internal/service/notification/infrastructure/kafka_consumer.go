// internal/service/notification/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	marketdomain "bazaar/internal/service/market/domain"
	"bazaar/internal/service/notification/application"
)

// NotificationConsumerAdapter 是驱动适配器：监听 notifications topic，
// 把事件交给应用服务物化为收件箱记录。
type NotificationConsumerAdapter struct {
	reader  *kafka.Reader
	appSvc  *application.NotificationApplicationService
	wg      sync.WaitGroup
	stopped bool
}

func NewNotificationConsumerAdapter(reader *kafka.Reader, appSvc *application.NotificationApplicationService) *NotificationConsumerAdapter {
	return &NotificationConsumerAdapter{
		reader: reader,
		appSvc: appSvc,
	}
}

// Start 开始消费。这是一个长期运行的方法，内部起 goroutine。
func (a *NotificationConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.L().Info().Str("topic", a.reader.Config().Topic).Msg("notification consumer started")
		for {
			if a.stopped {
				return
			}
			// FetchMessage 而不是 ReadMessage，处理成功后才提交 offset，
			// 失败的消息会被重投，保证 at-least-once
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.L().Info().Msg("notification consumer shutting down")
					return
				}
				logger.L().Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(time.Second)
				continue
			}

			if a.processMessage(ctx, msg) {
				if err := a.reader.CommitMessages(ctx, msg); err != nil {
					logger.L().Error().Err(err).Msg("failed to commit message offset")
				}
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *NotificationConsumerAdapter) Stop() {
	a.stopped = true
	_ = a.reader.Close()
	a.wg.Wait()
	logger.L().Info().Msg("notification consumer stopped")
}

// processMessage 反序列化事件并调用应用服务，返回消息是否可以提交。
func (a *NotificationConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) bool {
	var event marketdomain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 格式坏掉的消息重投也没有意义，直接提交跳过
		logger.L().Error().Err(err).Msg("failed to unmarshal notification event, skipping")
		return true
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	if err := a.appSvc.HandleEvent(ctx, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event", event.EventID).Msg("failed to handle notification event")
		return false
	}
	return true
}
