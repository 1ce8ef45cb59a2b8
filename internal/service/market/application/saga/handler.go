// internal/service/market/application/saga/handler.go
package saga

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/service/market/domain"
	"bazaar/internal/service/market/domain/port"
)

// FinalizeContext 在成交协议的各步骤之间传递上下文数据。
// 所有外部依赖都是抽象接口，步骤实现不感知具体存储。
type FinalizeContext struct {
	Ctx         context.Context
	Listing     *domain.Listing
	ChosenOffer *domain.Offer
	SellerID    uuid.UUID
	Tracer      trace.Tracer

	Listings domain.ListingRepository
	Offers   domain.OfferRepository
	Notifier port.NotificationProducer

	// 步骤 3 的快照读重试参数
	VoidMaxAttempts int
	VoidBaseDelay   time.Duration

	// 步骤 3 写入、步骤 4 消费：被成功作废的竞争买家
	cancelledMu     sync.Mutex
	cancelledBuyers []uuid.UUID

	// 补偿栈：后注册先执行
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册一个补偿动作，触发时按注册的逆序执行。
func (c *FinalizeContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 执行所有已注册的补偿动作。
func (c *FinalizeContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Str("listing", c.Listing.ID.String()).
		Int("count", len(c.compensations)).
		Msg("executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

func (c *FinalizeContext) addCancelledBuyer(id uuid.UUID) {
	c.cancelledMu.Lock()
	defer c.cancelledMu.Unlock()
	c.cancelledBuyers = append(c.cancelledBuyers, id)
}

// CancelledBuyers 返回步骤 3 成功作废的买家列表的拷贝。
func (c *FinalizeContext) CancelledBuyers() []uuid.UUID {
	c.cancelledMu.Lock()
	defer c.cancelledMu.Unlock()
	out := make([]uuid.UUID, len(c.cancelledBuyers))
	copy(out, c.cancelledBuyers)
	return out
}

// Handler 是协议步骤的责任链接口。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(fctx *FinalizeContext) error
}

// NextHandler 提供责任链的默认链接实现，各步骤内嵌它。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(fctx *FinalizeContext) error {
	if h.next != nil {
		return h.next.Handle(fctx)
	}
	return nil
}
