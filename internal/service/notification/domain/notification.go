// internal/service/notification/domain/notification.go
package domain

import (
	"context"
	"time"
)

// Notification 是用户收件箱里的一条记录。
// 投递语义是 at-least-once：同一事件可能被重复物化，EventID 去重
// 留给客户端；丢失只影响体验，不影响交易正确性。
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Kind        string    `json:"kind"`
	ListingID   string    `json:"listingId,omitempty"`
	OfferID     string    `json:"offerId,omitempty"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InboxRepository 定义了收件箱的持久化接口。
type InboxRepository interface {
	// Append 把一条通知写入接收者的收件箱。
	Append(ctx context.Context, n *Notification) error

	// List 返回某用户最近的通知，按时间倒序。
	List(ctx context.Context, recipientID string, limit int) ([]*Notification, error)

	// MarkRead 将一条通知标记为已读。对已读通知重复调用是无害的。
	MarkRead(ctx context.Context, recipientID, notificationID string) error
}

// FeedPublisher 是实时订阅通道的出站端口。
// 推送失败只记日志，收件箱里的记录才是用户最终看到的事实。
type FeedPublisher interface {
	Publish(ctx context.Context, n *Notification) error
}
