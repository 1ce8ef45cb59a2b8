// internal/service/notification/infrastructure/redis_inbox.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"bazaar/internal/pkg/redis"
	"bazaar/internal/service/notification/domain"
)

const (
	markReadScriptName = "inbox_mark_read"
	inboxMaxLen        = 500
)

// RedisInboxRepository 是 InboxRepository 和 FeedPublisher 的 Redis 实现。
// 每个用户两个键：inbox:ids:{user} 维护时间倒序的 ID 列表，
// inbox:data:{user} 是 ID -> JSON 的哈希。标记已读通过 Lua 脚本原子完成。
type RedisInboxRepository struct {
	client *redis.Client
}

// NewRedisInboxRepository 创建收件箱仓储，注册所需的 Lua 脚本。
func NewRedisInboxRepository(client *redis.Client) (*RedisInboxRepository, error) {
	if err := client.LoadScriptFromContent(markReadScriptName, markReadScript); err != nil {
		return nil, fmt.Errorf("failed to load inbox mark-read script: %w", err)
	}
	return &RedisInboxRepository{client: client}, nil
}

func idsKey(user string) string  { return fmt.Sprintf("inbox:ids:{%s}", user) }
func dataKey(user string) string { return fmt.Sprintf("inbox:data:{%s}", user) }
func feedKey(user string) string { return fmt.Sprintf("feed:{%s}", user) }

func (r *RedisInboxRepository) Append(ctx context.Context, n *domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := r.client.GetClient().Pipeline()
	pipe.HSet(ctx, dataKey(n.RecipientID), n.ID, raw)
	pipe.LPush(ctx, idsKey(n.RecipientID), n.ID)
	// 收件箱有界，老通知随队尾淘汰；哈希里的残留数据量可控，不单独清理
	pipe.LTrim(ctx, idsKey(n.RecipientID), 0, inboxMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append notification to inbox: %w", err)
	}
	return nil
}

func (r *RedisInboxRepository) List(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	rdb := r.client.GetClient()

	ids, err := rdb.LRange(ctx, idsKey(recipientID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox ids: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Notification{}, nil
	}

	raws, err := rdb.HMGet(ctx, dataKey(recipientID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox records: %w", err)
	}

	out := make([]*domain.Notification, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

func (r *RedisInboxRepository) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	_, err := r.client.RunScript(ctx, markReadScriptName, []string{dataKey(recipientID)}, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// Publish 把通知推到用户的实时订阅频道，push-gateway 在另一端消费。
func (r *RedisInboxRepository) Publish(ctx context.Context, n *domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return r.client.GetClient().Publish(ctx, feedKey(n.RecipientID), raw).Err()
}

var markReadScript = `
-- KEYS[1]: 收件箱数据哈希, 例如: inbox:data:{user-123}
-- ARGV[1]: 要标记的通知 ID

local raw = redis.call('hget', KEYS[1], ARGV[1])
if not raw then
    return 0 -- 通知不存在（可能已被淘汰），视为无害
end

local n = cjson.decode(raw)
if n['read'] then
    return 1 -- 已经是已读，幂等返回
end

n['read'] = true
redis.call('hset', KEYS[1], ARGV[1], cjson.encode(n))
return 1
`
