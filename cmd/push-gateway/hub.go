// cmd/push-gateway/hub.go
package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/redis"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// feedPattern 匹配所有用户的实时推送频道 feed:{user}
	feedPattern = "feed:{*}"
)

// Hub 维护所有活跃的连接，并按 UserID 投递消息。
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			// 同一用户重复连接时，旧连接被顶掉
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
			}
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.L().Info().Str("user", client.userID).Msg("client connected")
		case client := <-h.unregister:
			h.lock.Lock()
			if cur, ok := h.clients[client.userID]; ok && cur == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.L().Info().Str("user", client.userID).Msg("client disconnected")
		case <-ctx.Done():
			h.lock.Lock()
			for _, client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[string]*Client)
			h.lock.Unlock()
			return
		}
	}
}

// deliver 把一条消息投递给目标用户。用户不在本节点时静默丢弃，
// 收件箱里仍有完整记录，实时推送只是加速通道。
func (h *Hub) deliver(userID string, message []byte) {
	h.lock.RLock()
	client, ok := h.clients[userID]
	h.lock.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- message:
	default:
		// 发送缓冲满说明连接已经不健康，交给 readPump 的超时去收尾
		logger.L().Warn().Str("user", userID).Msg("client send buffer full, dropping message")
	}
}

// subscribeFeed 订阅 Redis 上所有用户的推送频道，将消息路由到本节点的连接。
func (h *Hub) subscribeFeed(ctx context.Context, client *redis.Client) {
	pubsub := client.GetClient().PSubscribe(ctx, feedPattern)
	defer pubsub.Close()

	logger.L().Info().Str("pattern", feedPattern).Msg("subscribed to notification feed")
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID := userFromFeedChannel(msg.Channel)
			if userID == "" {
				continue
			}
			h.deliver(userID, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

// userFromFeedChannel 从 "feed:{user-id}" 形式的频道名中取出用户 ID。
func userFromFeedChannel(channel string) string {
	start := strings.Index(channel, "{")
	end := strings.LastIndex(channel, "}")
	if start < 0 || end <= start+1 {
		return ""
	}
	return channel[start+1 : end]
}

// Client 是一个 WebSocket 连接的代表。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// writePump 把 send channel 中的消息写入 websocket，并周期性发送 ping。
// 每个连接只有这一个写 goroutine，保证对 conn 的写是串行的。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端消息（只关心 pong 心跳），连接断开时注销。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
