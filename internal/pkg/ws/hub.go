package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/pkg/pubsub"
)

const writeTimeout = 5 * time.Second

// Hub 按用户 ID 管理 websocket 连接
type Hub struct {
	// 同一用户可以有多个连接（多标签页、重连）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.logger.Debug("websocket connected",
		zap.Int64("user_id", client.UserID),
		zap.Int("user_conns", len(h.clients[client.UserID])))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.logger.Debug("websocket disconnected", zap.Int64("user_id", client.UserID))
}

// SendToUser 向用户的所有连接发送消息，用户不在线时直接返回
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warn("websocket write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// PublishProgress 直接推送进度事件，未配置 Redis 时替代 pubsub.Publisher
func (h *Hub) PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error {
	msg.Fill()
	return h.SendToUser(msg.UserID, &Message{Type: msg.Type, Data: msg})
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// IsOnline 用户是否有在线连接
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
