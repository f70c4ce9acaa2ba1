package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/codeforge_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startHubServer 每个连接按 ?user= 注册到 hub
func startHubServer(t *testing.T, hub *Hub) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		userID := int64(1)
		if r.URL.Query().Get("user") == "2" {
			userID = 2
		}
		client := &Client{UserID: userID, Conn: conn}
		hub.Register(client)
		defer hub.Unregister(client)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub(nil)
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
	assert.NoError(t, hub.SendToUser(123, &Message{Type: "test"}))
}

func TestHub_SendToUser(t *testing.T) {
	hub := NewHub(nil)
	url := startHubServer(t, hub)

	tab1 := dial(t, url+"?user=1")
	tab2 := dial(t, url+"?user=1")
	other := dial(t, url+"?user=2")

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline(1))
	assert.True(t, hub.IsOnline(2))

	err := hub.SendToUser(1, &Message{Type: "generation_progress", Data: map[string]int{"progress": 35}})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"generation_progress","data":{"progress":35}}`, string(data))
	}

	// 其他用户收不到
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(nil)
	url := startHubServer(t, hub)

	conn := dial(t, url+"?user=2")
	require.Eventually(t, func() bool { return hub.IsOnline(2) }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.IsOnline(2) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_PublishProgress(t *testing.T) {
	hub := NewHub(nil)
	url := startHubServer(t, hub)

	conn := dial(t, url+"?user=2")
	require.Eventually(t, func() bool { return hub.IsOnline(2) }, time.Second, 10*time.Millisecond)

	err := hub.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		UserID:       2,
		GenerationID: 11,
		Status:       "processing",
		Stage:        pubsub.StageJudging,
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string                 `json:"type"`
		Data pubsub.ProgressMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, pubsub.MessageTypeProgress, got.Type)
	assert.Equal(t, int64(11), got.Data.GenerationID)
	assert.Equal(t, pubsub.StageJudging, got.Data.Stage)
	assert.Equal(t, pubsub.StageProgress[pubsub.StageJudging], got.Data.Progress)
}
