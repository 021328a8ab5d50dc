package chathub_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/chathub"
	"groupouting/backend/internal/models"
)

func newWSServer(t *testing.T, hub *chathub.Hub, tokens chathub.TokenVerifier) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		chathub.NewWebSocketClient(conn, hub, tokens, quietLogger()).Run()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := models.DecodeEvent(data)
	require.NoError(t, err)
	return event
}

func TestWebSocketClient_JoinAndReceive(t *testing.T) {
	hub := chathub.NewHub(quietLogger())
	url := newWSServer(t, hub, nil)

	alice, bob := dial(t, url), dial(t, url)
	for _, conn := range []*websocket.Conn{alice, bob} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"join_room","roomId":"r1","user":{"id":"user_1","display_name":"Ana"}}`)))
		assert.Equal(t, models.JoinedEvent{RoomID: "r1"}, readEvent(t, conn))
	}
	require.Eventually(t, func() bool { return hub.RoomConnections("r1") == 2 }, 2*time.Second, 10*time.Millisecond)

	msg := models.Message{ID: 7, RoomID: "r1", UserID: "user_1", Content: "hello"}
	assert.Equal(t, 2, hub.Broadcast("r1", models.NewMessageEvent{Message: msg}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		got, ok := readEvent(t, conn).(models.NewMessageEvent)
		require.True(t, ok)
		assert.Equal(t, "hello", got.Message.Content)
		assert.Equal(t, uint(7), got.Message.ID)
	}
}

func TestWebSocketClient_MalformedFrameKeepsConnection(t *testing.T) {
	hub := chathub.NewHub(quietLogger())
	url := newWSServer(t, hub, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	assert.Equal(t, models.ErrorEvent{Message: "Malformed message"}, readEvent(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room"}`)))
	assert.Equal(t, models.ErrorEvent{Message: "Malformed message"}, readEvent(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, models.ErrorEvent{Message: "Unknown message type"}, readEvent(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, models.PongEvent{}, readEvent(t, conn))
}

func TestWebSocketClient_TokenJoin(t *testing.T) {
	hub := chathub.NewHub(quietLogger())
	tokens := auth.NewTokenManager("secret", time.Hour)
	url := newWSServer(t, hub, tokens)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room","roomId":"r1","token":"garbage"}`)))
	assert.Equal(t, models.ErrorEvent{Message: "Invalid token"}, readEvent(t, conn))
	assert.Equal(t, 0, hub.RoomConnections("r1"))

	token, err := tokens.IssueForUser(&models.User{ID: "acct-1", Email: "a@b.c", DisplayName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room","roomId":"r1","token":"`+token+`"}`)))
	assert.Equal(t, models.JoinedEvent{RoomID: "r1"}, readEvent(t, conn))
	assert.Equal(t, 1, hub.RoomConnections("r1"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave_room"}`)))
	require.Eventually(t, func() bool { return hub.RoomConnections("r1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketClient_CloseUnregisters(t *testing.T) {
	hub := chathub.NewHub(quietLogger())
	url := newWSServer(t, hub, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"join_room","roomId":"r1","user":{"id":"u"}}`)))
	readEvent(t, conn)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Broadcast("r1", models.PongEvent{}))
}
