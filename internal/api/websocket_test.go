package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestWebSocketHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	defer hub.Stop()

	// Should not block or panic with no clients
	hub.Broadcast(WebSocketMessage{Type: "test", Data: "data", Timestamp: time.Now()})
	assert.Zero(t, hub.ClientCount())
}

func TestWebSocketHub_BroadcastWithoutRun(t *testing.T) {
	hub := NewWebSocketHub()

	// Overfilling the queue drops messages instead of blocking
	for i := 0; i < sendBuffer*2; i++ {
		hub.Broadcast(WebSocketMessage{Type: "test"})
	}
	hub.Stop()
}

func TestWebSocketHub_BroadcastAfterStop(t *testing.T) {
	hub := NewWebSocketHub()
	hub.Stop()

	hub.Broadcast(WebSocketMessage{Type: "test"})
	assert.Zero(t, len(hub.broadcast))
}

func TestWebSocketHub_StopIdempotent(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()
}

func TestWebSocketHub_ConnectAfterStop(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()
	hub.Stop()

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes the connection")
	assert.Zero(t, hub.ClientCount())
}

func TestWebSocketHub_ConnectDuringStop(t *testing.T) {
	hub := NewWebSocketHub()
	go hub.Run()

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				return nil
			}
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			conn.ReadMessage()
			return conn.Close()
		})
	}
	hub.Stop()
	require.NoError(t, g.Wait())
	assert.Zero(t, hub.ClientCount())
}

func TestAPI_WebSocket_ChangeFeed(t *testing.T) {
	srv, _ := testServer(t)
	go srv.wsHub.Run()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.wsHub.Stop()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.wsHub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest("PUT", ts.URL+"/api/v1/contacts/alice", strings.NewReader(`{"bio": "hi"}`))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventContactSaved, msg.Type)
	assert.Equal(t, "alice", msg.Data["username"])
}
