package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/profilecrm/profilecrm/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Change event types pushed to dashboard clients
const (
	EventContactSaved       = "contact.saved"
	EventContactDeleted     = "contact.deleted"
	EventListCreated        = "list.created"
	EventListDeleted        = "list.deleted"
	EventTagCreated         = "tag.created"
	EventTagDeleted         = "tag.deleted"
	EventInteractionLogged  = "interaction.logged"
	EventInteractionDeleted = "interaction.deleted"
	EventSettingChanged     = "setting.changed"
	EventImportCompleted    = "import.completed"
	EventFollowUpDue        = "followup.due"
)

// WebSocketMessage is one change event
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub fans change events out to connected clients. Clients only
// listen; anything they send is discarded.
type WebSocketHub struct {
	upgrader websocket.Upgrader

	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	done     chan struct{}
	exited   chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *logging.Logger
	mu  sync.RWMutex
}

// NewWebSocketHub creates a hub. Call Run to start it.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The server only listens locally; extension pages have
			// chrome-extension:// or moz-extension:// origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		log:        logging.WithField("component", "websocket"),
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *WebSocketHub) Run() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.exited)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Debug("client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug("client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and waits for their goroutines to exit
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		h.mu.Unlock()
	})
	if h.running.Load() {
		<-h.exited
	}
	h.wg.Wait()
}

// Broadcast queues a message for every client. It never blocks; if the
// queue is full the message is dropped. After Stop it does nothing.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	select {
	case <-h.done:
		return
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode websocket message")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.WithField("type", msg.Type).Warn("websocket broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection
func (h *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	// The pumps are counted before Stop can start waiting on them
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.wg.Add(2)
	h.mu.Unlock()

	select {
	case h.register <- c:
	case <-h.done:
		h.wg.Add(-2)
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains the connection so pongs and close frames are handled
func (c *wsClient) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.hub.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
