// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	conn              *websocket.Conn
	send              chan []byte
	natsConn          *nats.Conn
	natsSubscriptions []*nats.Subscription
	closeOnce         sync.Once
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 1024 * 1024, // 1MB
	}
}

// WebSocketUpgrader is used to upgrade HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// IngestWebSocketHandler streams ingest lifecycle events to connected
// clients. Each connection gets its own subscriptions to the ingested and
// failed subjects under the given topic.
func IngestWebSocketHandler(natsConn *nats.Conn, topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		// Create new client
		client := &WebSocketClient{
			conn:     conn,
			send:     make(chan []byte, 256),
			natsConn: natsConn,
		}

		// Subscribe to lifecycle subjects
		if err := client.subscribeToLifecycle(topic); err != nil {
			log.Printf("Failed to subscribe to lifecycle subjects: %v", err)
			client.closeConnection()
			return
		}

		// Queue the welcome message before the pumps run, so it cannot race
		// a disconnecting peer closing the send channel.
		client.queueWelcome(topic)

		// Start client
		go client.writePump()
		go client.readPump()

		// Log connection
		log.Printf("New WebSocket connection for ingest events from %s", r.RemoteAddr)
	}
}

// queueWelcome enqueues the greeting frame. Only safe before the pumps start.
func (c *WebSocketClient) queueWelcome(topic string) {
	welcomeMsg := map[string]interface{}{
		"type":  "welcome",
		"topic": topic,
		"time":  time.Now(),
	}

	welcomeJSON, _ := json.Marshal(welcomeMsg)
	select {
	case c.send <- welcomeJSON:
	default:
	}
}

// readPump drains the WebSocket connection. Clients only send pongs and
// close frames; anything else is discarded.
func (c *WebSocketClient) readPump() {
	config := DefaultWebSocketConfig()

	defer func() {
		c.closeConnection()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps events from NATS to the WebSocket connection
func (c *WebSocketClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscribeToLifecycle subscribes to the ingest lifecycle NATS subjects
func (c *WebSocketClient) subscribeToLifecycle(topic string) error {
	forward := func(msg *nats.Msg) {
		select {
		case c.send <- msg.Data:
		default:
			// Slow consumer, drop the event rather than block NATS.
		}
	}

	ingestedSub, err := c.natsConn.Subscribe(fmt.Sprintf("%s.ingested", topic), forward)
	if err != nil {
		return fmt.Errorf("failed to subscribe to ingested events: %w", err)
	}
	c.natsSubscriptions = append(c.natsSubscriptions, ingestedSub)

	failedSub, err := c.natsConn.Subscribe(fmt.Sprintf("%s.failed", topic), forward)
	if err != nil {
		return fmt.Errorf("failed to subscribe to failed events: %w", err)
	}
	c.natsSubscriptions = append(c.natsSubscriptions, failedSub)

	return nil
}

// closeConnection closes the WebSocket connection and cleans up resources
func (c *WebSocketClient) closeConnection() {
	c.closeOnce.Do(func() {
		for _, sub := range c.natsSubscriptions {
			sub.Unsubscribe()
		}

		if c.conn != nil {
			c.conn.Close()
		}
		close(c.send)

		log.Printf("WebSocket connection closed")
	})
}
