package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"schedle/internal/config"

	"github.com/gorilla/websocket"
)

// Frame is a message sent by a client over its connection.
type Frame struct {
	// Type is "message" to send a direct message or "read" to mark a notification as read.
	Type           string `json:"type"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Content        string `json:"content,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

// FrameHandler handles a frame received from userID.
type FrameHandler func(ctx context.Context, userID string, frame Frame) error

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Authenticated user of this connection.
	UserID string

	handleFrame FrameHandler
}

// readPump pumps frames from the websocket connection to handleFrame.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	pongWait := time.Duration(wsCfg.PongWaitSeconds) * time.Second
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (user %s): %v", c.UserID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			log.Printf("警告: user %s sent a non-text frame: %d", c.UserID, messageType)
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("错误: cannot decode frame from user %s: %v, raw: %s", c.UserID, err, string(raw))
			continue
		}
		if c.handleFrame == nil {
			continue
		}
		if err := c.handleFrame(context.Background(), c.UserID, frame); err != nil {
			log.Printf("错误: frame %q from user %s failed: %v", frame.Type, c.UserID, err)
			c.reportError(err)
		}
	}
}

// reportError tells the client that one of its frames was rejected.
func (c *Client) reportError(err error) {
	payload, mErr := json.Marshal(map[string]interface{}{"type": "error", "data": err.Error()})
	if mErr != nil {
		return
	}
	select {
	case c.hub.direct <- delivery{userID: c.UserID, client: c, payload: payload}:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection, one frame per payload.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// ServeWs upgrades the request and registers the connection of userID with hub.
func ServeWs(hub *Hub, handleFrame FrameHandler, userID string, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsCfg.MaxMessageSizeBytes,
		WriteBufferSize: wsCfg.MaxMessageSizeBytes,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWs - upgrade failed:", err)
		return
	}
	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		UserID:      userID,
		handleFrame: handleFrame,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Printf("Client connected: user %s", userID)
}
