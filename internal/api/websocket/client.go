package websocket

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message after connecting
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	logger        *zap.Logger
	remoteAddr    string
	authenticated bool
	subject       string
}

// readPump handles reading messages from the WebSocket connection.
// With a token validator configured the first message must be
// {"type":"auth","token":"..."}; the client is registered afterwards.
func (c *Client) readPump() {
	defer func() {
		if c.authenticated {
			c.hub.unregisterClient(c)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if !c.authenticated {
		c.conn.SetReadDeadline(time.Now().Add(authWait))
	} else {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg map[string]interface{}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr))
			}
			return
		}

		if !c.authenticated {
			if !c.authenticate(msg) {
				return
			}
			continue
		}

		c.logger.Debug("Ignoring client message",
			zap.String("remote_addr", c.remoteAddr),
			zap.Any("message", msg))
	}
}

func (c *Client) authenticate(msg map[string]interface{}) bool {
	if msgType, ok := msg["type"].(string); !ok || msgType != "auth" {
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "first message must be authentication"})
		return false
	}

	token, ok := msg["token"].(string)
	if !ok || token == "" {
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "missing token in auth message"})
		return false
	}

	claims, err := c.hub.tokens.ValidateAccessToken(token)
	if err != nil || !slices.Contains(claims.Role.Permissions(), auth.PermRead) {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr))
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "invalid or expired token"})
		return false
	}

	c.writeDirect(MessageTypeAuthSuccess, map[string]string{"subject": claims.Subject})
	if !c.hub.registerClient(c) {
		return false
	}

	c.authenticated = true
	c.subject = claims.Subject
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	go c.writePump()

	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr),
		zap.String("subject", claims.Subject))
	return true
}

// writeDirect is used before the client is registered and the write pump
// has been started.
func (c *Client) writeDirect(msgType MessageType, data interface{}) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(NewMessage(msgType, data)); err != nil {
		c.logger.Debug("WebSocket write failed", zap.Error(err))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		logger:        hub.logger,
		remoteAddr:    conn.RemoteAddr().String(),
		authenticated: hub.tokens == nil,
	}

	if client.authenticated {
		if !hub.registerClient(client) {
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
		return
	}

	// registration and the write pump wait for the auth message
	go client.readPump()
}
