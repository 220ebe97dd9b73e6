package chat

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"edulead_chat_server/pkg/constants"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// The widget and the dashboard run on other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UserConn is one live WebSocket connection. A connection may carry an
// anonymous student or, after a login event, an authenticated operator.
type UserConn struct {
	Conn         *websocket.Conn
	ConnectionId string
	SessionId    string

	// Identity, set on login (operators) or join_chat (students).
	UserId   string
	UserType string
	UserName string
	// Role is the presence-registry role; operators only.
	Role string

	// SendBack buffers outbound frames for the write pump.
	SendBack chan []byte

	closeOnce sync.Once
	closed    bool
	lastSeen  time.Time
	mu        sync.Mutex
}

// Touch records socket activity; the gateway mirrors it into the presence
// registry for operators.
func (c *UserConn) Touch(at time.Time) {
	c.mu.Lock()
	c.lastSeen = at
	c.mu.Unlock()
}

// Push queues a frame for the write pump. A full buffer drops the frame;
// a slow consumer must not block the gateway. Pushes arrive from arbitrary
// goroutines, so the closed check and the send sit under the same lock
// CloseConn takes before closing the channel.
func (c *UserConn) Push(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.SendBack <- frame:
	default:
		zap.L().Warn("send buffer full, frame dropped",
			zap.String("connectionId", c.ConnectionId),
			zap.String("userId", c.UserId))
	}
}

// PushEvent marshals and queues an event envelope.
func (c *UserConn) PushEvent(event string, data any) {
	frame, err := newEvent(event, data)
	if err != nil {
		zap.L().Error("marshal event failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.Push(frame)
}

// CloseConn shuts the socket and the write pump exactly once.
func (c *UserConn) CloseConn() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.SendBack)
		c.mu.Unlock()
		if c.Conn == nil {
			return
		}
		if err := c.Conn.Close(); err != nil {
			zap.L().Debug("socket close", zap.Error(err))
		}
	})
}

// Read is the read pump. It decodes each envelope and hands it to the
// gateway; a read error means the socket is gone and triggers cleanup.
func (c *UserConn) Read(g *Gateway) {
	defer g.HandleDisconnect(c)
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			zap.L().Debug("ws read end",
				zap.String("connectionId", c.ConnectionId), zap.Error(err))
			return
		}
		c.Touch(time.Now())

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			zap.L().Warn("bad event envelope",
				zap.String("connectionId", c.ConnectionId), zap.Error(err))
			c.PushEvent(EventError, map[string]string{"message": "malformed event"})
			continue
		}
		g.HandleEvent(c, event)
	}
}

// Write is the write pump: single writer per socket.
func (c *UserConn) Write() {
	for frame := range c.SendBack {
		if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			zap.L().Debug("ws write end",
				zap.String("connectionId", c.ConnectionId), zap.Error(err))
			return
		}
	}
}

// NewClientInit upgrades the HTTP request and starts the pumps.
func NewClientInit(c *gin.Context, g *Gateway, connectionId string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("ws upgrade failed", zap.Error(err))
		return
	}
	client := &UserConn{
		Conn:         conn,
		ConnectionId: connectionId,
		SendBack:     make(chan []byte, constants.CHANNEL_SIZE),
		lastSeen:     time.Now(),
	}
	g.AddConn(client)
	go client.Read(g)
	go client.Write()
	zap.L().Info("ws connected", zap.String("connectionId", connectionId))
}
