package broadcast

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// request is the control frame a subscriber sends.
type request struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type client struct {
	conn    *websocket.Conn
	options Options

	send chan []byte

	topicsMu sync.RWMutex
	topics   map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, options Options) *client {
	return &client{
		conn:    conn,
		options: options,
		send:    make(chan []byte, options.SendQueueSize),
		topics:  make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

func (c *client) subscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInboundMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.options.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.options.PongTimeout))
	})

	for {
		var req request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugw("subscriber read failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.options.PongTimeout))

		topic := strings.TrimSpace(req.Topic)
		if topic == "" {
			log.Debugw("ignoring request without topic", "action", req.Action)
			continue
		}

		c.topicsMu.Lock()
		switch req.Action {
		case actionSubscribe:
			c.topics[topic] = struct{}{}
		case actionUnsubscribe:
			delete(c.topics, topic)
		default:
			log.Debugw("ignoring unknown subscriber action", "action", req.Action)
		}
		c.topicsMu.Unlock()
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debugw("subscriber write failed", "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.options.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debugw("subscriber ping failed", "err", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.options.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}
