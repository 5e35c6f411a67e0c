package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	readWait    = 60 * time.Second
	pingEvery   = readWait * 9 / 10
	maxReadSize = 512
)

// client is one stream subscriber. The hub owns queue and closes it when the
// client is dropped.
type client struct {
	conn   *websocket.Conn
	remote string
	queue  chan *websocket.PreparedMessage
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		queue:  make(chan *websocket.PreparedMessage, queueDepth),
	}
}

// writeLoop forwards queued frames and keeps the connection alive with pings.
// A closed queue sends a close frame and ends the loop.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case pm, ok := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WritePreparedMessage(pm); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames until the peer goes away. The stream is
// one-way; data frames from the client are discarded.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
