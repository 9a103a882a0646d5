package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the single writer for one socket. Producers enqueue frames;
// only writeLoop touches the socket for data frames.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
}

func newWsConn(c *websocket.Conn, queue int, writeWait time.Duration) *wsConn {
	return &wsConn{
		conn:      c,
		send:      make(chan []byte, queue),
		closed:    make(chan struct{}),
		writeWait: writeWait,
	}
}

// Enqueue never blocks: a full queue or a closed connection drops the frame.
func (c *wsConn) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
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

// Close never waits on the socket. The close frame is best effort and is
// sent from its own goroutine, because writeLoop may hold the writer while
// blocked on a peer that stopped reading.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn == nil {
			return
		}
		go func() {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(c.writeWait),
			)
			_ = c.conn.Close()
		}()
	})
	return nil
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
