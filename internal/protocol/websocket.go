package protocol

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// WebSocketConn carries one frame per binary WebSocket message.
type WebSocketConn struct {
	ws         *websocket.Conn
	remoteAddr string
	writeWait  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocketConn wraps ws. Closing the returned Conn cancels pending reads.
func NewWebSocketConn(ws *websocket.Conn, remoteAddr string) *WebSocketConn {
	ws.SetReadLimit(MaxFrameSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketConn{
		ws:         ws,
		remoteAddr: remoteAddr,
		writeWait:  DefaultWriteWait,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ReadFrame returns the next binary message. Text messages are skipped.
func (c *WebSocketConn) ReadFrame() ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			return nil, &ConnectionError{Op: "read", Err: err}
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// WriteFrame sends frame as a single binary message.
func (c *WebSocketConn) WriteFrame(frame []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeWait)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Close tears the connection down without waiting for the close handshake.
func (c *WebSocketConn) Close() error {
	c.cancel()
	return c.ws.CloseNow()
}

// RemoteAddr returns the address the connection was accepted from or dialed to.
func (c *WebSocketConn) RemoteAddr() string {
	return c.remoteAddr
}
