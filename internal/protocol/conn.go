package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// MaxFrameSize bounds a single encoded message.
	MaxFrameSize = 1 << 20

	// DefaultWriteWait is the per-frame write deadline.
	DefaultWriteWait = 10 * time.Second

	frameHeaderSize = 4
)

// Conn is a message-framed connection. ReadFrame must only be called from one
// goroutine; WriteFrame may be called concurrently.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// StreamConn frames messages over a byte stream with a 4-byte big-endian
// length prefix.
type StreamConn struct {
	conn      net.Conn
	r         *bufio.Reader
	writeWait time.Duration

	wmu sync.Mutex
}

// NewStreamConn wraps conn.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn:      conn,
		r:         bufio.NewReader(conn),
		writeWait: DefaultWriteWait,
	}
}

// SetWriteWait changes the per-frame write deadline; zero disables it.
func (c *StreamConn) SetWriteWait(d time.Duration) {
	c.wmu.Lock()
	c.writeWait = d
	c.wmu.Unlock()
}

// ReadFrame blocks until a full frame has been read.
func (c *StreamConn) ReadFrame() ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, &ConnectionError{Op: "read header", Err: err}
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > MaxFrameSize {
		return nil, &ConnectionError{Op: "read header", Err: ErrFrameTooLarge}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ConnectionError{Op: "read body", Err: err}
	}
	return buf, nil
}

// WriteFrame writes frame as one length-prefixed unit.
func (c *StreamConn) WriteFrame(frame []byte) error {
	if len(frame) == 0 || len(frame) > MaxFrameSize {
		return &ConnectionError{Op: "write", Err: ErrFrameTooLarge}
	}
	buf := make([]byte, frameHeaderSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[frameHeaderSize:], frame)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeWait > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Close closes the underlying connection.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
