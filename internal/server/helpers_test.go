package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"lanfield/internal/config"
	"lanfield/internal/protocol"
)

const waitTimeout = 3 * time.Second

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)).Sugar()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Name = "test arena"
	cfg.GameAddr = "127.0.0.1:0"
	cfg.DiscoveryAddr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	return cfg
}

// startServer runs a server on loopback ports until the test ends.
func startServer(t *testing.T, mutate func(*config.Config), opts ...Option) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(cfg, testLogger(t), opts...)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(waitTimeout):
			t.Errorf("Serve did not return after cancel")
		}
	})
	return srv
}

// eventually polls cond until it holds or the wait times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// rawClient speaks the wire protocol directly so tests can send anything.
type rawClient struct {
	t    *testing.T
	net  net.Conn
	conn *protocol.StreamConn
}

func dialRaw(t *testing.T, srv *Server) *rawClient {
	t.Helper()
	nc, err := net.DialTimeout("tcp", srv.Addr().String(), waitTimeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := &rawClient{t: t, net: nc, conn: protocol.NewStreamConn(nc)}
	t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

func (c *rawClient) send(m protocol.Message) {
	c.t.Helper()
	frame, err := protocol.Encode(m)
	if err != nil {
		c.t.Fatalf("encode %v: %v", m.Kind(), err)
	}
	if err := c.conn.WriteFrame(frame); err != nil {
		c.t.Fatalf("write %v: %v", m.Kind(), err)
	}
}

func (c *rawClient) sendRaw(frame []byte) {
	c.t.Helper()
	if err := c.conn.WriteFrame(frame); err != nil {
		c.t.Fatalf("write raw frame: %v", err)
	}
}

// recv returns the next message, or the read error.
func (c *rawClient) recv() (protocol.Message, error) {
	_ = c.net.SetReadDeadline(time.Now().Add(waitTimeout))
	frame, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(frame)
}

func (c *rawClient) mustRecv() protocol.Message {
	c.t.Helper()
	msg, err := c.recv()
	if err != nil {
		c.t.Fatalf("recv: %v", err)
	}
	return msg
}

// join sends a JoinRequest and returns the assigned ID.
func (c *rawClient) join(name string) string {
	c.t.Helper()
	c.send(protocol.JoinRequest{Name: name})
	msg := c.mustRecv()
	id, ok := msg.(protocol.AssignedIdentity)
	if !ok {
		c.t.Fatalf("first message = %v, want AssignedIdentity", msg.Kind())
	}
	return id.PlayerID
}

// fakeConn is an in-memory protocol.Conn. Writes block forever when stall is
// set, until the conn is closed.
type fakeConn struct {
	in    chan []byte
	stall bool

	mu      sync.Mutex
	written [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(stall bool) *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		stall:  stall,
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) push(m protocol.Message) {
	frame, err := protocol.Encode(m)
	if err != nil {
		panic(err)
	}
	f.in <- frame
}

func (f *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteFrame(frame []byte) error {
	if f.stall {
		<-f.closed
		return net.ErrClosed
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	f.written = append(f.written, frame)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	err := errors.New("already closed")
	f.closeOnce.Do(func() {
		close(f.closed)
		err = nil
	})
	return err
}

func (f *fakeConn) RemoteAddr() string { return "fake" }

func (f *fakeConn) frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}
