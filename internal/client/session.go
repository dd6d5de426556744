package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"lanfield/internal/game"
	"lanfield/internal/protocol"
)

const defaultDialTimeout = 5 * time.Second

var (
	// ErrDisconnected is returned by sends after the session has ended.
	ErrDisconnected = errors.New("client: disconnected")

	// ErrRejected wraps the server's reason for refusing a join.
	ErrRejected = errors.New("client: join rejected")
)

// Options configures Dial and DialWebSocket.
type Options struct {
	Logger      *zap.SugaredLogger
	DialTimeout time.Duration
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

// Session is a client's connection to a game server. It keeps the latest
// state snapshot and the locally assigned player ID. It never reconnects.
type Session struct {
	conn protocol.Conn
	log  *zap.SugaredLogger

	snapshot  atomic.Pointer[game.Snapshot]
	connected atomic.Bool

	mu       sync.Mutex
	playerID string
	err      error

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a server's TCP game port and joins as name.
func Dial(ctx context.Context, addr, name string, opts Options) (*Session, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return Start(protocol.NewStreamConn(conn), name, opts)
}

// DialWebSocket connects to a server's /ws endpoint and joins as name.
func DialWebSocket(ctx context.Context, url, name string, opts Options) (*Session, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return Start(protocol.NewWebSocketConn(ws, url), name, opts)
}

// Start sends the join request over conn and starts the receive path.
func Start(conn protocol.Conn, name string, opts Options) (*Session, error) {
	s := &Session{
		conn:  conn,
		log:   opts.logger().Named("client").With("server", conn.RemoteAddr()),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.connected.Store(true)

	if err := s.write(protocol.JoinRequest{Name: name}); err != nil {
		return nil, err
	}
	go s.receiveLoop()
	s.log.Infow("connected", "name", name)
	return s, nil
}

// PlayerID returns the assigned ID, or "" until the server has answered.
func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Snapshot returns the most recent state snapshot.
func (s *Session) Snapshot() (game.Snapshot, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return game.Snapshot{}, false
	}
	return *snap, true
}

// Players returns the players of the latest snapshot. The map is shared and
// must not be modified.
func (s *Session) Players() map[string]game.Player {
	snap, _ := s.Snapshot()
	return snap.Players
}

// Connected reports whether the session is still live.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Ready is closed once the server has assigned a player ID.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended; nil while connected or after Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendMove asks the server to move the local player toward (x, y). It does
// nothing until an ID has been assigned.
func (s *Session) SendMove(x, y float64) error {
	if !s.connected.Load() {
		return ErrDisconnected
	}
	id := s.PlayerID()
	if id == "" {
		return nil
	}
	return s.write(protocol.MoveIntent{PlayerID: id, TargetX: x, TargetY: y})
}

// Close ends the session.
func (s *Session) Close() error {
	s.disconnect(nil)
	return nil
}

func (s *Session) write(m protocol.Message) error {
	if !s.connected.Load() {
		return ErrDisconnected
	}
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := s.conn.WriteFrame(frame); err != nil {
		s.disconnect(err)
		return err
	}
	return nil
}

func (s *Session) receiveLoop() {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			s.disconnect(err)
			return
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			s.log.Debugw("dropping undecodable message", "err", err)
			continue
		}
		switch m := msg.(type) {
		case protocol.StateSnapshot:
			snap := m.State
			s.snapshot.Store(&snap)
		case protocol.AssignedIdentity:
			s.assign(m.PlayerID)
		case protocol.JoinRejected:
			s.disconnect(fmt.Errorf("%w: %s", ErrRejected, m.Reason))
			return
		default:
			s.log.Debugw("ignoring unexpected message", "kind", msg.Kind())
		}
	}
}

func (s *Session) assign(id string) {
	s.mu.Lock()
	if s.playerID != "" || id == "" {
		s.mu.Unlock()
		return
	}
	s.playerID = id
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Infow("assigned player id", "player", id)
}

// disconnect records cause and tears the session down once.
func (s *Session) disconnect(cause error) {
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()
		_ = s.conn.Close()

		switch {
		case cause == nil:
			s.log.Info("disconnected")
		case protocol.IsClosed(cause):
			s.log.Infow("server closed the connection", "err", cause)
		default:
			s.log.Warnw("connection lost", "err", cause)
		}
		close(s.done)
	})
}
