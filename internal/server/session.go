package server

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"lanfield/internal/game"
	"lanfield/internal/protocol"
)

const sendBufferSize = 256

// Phase is the lifecycle stage of a Session.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client connection. It owns the player record created by
// the connection's JoinRequest and removes it when the connection ends.
type Session struct {
	srv  *Server
	conn protocol.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	phase Phase
	id    string
	log   *zap.SugaredLogger
}

func newSession(srv *Server, conn protocol.Conn) *Session {
	return &Session{
		srv:  srv,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		log:  srv.log.Named("session").With("remote", conn.RemoteAddr()),
	}
}

// ID returns the assigned player ID, or "" before the join completes.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Serve runs the session until the connection ends.
func (s *Session) Serve() {
	go s.writePump()
	s.readPump()
}

// Deliver queues a frame for an active session without blocking. It returns
// false when the send queue is full.
func (s *Session) Deliver(frame []byte) bool {
	if s.Phase() != PhaseActive {
		return true
	}
	return s.enqueue(frame)
}

// Close tears the session down. Only the first call has any effect.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasActive := s.phase == PhaseActive
		s.phase = PhaseClosed
		id := s.id
		log := s.log
		s.mu.Unlock()

		if wasActive {
			s.srv.sessions.Remove(id)
			s.srv.state.RemovePlayer(id)
		}
		_ = s.conn.Close()
		s.srv.forget(s)
		s.srv.metrics.IncSessionsClosed()
		log.Infow("session closed", "reason", reason, "active", wasActive)
		close(s.done)
	})
}

func (s *Session) logger() *zap.SugaredLogger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// readPump decodes inbound messages until the connection fails.
func (s *Session) readPump() {
	defer s.Close("connection ended")

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if protocol.IsClosed(err) || s.Phase() == PhaseClosed {
				s.logger().Debugw("connection closed", "err", err)
			} else {
				s.logger().Infow("read error", "err", err)
			}
			return
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			s.srv.metrics.IncDecodeErrors()
			s.logger().Debugw("dropping undecodable message", "err", err)
			continue
		}
		s.handle(msg)
	}
}

// writePump drains the send queue to the connection.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			if err := s.conn.WriteFrame(frame); err != nil {
				if s.Phase() != PhaseClosed {
					s.logger().Infow("write error", "err", err)
				}
				s.Close("write failed")
				return
			}
		}
	}
}

func (s *Session) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.JoinRequest:
		s.join(m)
	case protocol.MoveIntent:
		s.move(m)
	default:
		s.logger().Debugw("ignoring unexpected message", "kind", msg.Kind())
	}
}

func (s *Session) join(req protocol.JoinRequest) {
	reason, err := s.activate(req)
	if err == nil {
		return
	}
	s.srv.metrics.IncJoinsRejected()
	s.logger().Warnw("join rejected", "name", req.Name, "err", err)
	if reason != "" {
		if frame, encErr := protocol.Encode(protocol.JoinRejected{Reason: reason}); encErr == nil {
			_ = s.conn.WriteFrame(frame)
		}
	}
	s.Close("join rejected")
}

// activate registers the session and queues the identity and first snapshot.
// Everything happens under mu so no broadcast can reach the client first.
// A nil error with an empty reason means the join was ignored.
func (s *Session) activate(req protocol.JoinRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseActive:
		s.log.Debugw("ignoring repeated join", "name", req.Name)
		return "", nil
	case PhaseClosed:
		return "", nil
	}

	srv := s.srv
	id, err := srv.sessions.Register(s, srv.cfg.MaxPlayers, srv.state.Has, srv.newID)
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			return "server full", err
		}
		return "no free player id", err
	}

	x, y := srv.field.RandomSpawn()
	player := game.NewPlayer(id, req.Name, x, y)
	if err := srv.state.AddPlayer(player); err != nil {
		srv.sessions.Remove(id)
		return "no free player id", err
	}

	identity, err := protocol.Encode(protocol.AssignedIdentity{PlayerID: id})
	if err == nil {
		var snapshot []byte
		snapshot, err = protocol.Encode(protocol.StateSnapshot{State: srv.state.Snapshot()})
		if err == nil {
			s.enqueue(identity)
			s.enqueue(snapshot)
		}
	}
	if err != nil {
		srv.sessions.Remove(id)
		srv.state.RemovePlayer(id)
		return "internal error", err
	}

	s.id = id
	s.phase = PhaseActive
	s.log = s.log.With("player", id)
	srv.metrics.IncJoinsAccepted()
	s.log.Infow("player joined", "name", player.Name, "x", x, "y", y, "players", srv.sessions.Count())
	return "", nil
}

func (s *Session) move(m protocol.MoveIntent) {
	s.mu.Lock()
	phase, id := s.phase, s.id
	s.mu.Unlock()

	if phase != PhaseActive || m.PlayerID != id {
		s.srv.metrics.IncMovesDropped()
		s.logger().Debugw("dropping move for foreign player", "target", m.PlayerID, "phase", phase)
		return
	}
	x, y := s.srv.field.ClampTarget(m.TargetX, m.TargetY)
	if s.srv.state.UpdateTarget(id, x, y) {
		s.srv.metrics.IncMovesAccepted()
	}
}

func (s *Session) enqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
