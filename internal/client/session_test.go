package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"lanfield/internal/game"
	"lanfield/internal/protocol"
)

const waitTimeout = 3 * time.Second

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)).Sugar()
}

// fakeServer accepts one connection and lets the test script the server side.
type fakeServer struct {
	t     *testing.T
	ln    net.Listener
	conns chan net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fs := &fakeServer{t: t, ln: ln, conns: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fs.conns <- conn
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return fs
}

type peer struct {
	t    *testing.T
	raw  net.Conn
	conn *protocol.StreamConn
}

func (fs *fakeServer) accept() *peer {
	fs.t.Helper()
	select {
	case c := <-fs.conns:
		p := &peer{t: fs.t, raw: c, conn: protocol.NewStreamConn(c)}
		fs.t.Cleanup(func() { _ = p.conn.Close() })
		return p
	case <-time.After(waitTimeout):
		fs.t.Fatal("no connection")
		return nil
	}
}

func (p *peer) send(m protocol.Message) {
	p.t.Helper()
	frame, err := protocol.Encode(m)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.WriteFrame(frame); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

func (p *peer) recv() protocol.Message {
	p.t.Helper()
	_ = p.raw.SetReadDeadline(time.Now().Add(waitTimeout))
	frame, err := p.conn.ReadFrame()
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		p.t.Fatalf("decode: %v", err)
	}
	return msg
}

func dial(t *testing.T, fs *fakeServer, name string) (*Session, *peer) {
	t.Helper()
	s, err := Dial(context.Background(), fs.ln.Addr().String(), name, Options{Logger: testLogger(t)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	p := fs.accept()
	msg := p.recv()
	join, ok := msg.(protocol.JoinRequest)
	if !ok {
		t.Fatalf("first message = %v, want JoinRequest", msg.Kind())
	}
	if join.Name != name {
		t.Fatalf("join name = %q, want %q", join.Name, name)
	}
	return s, p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func snapshotOf(players ...game.Player) protocol.StateSnapshot {
	snap := game.Snapshot{Players: make(map[string]game.Player, len(players)), UpdatedAt: time.Now().UnixMilli()}
	for _, p := range players {
		snap.Players[p.ID] = p
	}
	return protocol.StateSnapshot{State: snap}
}

func TestSessionJoinAndMove(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "alice")

	if got := s.PlayerID(); got != "" {
		t.Fatalf("PlayerID before identity = %q", got)
	}
	if err := s.SendMove(1, 1); err != nil {
		t.Fatalf("SendMove before identity: %v", err)
	}

	p.send(protocol.AssignedIdentity{PlayerID: "p1"})
	p.send(snapshotOf(game.NewPlayer("p1", "alice", 100, 200)))

	select {
	case <-s.Ready():
	case <-time.After(waitTimeout):
		t.Fatal("Ready not closed")
	}
	if got := s.PlayerID(); got != "p1" {
		t.Fatalf("PlayerID = %q, want p1", got)
	}
	waitFor(t, "snapshot", func() bool {
		_, ok := s.Players()["p1"]
		return ok
	})

	if err := s.SendMove(300, 400); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	// The pre-identity move must not have been sent.
	msg := p.recv()
	move, ok := msg.(protocol.MoveIntent)
	if !ok {
		t.Fatalf("message = %v, want MoveIntent", msg.Kind())
	}
	if move != (protocol.MoveIntent{PlayerID: "p1", TargetX: 300, TargetY: 400}) {
		t.Fatalf("move = %+v", move)
	}
}

func TestSessionKeepsFirstIdentity(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "bob")

	p.send(protocol.AssignedIdentity{PlayerID: "first"})
	p.send(protocol.AssignedIdentity{PlayerID: "second"})
	p.send(snapshotOf(game.NewPlayer("marker", "m", 0, 0)))

	waitFor(t, "marker snapshot", func() bool {
		_, ok := s.Players()["marker"]
		return ok
	})
	if got := s.PlayerID(); got != "first" {
		t.Fatalf("PlayerID = %q, want first", got)
	}
}

func TestSessionReplacesSnapshot(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "carol")

	if _, ok := s.Snapshot(); ok {
		t.Fatal("snapshot before any was received")
	}
	p.send(snapshotOf(game.NewPlayer("a", "a", 0, 0), game.NewPlayer("b", "b", 0, 0)))
	p.send(snapshotOf(game.NewPlayer("b", "b", 5, 5)))

	waitFor(t, "second snapshot", func() bool {
		players := s.Players()
		_, hasA := players["a"]
		return len(players) == 1 && !hasA
	})
	if b := s.Players()["b"]; b.X != 5 {
		t.Fatalf("b.X = %v, want 5", b.X)
	}
}

func TestSessionIgnoresUndecodableFrames(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "dave")

	if err := p.conn.WriteFrame([]byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	p.send(protocol.AssignedIdentity{PlayerID: "d"})
	select {
	case <-s.Ready():
	case <-time.After(waitTimeout):
		t.Fatal("identity after garbage not processed")
	}
	if !s.Connected() {
		t.Fatal("session dropped after garbage")
	}
}

func TestSessionRejected(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "erin")

	p.send(protocol.JoinRejected{Reason: "server full"})
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session not ended after rejection")
	}
	if !errors.Is(s.Err(), ErrRejected) {
		t.Fatalf("Err = %v, want ErrRejected", s.Err())
	}
	if err := s.SendMove(1, 1); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("SendMove after rejection = %v, want ErrDisconnected", err)
	}
}

func TestSessionServerHangUp(t *testing.T) {
	fs := newFakeServer(t)
	s, p := dial(t, fs, "frank")
	p.send(protocol.AssignedIdentity{PlayerID: "f"})
	<-s.Ready()

	_ = p.conn.Close()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session not ended after hang-up")
	}
	if s.Connected() {
		t.Fatal("Connected after hang-up")
	}
	if !protocol.IsClosed(s.Err()) {
		t.Fatalf("Err = %v, want a closed-connection error", s.Err())
	}
	if err := s.SendMove(1, 1); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("SendMove after hang-up = %v, want ErrDisconnected", err)
	}
}

func TestSessionClose(t *testing.T) {
	fs := newFakeServer(t)
	s, _ := dial(t, fs, "gina")

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	<-s.Done()
	if s.Err() != nil {
		t.Fatalf("Err after Close = %v, want nil", s.Err())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := Dial(context.Background(), addr, "x", Options{DialTimeout: time.Second}); err == nil {
		t.Fatal("Dial to closed port succeeded")
	}
}
