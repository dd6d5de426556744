package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lanfield/internal/config"
	"lanfield/internal/game"
	"lanfield/internal/protocol"
)

// Server owns the shared game state and every network endpoint.
type Server struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	field    game.Field
	state    *game.State
	sessions *Registry
	metrics  *Metrics
	loop     *Loop
	newID    func() string

	mu        sync.Mutex
	live      map[*Session]struct{}
	listener  net.Listener
	discovery *DiscoveryResponder
	httpLn    net.Listener
	http      *http.Server
	closing   atomic.Bool
	wg        sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithIDGenerator replaces the UUID player ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) { s.newID = fn }
}

// New creates a Server. Call Listen and Serve, or Run, to start it.
func New(cfg config.Config, log *zap.SugaredLogger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log,
		field:    cfg.Field(),
		state:    game.NewState(),
		sessions: NewRegistry(),
		metrics:  &Metrics{},
		newID:    uuid.NewString,
		live:     make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loop = NewLoop(s.state, s.sessions, s.metrics, log, cfg.TickPeriod())
	return s
}

// State returns the authoritative game state.
func (s *Server) State() *game.State { return s.state }

// Sessions returns the registry of joined sessions.
func (s *Server) Sessions() *Registry { return s.sessions }

// Metrics returns the server counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Loop returns the simulation loop.
func (s *Server) Loop() *Loop { return s.loop }

// Addr returns the game listener address; nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// DiscoveryAddr returns the discovery socket address; nil before Listen.
func (s *Server) DiscoveryAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discovery == nil {
		return nil
	}
	return s.discovery.Addr()
}

// HTTPAddr returns the HTTP listener address; nil if disabled or before Listen.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Listen binds the game, discovery and HTTP sockets. Any failure closes
// whatever was already bound.
func (s *Server) Listen() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closers []func() error
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
		}
	}()

	ln, err := net.Listen("tcp", s.cfg.GameAddr)
	if err != nil {
		return fmt.Errorf("listen game %s: %w", s.cfg.GameAddr, err)
	}
	closers = append(closers, ln.Close)

	udpAddr, err := net.ResolveUDPAddr("udp", s.cfg.DiscoveryAddr)
	if err != nil {
		return fmt.Errorf("resolve discovery %s: %w", s.cfg.DiscoveryAddr, err)
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen discovery %s: %w", s.cfg.DiscoveryAddr, err)
	}
	closers = append(closers, udp.Close)

	if s.cfg.HTTPAddr != "" {
		httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpLn = httpLn
		s.http = &http.Server{Handler: s.routes()}
	}

	s.listener = ln
	s.discovery = NewDiscoveryResponder(udp, s.announce, s.metrics, s.log)
	return nil
}

// Run binds all sockets and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop, the discovery responder, the simulation loop
// and the HTTP server until ctx is cancelled or one of them fails. It waits
// for every session to finish before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, discovery, httpSrv, httpLn := s.listener, s.discovery, s.http, s.httpLn
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	s.log.Infow("server started",
		"name", s.cfg.Name,
		"game", ln.Addr().String(),
		"discovery", discovery.Addr().String(),
		"max_players", s.cfg.MaxPlayers,
		"tick_rate", s.cfg.TickRate,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ln) })
	g.Go(func() error { return discovery.Serve(gctx) })
	g.Go(func() error { return s.loop.Run(gctx) })
	if httpSrv != nil {
		g.Go(func() error {
			s.log.Infow("http listening", "addr", httpLn.Addr().String())
			if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()
	s.wg.Wait()
	s.log.Infow("server stopped", "err", err)
	return err
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		go s.runSession(protocol.NewStreamConn(conn))
	}
}

// runSession serves conn until it closes. It refuses new connections once
// shutdown has begun.
func (s *Server) runSession(conn protocol.Conn) {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	sess := newSession(s, conn)
	s.live[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.metrics.IncSessionsOpened()
	sess.log.Debug("connection accepted")
	sess.Serve()
}

func (s *Server) forget(sess *Session) {
	s.mu.Lock()
	delete(s.live, sess)
	s.mu.Unlock()
}

func (s *Server) announce() protocol.ServerAnnounce {
	port := 0
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return protocol.ServerAnnounce{
		Name:        s.cfg.Name,
		PlayerCount: s.sessions.Count(),
		MaxPlayers:  s.cfg.MaxPlayers,
		Port:        port,
	}
}

// shutdown closes every socket and session. Errors from closing are expected
// and ignored.
func (s *Server) shutdown() {
	s.mu.Lock()
	s.closing.Store(true)
	live := make([]*Session, 0, len(s.live))
	for sess := range s.live {
		live = append(live, sess)
	}
	ln, discovery, httpSrv := s.listener, s.discovery, s.http
	s.mu.Unlock()

	s.log.Info("shutting down")
	s.loop.Stop()
	if ln != nil {
		_ = ln.Close()
	}
	if discovery != nil {
		_ = discovery.Close()
	}
	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	for _, sess := range live {
		sess.Close("server shutdown")
	}
}
