package server

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lanfield/internal/game"
	"lanfield/internal/protocol"
)

// Loop is the fixed-rate simulation loop. It is the only writer of player
// positions; sessions only ever change targets.
type Loop struct {
	state    *game.State
	sessions *Registry
	metrics  *Metrics
	log      *zap.SugaredLogger
	period   time.Duration

	running atomic.Bool
	seq     atomic.Uint64
}

// NewLoop creates a loop ticking every period.
func NewLoop(state *game.State, sessions *Registry, metrics *Metrics, log *zap.SugaredLogger, period time.Duration) *Loop {
	l := &Loop{
		state:    state,
		sessions: sessions,
		metrics:  metrics,
		log:      log.Named("loop"),
		period:   period,
	}
	l.running.Store(true)
	return l
}

// Run ticks until Stop is called or ctx ends. It returns within one period
// of either.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Infow("simulation loop started", "period", l.period)
	defer l.log.Infow("simulation loop stopped", "ticks", l.seq.Load())

	timer := time.NewTimer(l.period)
	defer timer.Stop()

	last := time.Now()
	for l.running.Load() {
		now := time.Now()
		if now.Sub(last) >= l.period {
			l.Step()
			last = now
		}
		timer.Reset(max(time.Millisecond, l.period-time.Since(last)))
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
	return nil
}

// Stop clears the running flag.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// Running reports whether the loop has not been stopped.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Seq returns the number of completed ticks.
func (l *Loop) Seq() uint64 {
	return l.seq.Load()
}

// Step advances the world one tick and broadcasts the result.
func (l *Loop) Step() {
	start := time.Now()
	l.state.Tick()

	frame, err := protocol.Encode(protocol.StateSnapshot{State: l.state.Snapshot()})
	if err != nil {
		l.log.Errorw("encode snapshot", "err", err)
	} else {
		l.broadcast(frame)
	}

	l.seq.Add(1)
	l.metrics.AddTick(time.Since(start).Nanoseconds())
}

// broadcast queues frame on every active session. A session that cannot keep
// up is closed; the others are unaffected.
func (l *Loop) broadcast(frame []byte) {
	for _, s := range l.sessions.List() {
		if s.Deliver(frame) {
			continue
		}
		l.metrics.IncSnapshotsDropped()
		l.log.Warnw("send queue full, closing session", "player", s.ID())
		s.Close("send queue full")
	}
}
