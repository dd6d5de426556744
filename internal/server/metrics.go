package server

import "sync/atomic"

// Metrics counts server activity. All methods are safe for concurrent use.
type Metrics struct {
	ticks            atomic.Int64
	totalTickNs      atomic.Int64
	sessionsOpened   atomic.Int64
	sessionsClosed   atomic.Int64
	joinsAccepted    atomic.Int64
	joinsRejected    atomic.Int64
	movesAccepted    atomic.Int64
	movesDropped     atomic.Int64
	decodeErrors     atomic.Int64
	snapshotsDropped atomic.Int64
	discoveryReplies atomic.Int64
}

func (m *Metrics) AddTick(ns int64) {
	m.ticks.Add(1)
	m.totalTickNs.Add(ns)
}

func (m *Metrics) IncSessionsOpened()   { m.sessionsOpened.Add(1) }
func (m *Metrics) IncSessionsClosed()   { m.sessionsClosed.Add(1) }
func (m *Metrics) IncJoinsAccepted()    { m.joinsAccepted.Add(1) }
func (m *Metrics) IncJoinsRejected()    { m.joinsRejected.Add(1) }
func (m *Metrics) IncMovesAccepted()    { m.movesAccepted.Add(1) }
func (m *Metrics) IncMovesDropped()     { m.movesDropped.Add(1) }
func (m *Metrics) IncDecodeErrors()     { m.decodeErrors.Add(1) }
func (m *Metrics) IncSnapshotsDropped() { m.snapshotsDropped.Add(1) }
func (m *Metrics) IncDiscoveryReplies() { m.discoveryReplies.Add(1) }

// Ticks returns the number of completed simulation ticks.
func (m *Metrics) Ticks() int64 { return m.ticks.Load() }

// Snapshot returns a read-only copy for the /metrics endpoint.
func (m *Metrics) Snapshot() map[string]any {
	ticks := m.ticks.Load()
	total := m.totalTickNs.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":        ticks,
		"avg_tick_ms":       avgMs,
		"sessions_opened":   m.sessionsOpened.Load(),
		"sessions_closed":   m.sessionsClosed.Load(),
		"joins_accepted":    m.joinsAccepted.Load(),
		"joins_rejected":    m.joinsRejected.Load(),
		"moves_accepted":    m.movesAccepted.Load(),
		"moves_dropped":     m.movesDropped.Load(),
		"decode_errors":     m.decodeErrors.Load(),
		"snapshots_dropped": m.snapshotsDropped.Load(),
		"discovery_replies": m.discoveryReplies.Load(),
	}
}
