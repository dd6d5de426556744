package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lanfield/internal/protocol"
)

const (
	discoveryReadTimeout = time.Second
	discoveryBufferSize  = 1024
)

// DiscoveryResponder answers LAN discovery probes with a ServerAnnounce.
type DiscoveryResponder struct {
	conn     *net.UDPConn
	announce func() protocol.ServerAnnounce
	metrics  *Metrics
	log      *zap.SugaredLogger

	closing atomic.Bool
}

// NewDiscoveryResponder serves probes arriving on conn. announce is called for
// every probe so the player count is current.
func NewDiscoveryResponder(conn *net.UDPConn, announce func() protocol.ServerAnnounce, metrics *Metrics, log *zap.SugaredLogger) *DiscoveryResponder {
	return &DiscoveryResponder{
		conn:     conn,
		announce: announce,
		metrics:  metrics,
		log:      log.Named("discovery"),
	}
}

// Addr returns the bound UDP address.
func (d *DiscoveryResponder) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Serve answers probes until Close is called or ctx ends. The read timeout
// lets the loop notice shutdown between requests.
func (d *DiscoveryResponder) Serve(ctx context.Context) error {
	d.log.Infow("discovery responder started", "addr", d.conn.LocalAddr().String())
	buf := make([]byte, discoveryBufferSize)
	for {
		if ctx.Err() != nil || d.closing.Load() {
			return nil
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(discoveryReadTimeout))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if d.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.Warnw("discovery read error", "err", err)
			continue
		}
		if n == 0 {
			continue
		}
		d.reply(addr)
	}
}

func (d *DiscoveryResponder) reply(addr *net.UDPAddr) {
	data, err := protocol.Encode(d.announce())
	if err != nil {
		d.log.Errorw("encode announce", "err", err)
		return
	}
	if _, err := d.conn.WriteToUDP(data, addr); err != nil {
		d.log.Warnw("discovery reply failed", "to", addr.String(), "err", err)
		return
	}
	d.metrics.IncDiscoveryReplies()
	d.log.Debugw("answered discovery probe", "from", addr.String())
}

// Close stops Serve by closing the socket.
func (d *DiscoveryResponder) Close() error {
	d.closing.Store(true)
	return d.conn.Close()
}
