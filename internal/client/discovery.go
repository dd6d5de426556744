package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lanfield/internal/protocol"
)

const (
	DefaultBroadcastAddr   = "255.255.255.255"
	DefaultDiscoveryPort   = 9875
	DefaultDiscoveryWindow = 3 * time.Second

	probeBufferSize = 4096
)

// ServerInfo describes a server found by Discover.
type ServerInfo struct {
	Name        string
	Address     string
	Port        int
	PlayerCount int
	MaxPlayers  int
}

// GameAddr returns the host:port of the server's game port.
func (i ServerInfo) GameAddr() string {
	return net.JoinHostPort(i.Address, strconv.Itoa(i.Port))
}

// Full reports whether the server advertised no free slots.
func (i ServerInfo) Full() bool {
	return i.MaxPlayers > 0 && i.PlayerCount >= i.MaxPlayers
}

func (i ServerInfo) String() string {
	return fmt.Sprintf("%s (%s) - %d/%d players", i.Name, i.GameAddr(), i.PlayerCount, i.MaxPlayers)
}

// DiscoverOptions configures Discover. Zero values use the defaults.
type DiscoverOptions struct {
	BroadcastAddr string
	Port          int
	Window        time.Duration
	Logger        *zap.SugaredLogger
}

// Discover broadcasts one probe and collects ServerAnnounce replies until the
// window closes. Finding nothing is not an error. If ctx ends first, the
// servers found so far are returned with ctx.Err().
func Discover(ctx context.Context, opts DiscoverOptions) ([]ServerInfo, error) {
	if opts.BroadcastAddr == "" {
		opts.BroadcastAddr = DefaultBroadcastAddr
	}
	if opts.Port == 0 {
		opts.Port = DefaultDiscoveryPort
	}
	if opts.Window <= 0 {
		opts.Window = DefaultDiscoveryWindow
	}
	log := zap.NewNop().Sugar()
	if opts.Logger != nil {
		log = opts.Logger
	}
	log = log.Named("discovery")

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.BroadcastAddr, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("client: resolve %s: %w", opts.BroadcastAddr, err)
	}
	// Go enables SO_BROADCAST on UDP sockets.
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("client: open discovery socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP([]byte{1}, target); err != nil {
		return nil, fmt.Errorf("client: send discovery probe: %w", err)
	}
	log.Debugw("sent discovery probe", "to", target.String())

	_ = conn.SetReadDeadline(time.Now().Add(opts.Window))
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	found := newCollector()
	buf := make([]byte, probeBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return found.list(), fmt.Errorf("client: read discovery reply: %w", err)
			}
			break
		}
		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			log.Debugw("ignoring undecodable reply", "from", from.String(), "err", err)
			continue
		}
		announce, ok := msg.(protocol.ServerAnnounce)
		if !ok {
			continue
		}
		found.add(from, announce)
		log.Debugw("discovered server", "from", from.String(), "name", announce.Name)
	}

	servers := found.list()
	log.Infow("discovery finished", "servers", len(servers))
	return servers, ctx.Err()
}

// collector deduplicates replies by source address; later replies win.
type collector struct {
	byAddr map[string]ServerInfo
}

func newCollector() *collector {
	return &collector{byAddr: make(map[string]ServerInfo)}
}

func (c *collector) add(from *net.UDPAddr, a protocol.ServerAnnounce) {
	c.byAddr[from.String()] = ServerInfo{
		Name:        a.Name,
		Address:     from.IP.String(),
		Port:        a.Port,
		PlayerCount: a.PlayerCount,
		MaxPlayers:  a.MaxPlayers,
	}
}

func (c *collector) list() []ServerInfo {
	out := make([]ServerInfo, 0, len(c.byAddr))
	for _, info := range c.byAddr {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Port < out[j].Port
	})
	return out
}
