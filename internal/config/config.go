// Package config holds the server's runtime settings. Values come from
// defaults, then command-line flags, then LANFIELD_* environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"lanfield/internal/game"
)

const (
	DefaultGamePort      = 9876
	DefaultDiscoveryPort = 9875
	DefaultHTTPPort      = 9877
	DefaultMaxPlayers    = 10
	DefaultTickRate      = 30
)

// Config is the server configuration.
type Config struct {
	// Name is advertised to discovery probes.
	Name string

	GameAddr      string
	DiscoveryAddr string
	// HTTPAddr serves /ws, /metrics, /healthz and /state. Empty disables it.
	HTTPAddr string

	MaxPlayers int
	TickRate   int

	FieldWidth  float64
	FieldHeight float64
	SpawnMargin float64
	MoveMargin  float64

	LogFile  string
	LogLevel string
}

// Default returns the stock configuration.
func Default() Config {
	f := game.DefaultField()
	return Config{
		Name:          "Game Server",
		GameAddr:      fmt.Sprintf(":%d", DefaultGamePort),
		DiscoveryAddr: fmt.Sprintf(":%d", DefaultDiscoveryPort),
		HTTPAddr:      fmt.Sprintf(":%d", DefaultHTTPPort),
		MaxPlayers:    DefaultMaxPlayers,
		TickRate:      DefaultTickRate,
		FieldWidth:    f.Width,
		FieldHeight:   f.Height,
		SpawnMargin:   f.SpawnMargin,
		MoveMargin:    f.MoveMargin,
		LogLevel:      "info",
	}
}

// RegisterFlags binds the configuration to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Name, "name", c.Name, "server name shown to discovering clients")
	fs.StringVar(&c.GameAddr, "addr", c.GameAddr, "TCP game listen address")
	fs.StringVar(&c.DiscoveryAddr, "discovery", c.DiscoveryAddr, "UDP discovery listen address")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP listen address for /ws and /metrics (empty disables)")
	fs.IntVar(&c.MaxPlayers, "max-players", c.MaxPlayers, "maximum concurrent players")
	fs.IntVar(&c.TickRate, "tick-rate", c.TickRate, "simulation ticks per second")
	fs.Float64Var(&c.FieldWidth, "width", c.FieldWidth, "field width")
	fs.Float64Var(&c.FieldHeight, "height", c.FieldHeight, "field height")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "rolling log file (empty logs to stderr only)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// ApplyEnv overrides fields from LANFIELD_* variables found through lookup.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("LANFIELD_NAME", &c.Name)
	str("LANFIELD_GAME_ADDR", &c.GameAddr)
	str("LANFIELD_DISCOVERY_ADDR", &c.DiscoveryAddr)
	str("LANFIELD_HTTP_ADDR", &c.HTTPAddr)
	num("LANFIELD_MAX_PLAYERS", &c.MaxPlayers)
	num("LANFIELD_TICK_RATE", &c.TickRate)
	float("LANFIELD_FIELD_WIDTH", &c.FieldWidth)
	float("LANFIELD_FIELD_HEIGHT", &c.FieldHeight)
	str("LANFIELD_LOG_FILE", &c.LogFile)
	str("LANFIELD_LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.MaxPlayers <= 0 {
		errs = append(errs, fmt.Errorf("max players must be positive, got %d", c.MaxPlayers))
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("tick rate must be in 1..1000, got %d", c.TickRate))
	}
	if c.SpawnMargin < c.MoveMargin {
		errs = append(errs, fmt.Errorf("spawn margin %v is smaller than move margin %v", c.SpawnMargin, c.MoveMargin))
	}
	if c.FieldWidth <= 2*c.SpawnMargin || c.FieldHeight <= 2*c.SpawnMargin {
		errs = append(errs, fmt.Errorf("field %vx%v too small for spawn margin %v", c.FieldWidth, c.FieldHeight, c.SpawnMargin))
	}
	for name, addr := range map[string]string{"game": c.GameAddr, "discovery": c.DiscoveryAddr} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s address %q: %w", name, addr, err))
		}
	}
	if c.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			errs = append(errs, fmt.Errorf("http address %q: %w", c.HTTPAddr, err))
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Field returns the field geometry.
func (c Config) Field() game.Field {
	return game.Field{
		Width:       c.FieldWidth,
		Height:      c.FieldHeight,
		SpawnMargin: c.SpawnMargin,
		MoveMargin:  c.MoveMargin,
	}
}

// TickPeriod is the simulation period.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// GamePort returns the numeric port of GameAddr, or 0 if it has none.
func (c Config) GamePort() int {
	_, port, err := net.SplitHostPort(c.GameAddr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
