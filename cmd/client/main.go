package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"lanfield/internal/client"
	"lanfield/internal/game"
	"lanfield/internal/logging"
	"lanfield/internal/view"
)

func main() {
	var (
		addr      = flag.String("server", "", "game server host:port (skips discovery)")
		wsURL     = flag.String("ws", "", "connect over WebSocket, e.g. ws://host:9877/ws")
		name      = flag.String("name", game.DefaultName, "player name")
		broadcast = flag.String("broadcast", client.DefaultBroadcastAddr, "discovery broadcast address")
		port      = flag.Int("discovery-port", client.DefaultDiscoveryPort, "discovery UDP port")
		window    = flag.Duration("discover", client.DefaultDiscoveryWindow, "how long to wait for discovery replies")
		pick      = flag.Int("pick", 0, "index of the discovered server to join")
		logLevel  = flag.String("log-level", "info", "debug, info, warn or error")
		logFile   = flag.String("log-file", "", "rolling log file")
	)
	flag.Parse()

	log, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := connect(ctx, log, *addr, *wsURL, *name, client.DiscoverOptions{
		BroadcastAddr: *broadcast,
		Port:          *port,
		Window:        *window,
		Logger:        log,
	}, *pick)
	if err != nil {
		log.Fatalw("could not join a game", "err", err)
	}
	defer sess.Close()

	select {
	case <-sess.Ready():
	case <-sess.Done():
		log.Fatalw("server refused the session", "err", sess.Err())
	case <-time.After(5 * time.Second):
		log.Fatal("timed out waiting for a player id")
	}

	field := game.DefaultField()
	ebiten.SetWindowSize(int(field.Width), int(field.Height))
	ebiten.SetWindowTitle("lanfield - " + *name)

	if err := ebiten.RunGame(view.New(sess, field, log)); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatalw("game loop failed", "err", err)
	}
}

func connect(ctx context.Context, log *zap.SugaredLogger, addr, wsURL, name string, opts client.DiscoverOptions, pick int) (*client.Session, error) {
	copts := client.Options{Logger: log}
	switch {
	case wsURL != "":
		return client.DialWebSocket(ctx, wsURL, name, copts)
	case addr != "":
		return client.Dial(ctx, addr, name, copts)
	}

	log.Infow("searching for servers", "window", opts.Window)
	servers, err := client.Discover(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers found on the local network")
	}
	for i, s := range servers {
		fmt.Printf("[%d] %s\n", i, s)
	}
	if pick < 0 || pick >= len(servers) {
		return nil, fmt.Errorf("pick %d out of range, found %d server(s)", pick, len(servers))
	}
	chosen := servers[pick]
	if chosen.Full() {
		log.Warnw("server advertises no free slots", "server", chosen.String())
	}
	log.Infow("joining", "server", chosen.String())
	return client.Dial(ctx, chosen.GameAddr(), name, copts)
}
