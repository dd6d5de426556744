// Package view renders a client session with ebiten.
package view

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"go.uber.org/zap"

	"lanfield/internal/client"
	"lanfield/internal/game"
)

const (
	PlayerSize = 20
	tileSize   = 40
)

var (
	tileLight = color.RGBA{R: 46, G: 46, B: 52, A: 255}
	tileDark  = color.RGBA{R: 34, G: 34, B: 40, A: 255}
	outline   = color.RGBA{R: 255, G: 255, B: 255, A: 220}
)

// Session is what the view reads from a client connection.
type Session interface {
	client.Mover
	Connected() bool
}

// Game implements ebiten.Game for one client session.
type Game struct {
	sess  Session
	field game.Field
	ctl   *client.Controller
	log   *zap.SugaredLogger
}

// New creates a view of sess on field.
func New(sess Session, field game.Field, log *zap.SugaredLogger) *Game {
	return &Game{
		sess:  sess,
		field: field,
		ctl:   client.NewController(sess, field),
		log:   log.Named("view"),
	}
}

// Update handles input. It ends the game on Escape or when the server goes away.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if !g.sess.Connected() {
		g.log.Info("connection closed, leaving")
		return ebiten.Termination
	}

	var dx, dy float64
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) || ebiten.IsKeyPressed(ebiten.KeyA) {
		dx--
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) || ebiten.IsKeyPressed(ebiten.KeyD) {
		dx++
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) || ebiten.IsKeyPressed(ebiten.KeyW) {
		dy--
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) || ebiten.IsKeyPressed(ebiten.KeyS) {
		dy++
	}
	if _, err := g.ctl.Nudge(dx, dy); err != nil {
		g.log.Warnw("send move failed", "err", err)
		return ebiten.Termination
	}
	return nil
}

// Draw renders the checkerboard, every player, and a status line.
func (g *Game) Draw(screen *ebiten.Image) {
	g.drawBoard(screen)

	myID := g.sess.PlayerID()
	players := g.sess.Players()
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := players[id]
		x := float32(p.X - PlayerSize/2)
		y := float32(p.Y - PlayerSize/2)
		vector.DrawFilledRect(screen, x, y, PlayerSize, PlayerSize, rgba(p.Color), false)
		if id == myID {
			vector.StrokeRect(screen, x-2, y-2, PlayerSize+4, PlayerSize+4, 2, outline, false)
		}
		ebitenutil.DebugPrintAt(screen, p.Name, int(x), int(y)-16)
	}

	status := "Waiting for the server..."
	if myID != "" {
		status = fmt.Sprintf("%s | %d player(s) | arrows / WASD to move, Esc to quit", short(myID), len(players))
		if tx, ty, ok := g.ctl.Target(); ok {
			status += fmt.Sprintf("\ntarget %.0f, %.0f", tx, ty)
		}
	}
	ebitenutil.DebugPrint(screen, status)
}

// Layout returns the field size as the logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return int(g.field.Width), int(g.field.Height)
}

func (g *Game) drawBoard(screen *ebiten.Image) {
	screen.Fill(tileDark)
	for ty := 0; ty*tileSize < int(g.field.Height); ty++ {
		for tx := 0; tx*tileSize < int(g.field.Width); tx++ {
			if (tx+ty)%2 == 0 {
				continue
			}
			vector.DrawFilledRect(screen, float32(tx*tileSize), float32(ty*tileSize), tileSize, tileSize, tileLight, false)
		}
	}
}

func rgba(c game.Color) color.RGBA {
	return color.RGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: 255}
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
