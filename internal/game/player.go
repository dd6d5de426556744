package game

import (
	"math/rand"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultName is used when a joining player sends an empty name.
	DefaultName = "Player"

	// MaxNameLength caps display names, in runes.
	MaxNameLength = 32

	// minBrightness is the lowest allowed sum of a player's color channels.
	minBrightness = 1.5
)

// Color is an RGB color with channels in [0, 1].
type Color struct {
	R float64 `msgpack:"r" json:"r"`
	G float64 `msgpack:"g" json:"g"`
	B float64 `msgpack:"b" json:"b"`
}

// Sum returns the sum of the three channels.
func (c Color) Sum() float64 {
	return c.R + c.G + c.B
}

// RandomColor returns a random color bright enough to stand out on the field.
func RandomColor() Color {
	return Brighten(Color{R: rand.Float64(), G: rand.Float64(), B: rand.Float64()})
}

// Brighten lifts c until its channel sum reaches 1.5. Channels are clamped to
// [0, 1]; the remaining deficit is spread over the unsaturated channels.
func Brighten(c Color) Color {
	ch := [3]float64{clamp01(c.R), clamp01(c.G), clamp01(c.B)}
	sum := ch[0] + ch[1] + ch[2]
	if sum >= minBrightness {
		return Color{R: ch[0], G: ch[1], B: ch[2]}
	}
	if sum == 0 {
		return Color{R: 0.5, G: 0.5, B: 0.5}
	}

	scale := minBrightness / sum
	for i := range ch {
		ch[i] = min(1, ch[i]*scale)
	}
	// Each pass saturates at least one channel, so three passes always suffice.
	for pass := 0; pass < 3; pass++ {
		sum = ch[0] + ch[1] + ch[2]
		if sum >= minBrightness {
			break
		}
		open := 0
		for _, v := range ch {
			if v < 1 {
				open++
			}
		}
		if open == 0 {
			break
		}
		add := (minBrightness - sum) / float64(open)
		for i := range ch {
			if ch[i] < 1 {
				ch[i] = min(1, ch[i]+add)
			}
		}
	}
	return Color{R: ch[0], G: ch[1], B: ch[2]}
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Player is the authoritative record of one connected player.
type Player struct {
	ID      string  `msgpack:"i" json:"id"`
	Name    string  `msgpack:"n" json:"name"`
	X       float64 `msgpack:"x" json:"x"`
	Y       float64 `msgpack:"y" json:"y"`
	TargetX float64 `msgpack:"tx" json:"targetX"`
	TargetY float64 `msgpack:"ty" json:"targetY"`
	Color   Color   `msgpack:"c" json:"color"`

	// UpdatedAt is the Unix time in milliseconds of the last change.
	UpdatedAt int64 `msgpack:"u" json:"updatedAt"`
}

// NewPlayer creates a player standing still at (x, y) with a random color.
func NewPlayer(id, name string, x, y float64) Player {
	return Player{
		ID:      id,
		Name:    NormalizeName(name),
		X:       x,
		Y:       y,
		TargetX: x,
		TargetY: y,
		Color:   RandomColor(),
	}
}

// NormalizeName trims name, caps its length and falls back to DefaultName.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

// ease moves the position one step toward the target.
func (p *Player) ease() {
	p.X = easeAxis(p.X, p.TargetX)
	p.Y = easeAxis(p.Y, p.TargetY)
}

func easeAxis(pos, target float64) float64 {
	d := target - pos
	if d < SnapEpsilon && d > -SnapEpsilon {
		return target
	}
	return pos + d*EaseFactor
}
