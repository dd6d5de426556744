package game

import (
	"math"
	"math/rand"
	"strings"
	"testing"
)

func TestClampTarget(t *testing.T) {
	f := DefaultField()
	cases := []struct {
		name         string
		x, y         float64
		wantX, wantY float64
	}{
		{"inside", 400, 300, 400, 300},
		{"on lower bound", 10, 10, 10, 10},
		{"on upper bound", 790, 590, 790, 590},
		{"right of field", 900, 300, 790, 300},
		{"above field", 400, -50, 400, 10},
		{"far corner", 1e9, 1e9, 790, 590},
		{"negative corner", -1e9, -1e9, 10, 10},
		{"infinite", math.Inf(1), math.Inf(-1), 790, 10},
		{"nan", math.NaN(), 20, 400, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, y := f.ClampTarget(tc.x, tc.y)
			if x != tc.wantX || y != tc.wantY {
				t.Fatalf("ClampTarget(%v, %v) = (%v, %v), want (%v, %v)", tc.x, tc.y, x, y, tc.wantX, tc.wantY)
			}
		})
	}
}

func TestClampTargetRandomInputs(t *testing.T) {
	f := DefaultField()
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 10000; i++ {
		x := r.Float64()*2000 - 600
		y := r.Float64()*2000 - 700
		cx, cy := f.ClampTarget(x, y)
		if cx < 10 || cx > 790 || cy < 10 || cy > 590 {
			t.Fatalf("(%v, %v) clamped outside bounds: (%v, %v)", x, y, cx, cy)
		}
		if x >= 10 && x <= 790 && cx != x {
			t.Fatalf("in-range x %v changed to %v", x, cx)
		}
		if y >= 10 && y <= 590 && cy != y {
			t.Fatalf("in-range y %v changed to %v", y, cy)
		}
	}
}

func TestRandomSpawnRespectsMargin(t *testing.T) {
	f := DefaultField()
	for i := 0; i < 5000; i++ {
		x, y := f.RandomSpawn()
		if x < 50 || x > 750 || y < 50 || y > 550 {
			t.Fatalf("spawn (%v, %v) within margin", x, y)
		}
	}
}

func TestBrighten(t *testing.T) {
	cases := []Color{
		{0, 0, 0},
		{0.9, 0.05, 0.05},
		{0.1, 0.1, 0.1},
		{1, 0, 0},
		{0.2, 0.3, 0.4},
		{0.9, 0.9, 0.9},
		{-1, 2, 0.1},
	}
	for _, c := range cases {
		got := Brighten(c)
		for _, v := range []float64{got.R, got.G, got.B} {
			if v < 0 || v > 1 {
				t.Fatalf("Brighten(%+v) = %+v has channel outside [0,1]", c, got)
			}
		}
		if got.Sum() < minBrightness-1e-9 {
			t.Fatalf("Brighten(%+v) = %+v has sum %v", c, got, got.Sum())
		}
	}

	bright := Color{R: 0.9, G: 0.9, B: 0.9}
	if got := Brighten(bright); got != bright {
		t.Fatalf("bright color changed: %+v", got)
	}
}

func TestRandomColorIsBright(t *testing.T) {
	for i := 0; i < 1000; i++ {
		c := RandomColor()
		if c.Sum() < minBrightness-1e-9 {
			t.Fatalf("dim color %+v", c)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("   "); got != DefaultName {
		t.Fatalf("blank name normalized to %q", got)
	}
	if got := NormalizeName("  alice "); got != "alice" {
		t.Fatalf("expected trimmed name, got %q", got)
	}
	long := strings.Repeat("é", MaxNameLength+10)
	if got := NormalizeName(long); len([]rune(got)) != MaxNameLength {
		t.Fatalf("expected %d runes, got %d", MaxNameLength, len([]rune(got)))
	}
}

func TestNewPlayerStartsAtRest(t *testing.T) {
	p := NewPlayer("id", "", 120, 130)
	if p.TargetX != p.X || p.TargetY != p.Y {
		t.Fatalf("new player should target its spawn: %+v", p)
	}
	if p.Name != DefaultName {
		t.Fatalf("expected default name, got %q", p.Name)
	}
}
