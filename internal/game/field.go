package game

import (
	"math"
	"math/rand"
)

const (
	// EaseFactor is the fraction of the remaining distance covered per tick.
	EaseFactor = 0.3

	// SnapEpsilon is the distance below which a position snaps onto its target.
	SnapEpsilon = 1e-3
)

// Field describes the playable area in logical units.
type Field struct {
	Width  float64
	Height float64

	// SpawnMargin keeps new players away from the edges.
	SpawnMargin float64
	// MoveMargin bounds movement targets.
	MoveMargin float64
}

// DefaultField is the 800x600 field.
func DefaultField() Field {
	return Field{Width: 800, Height: 600, SpawnMargin: 50, MoveMargin: 10}
}

// ClampTarget clamps (x, y) into [MoveMargin, W-MoveMargin] x [MoveMargin, H-MoveMargin].
func (f Field) ClampTarget(x, y float64) (float64, float64) {
	return clampAxis(x, f.MoveMargin, f.Width-f.MoveMargin),
		clampAxis(y, f.MoveMargin, f.Height-f.MoveMargin)
}

// RandomSpawn picks a point at least SpawnMargin away from every edge.
func (f Field) RandomSpawn() (float64, float64) {
	x := f.SpawnMargin + rand.Float64()*(f.Width-2*f.SpawnMargin)
	y := f.SpawnMargin + rand.Float64()*(f.Height-2*f.SpawnMargin)
	return x, y
}

func clampAxis(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
