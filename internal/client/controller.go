package client

import "lanfield/internal/game"

// MoveStep is how far one frame of held input moves the target.
const MoveStep = 5.0

// Mover is the part of a Session the Controller drives.
type Mover interface {
	PlayerID() string
	Players() map[string]game.Player
	SendMove(x, y float64) error
}

// Controller turns directional input into move intents. It tracks the local
// target and sends only when the clamped target actually changes.
type Controller struct {
	m     Mover
	field game.Field
	step  float64

	x, y     float64
	anchored bool
}

// NewController drives m within field.
func NewController(m Mover, field game.Field) *Controller {
	return &Controller{m: m, field: field, step: MoveStep}
}

// Target returns the local target, once it is known.
func (c *Controller) Target() (x, y float64, ok bool) {
	return c.x, c.y, c.anchored
}

// Nudge moves the target by (dx, dy) steps. It reports whether a move was
// sent. Input is ignored until the local player appears in a snapshot.
func (c *Controller) Nudge(dx, dy float64) (bool, error) {
	if !c.anchor() || (dx == 0 && dy == 0) {
		return false, nil
	}
	x, y := c.field.ClampTarget(c.x+dx*c.step, c.y+dy*c.step)
	if x == c.x && y == c.y {
		return false, nil
	}
	c.x, c.y = x, y
	if err := c.m.SendMove(x, y); err != nil {
		return false, err
	}
	return true, nil
}

// anchor starts the local target from the server's view of the player.
func (c *Controller) anchor() bool {
	if c.anchored {
		return true
	}
	id := c.m.PlayerID()
	if id == "" {
		return false
	}
	me, ok := c.m.Players()[id]
	if !ok {
		return false
	}
	c.x, c.y = me.TargetX, me.TargetY
	c.anchored = true
	return true
}
