package sim

// Clock is the discrete simulation clock. One tick is one simulated second.
// A fresh clock reads 0; the first advanced tick is 1.
type Clock struct {
	tick int64
}

// NewClock returns a clock at tick 0.
func NewClock() *Clock { return &Clock{} }

// Tick returns the current tick.
func (c *Clock) Tick() int64 { return c.tick }

// Advance moves the clock one tick forward and returns the new tick.
func (c *Clock) Advance() int64 {
	c.tick++
	return c.tick
}
