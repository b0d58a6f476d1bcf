// Package migrate implements the periodic process-migration controller
// used by shape-(a) traces: a single logical process that moves between
// tiles every N records instead of carrying an explicit processor id.
package migrate

import "github.com/dmabe/tilecoh/internal/assert"

// Controller tracks which tile currently hosts the logical process and
// reassigns it every N records processed. N=0 disables migration (the
// process stays pinned to its starting tile).
type Controller struct {
	numTiles uint
	every    uint

	current uint
	count   uint
}

// New returns a Controller starting the process on tile 0, migrating
// round-robin to the next tile every `every` records (0 disables
// migration).
func New(numTiles, every uint) *Controller {
	assert.That(numTiles > 0, "migrate: numTiles must be positive")
	return &Controller{numTiles: numTiles, every: every}
}

// Current returns the tile currently hosting the logical process, and
// advances the internal record counter, migrating round-robin to the
// next tile once it reaches the configured period.
func (c *Controller) Current() uint {
	tile := c.current

	if c.every > 0 {
		c.count++
		if c.count >= c.every {
			c.count = 0
			c.current = (c.current + 1) % c.numTiles
		}
	}

	assert.That(tile < c.numTiles, "migrate: current tile %d out of range", tile)
	return tile
}
