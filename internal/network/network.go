// Package network implements the mesh interconnect: Manhattan hop
// distance between tiles, the four directory corner ports, and the
// send/fake/flush primitives every other layer routes its coherence
// traffic through.
package network

import (
	"github.com/dmabe/tilecoh/internal/assert"
	"github.com/dmabe/tilecoh/internal/params"
	"github.com/dmabe/tilecoh/internal/protocol"
	"github.com/dmabe/tilecoh/internal/session"
)

// corner is one of the four external mesh coordinates a directory port
// sits at, one unit outside the grid.
type corner struct{ x, y int }

var corners = [4]corner{
	{-1, 0},
	{4, 0},
	{-1, 3},
	{4, 3},
}

// Tile is the subset of tile.Tile the network needs: its mesh
// coordinates for hop-distance math, and the message dispatch entry
// point a send eventually invokes.
type Tile interface {
	XIndex() uint
	YIndex() uint
	GetFromNetwork(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) (protocol.Result, bool)
}

// Directory is the subset of directory.Directory the network needs to
// service a tile-to-directory request.
type Directory interface {
	GetFromNetwork(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) protocol.DirState
}

// Network is the mesh interconnect binding every tile and the
// directory together.
type Network struct {
	cfg   params.Config
	tiles []Tile
	dir   Directory
}

// New builds a Network over the given tiles and directory. Both must
// already be fully constructed; the network is the last piece wired in
// the simulator's two-phase construction sequence.
func New(cfg params.Config, tiles []Tile, dir Directory) *Network {
	return &Network{cfg: cfg, tiles: tiles, dir: dir}
}

// SendReqTileToTile routes msg from fromTile to toTile, charging a
// control hop (unless they're the same tile) before invoking the
// destination's handler.
func (n *Network) SendReqTileToTile(sess *session.Session, msg protocol.Msg, addr uint64, fromTile, toTile uint) protocol.Result {
	if fromTile != toTile {
		sess.AddDelay(n.cfg.HopDelay(n.calcTileToTileHops(fromTile, toTile)))
	}
	result, _ := n.tiles[toTile].GetFromNetwork(sess, msg, addr, fromTile)
	return result
}

// SendReqDirToTile delivers an INV or INT from the directory to toTile,
// charging the directory-to-tile control hop. The source tile is
// reported as invalid since the directory, not another tile, is the
// sender.
func (n *Network) SendReqDirToTile(sess *session.Session, msg protocol.Msg, addr uint64, toTile uint) {
	sess.AddDelay(n.cfg.HopDelay(n.calcTileToDirHops(addr, toTile)))
	const noTile = ^uint(0)
	n.tiles[toTile].GetFromNetwork(sess, msg, addr, noTile)
}

// SendReqTileToDir delivers an RD/RDX/UPGR from fromTile to the
// directory, charging the tile-to-directory control hop, and returns
// the directory's resulting state.
func (n *Network) SendReqTileToDir(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) protocol.DirState {
	sess.AddDelay(n.cfg.HopDelay(n.calcTileToDirHops(addr, fromTile)))
	return n.dir.GetFromNetwork(sess, msg, addr, fromTile)
}

// FakeReqDirToTile charges a directory-to-tile control hop for a
// reply the directory synthesizes without an actual message.
func (n *Network) FakeReqDirToTile(sess *session.Session, addr uint64, toTile uint) {
	sess.AddDelay(n.cfg.HopDelay(n.calcTileToDirHops(addr, toTile)))
}

// FakeDataTileToTile charges a data hop between two tiles (unless
// they're the same tile) for a data reply synthesized without an
// actual payload.
func (n *Network) FakeDataTileToTile(sess *session.Session, fromTile, toTile uint) {
	if fromTile != toTile {
		sess.AddDelay(n.cfg.DataHopDelay(n.calcTileToTileHops(fromTile, toTile)))
	}
}

// FakeDataDirToTile charges a data hop from the directory to toTile for
// a memory-sourced reply.
func (n *Network) FakeDataDirToTile(sess *session.Session, addr uint64, toTile uint) {
	sess.AddDelay(n.cfg.DataHopDelay(n.calcTileToDirHops(addr, toTile)))
}

// FlushToMem charges the one-way data-hop cost of writing a dirty line
// back to memory. The write itself is not waited on; only the transit
// cost to the directory's corner is charged.
func (n *Network) FlushToMem(sess *session.Session, addr uint64, fromTile uint) {
	sess.AddDelay(n.cfg.DataHopDelay(n.calcTileToDirHops(addr, fromTile)))
}

// CalcTileToTileHops returns the Manhattan hop distance between two
// tiles, satisfying directory.Network/ccsm-adjacent consumers that need
// it directly (findClosestSharer).
func (n *Network) CalcTileToTileHops(a, b uint) uint {
	return n.calcTileToTileHops(a, b)
}

func (n *Network) calcTileToTileHops(fromTile, toTile uint) uint {
	x0, y0 := int(n.tiles[fromTile].XIndex()), int(n.tiles[fromTile].YIndex())
	x1, y1 := int(n.tiles[toTile].XIndex()), int(n.tiles[toTile].YIndex())
	return calcDistance(x0, y0, x1, y1)
}

// calcTileToDirHops returns the hop distance from tile's position to
// the directory corner serving addr's block, selected by the block
// address's low two bits.
func (n *Network) calcTileToDirHops(addr uint64, tile uint) uint {
	dirNum := n.cfg.BlockAddr(addr) % 4
	var c corner
	switch dirNum {
	case 0, 1, 2, 3:
		c = corners[dirNum]
	default:
		assert.Unreachable("network: corner index out of range: %d", dirNum)
	}

	x1, y1 := int(n.tiles[tile].XIndex()), int(n.tiles[tile].YIndex())
	return calcDistance(c.x, c.y, x1, y1)
}

func calcDistance(x0, y0, x1, y1 int) uint {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy < 0 {
		dy = -dy
	}
	return uint(dx + dy)
}
