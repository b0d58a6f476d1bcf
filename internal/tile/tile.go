// Package tile implements one tile of the mesh: its L1/L2 cache pair,
// partition membership, and the aggregate-L2 address-hash routing that
// treats a partition's L2s as one logically shared cache.
package tile

import (
	"github.com/dmabe/tilecoh/internal/assert"
	"github.com/dmabe/tilecoh/internal/bitset"
	"github.com/dmabe/tilecoh/internal/cache"
	"github.com/dmabe/tilecoh/internal/ccsm"
	"github.com/dmabe/tilecoh/internal/params"
	"github.com/dmabe/tilecoh/internal/protocol"
	"github.com/dmabe/tilecoh/internal/session"
)

// Network is the subset of the mesh a Tile needs directly: routing an
// L2 request/write to whichever tile in the partition owns the
// addressed slot, and faking the data reply leg of a network-initiated
// L2RD/L2WR.
type Network interface {
	SendReqTileToTile(sess *session.Session, msg protocol.Msg, addr uint64, fromTile, toTile uint) protocol.Result
	FakeDataTileToTile(sess *session.Session, fromTile, toTile uint)
}

// FullNetwork is Network plus the network surface a Tile's L2 lines'
// CCSMs need, so BindNetwork can hand the same concrete network down
// to every line's coherence agent in one call.
type FullNetwork interface {
	Network
	ccsm.Network
}

// Tile is one processing element: an L1, a partition-aware aggregate
// L2, and the per-tile statistics the report reads.
type Tile struct {
	index  uint
	xIndex uint
	yIndex uint

	cfg  params.Config
	part *bitset.Set // tiles sharing this tile's partition

	l1 *cache.Cache
	l2 *cache.Cache

	network Network

	cycle uint

	locXfer, ctocXfer, ptopXfer, memXfer uint
	locDelay, ctocDelay, ptopDelay       uint
	accesses, l2Accesses                 uint
	memCycles, memHopsCycles             uint
}

// New builds a tile at the given mesh index, with L1/L2 caches sized
// per cfg, belonging to the partition described by partMask (the set
// of tile indices sharing this tile's aggregate L2). Every L2 line is
// given its own CCSM bound to this tile as its Broadcaster; the
// network reference is filled in later via BindNetwork.
func New(index uint, cfg params.Config, partMask *bitset.Set) *Tile {
	t := &Tile{
		index:  index,
		xIndex: index / cfg.MeshSide,
		yIndex: index % cfg.MeshSide,
		cfg:    cfg,
		part:   partMask,
		l1:     cache.New(cache.L1, cfg.L1Size, cfg.L1Assoc, cfg.BlockSize, cfg.L1Access),
		l2:     cache.New(cache.L2, cfg.L2Size, cfg.L2Assoc, cfg.BlockSize, cfg.L2Access),
	}

	for _, set := range t.l2.Lines() {
		for i := range set {
			line := &set[i]
			line.CCSM = ccsm.New(t, t.l2, line)
		}
	}

	return t
}

// BindNetwork attaches the network this tile (and every one of its L2
// lines' CCSMs) sends requests through.
func (t *Tile) BindNetwork(n FullNetwork) {
	t.network = n
	for _, set := range t.l2.Lines() {
		for i := range set {
			set[i].CCSM.(*ccsm.CCSM).BindNetwork(n)
		}
	}
}

// Index returns the tile's mesh index, satisfying ccsm.Broadcaster.
func (t *Tile) Index() uint { return t.index }

// XIndex and YIndex return the tile's mesh coordinates.
func (t *Tile) XIndex() uint { return t.xIndex }
func (t *Tile) YIndex() uint { return t.yIndex }

// Cycle returns the tile's total accumulated cycle count.
func (t *Tile) Cycle() uint { return t.cycle }

// L1 and L2 expose the tile's caches, for the stats report.
func (t *Tile) L1() *cache.Cache { return t.l1 }
func (t *Tile) L2() *cache.Cache { return t.l2 }

// Accesses, L2Accesses, LocalXfers, CtocXfers, PtopXfers, MemXfers,
// LocalDelay, CtocDelay, PtopDelay, MemCycles and MemHopsCycles expose
// the tile's statistics counters for the report package.
func (t *Tile) Accesses() uint       { return t.accesses }
func (t *Tile) L2Accesses() uint     { return t.l2Accesses }
func (t *Tile) LocalXfers() uint     { return t.locXfer }
func (t *Tile) CtocXfers() uint      { return t.ctocXfer }
func (t *Tile) PtopXfers() uint      { return t.ptopXfer }
func (t *Tile) MemXfers() uint       { return t.memXfer }
func (t *Tile) LocalDelay() uint     { return t.locDelay }
func (t *Tile) CtocDelay() uint      { return t.ctocDelay }
func (t *Tile) PtopDelay() uint      { return t.ptopDelay }
func (t *Tile) MemCycles() uint      { return t.memCycles }
func (t *Tile) MemHopsCycles() uint  { return t.memHopsCycles }

// Access is the entry point for a processor read/write: it resets the
// session's delay accumulators, checks the L1, falls through to the
// aggregate L2 on a miss (or on a write-through hit), and folds the
// resulting delay into the tile's cycle count.
func (t *Tile) Access(sess *session.Session, addr uint64, op protocol.Op) {
	t.accesses++
	sess.Reset()

	result := t.l1.Access(sess, addr, op)

	if result == protocol.Hit && op == protocol.OpWrite {
		t.l2Access(sess, addr, op)
	}
	if result == protocol.Miss {
		t.l2Access(sess, addr, op)
	}

	t.cycle += sess.CurrentDelay + sess.CurrentMemDelay
}

// l2Access routes addr to whichever tile in the partition owns its
// aggregate-L2 slot and folds the resulting delay into the appropriate
// transfer-class counters: local (own L2), cache-to-cache (remote L2,
// same partition), part-to-part (a miss served from another partition
// with no memory delay charged), or memory.
func (t *Tile) l2Access(sess *session.Session, addr uint64, op protocol.Op) {
	toTile := t.mapAddrToTile(addr)
	msg := protocol.L2RD
	if op == protocol.OpWrite {
		msg = protocol.L2WR
	}

	result := t.network.SendReqTileToTile(sess, msg, addr, t.index, toTile)
	t.l2Accesses++

	if result == protocol.Hit {
		if toTile == t.index {
			t.locXfer++
			t.locDelay += sess.CurrentDelay
		} else {
			t.ctocXfer++
			t.ctocDelay += sess.CurrentDelay
		}
	}

	if result == protocol.Miss {
		if sess.CurrentMemDelay != 0 {
			t.memXfer++
			t.memCycles += sess.CurrentMemDelay
			t.memHopsCycles += sess.CurrentMemDelay + sess.CurrentDelay
		} else {
			t.ptopXfer++
			t.ptopDelay += sess.CurrentDelay
		}
	}
}

// mapAddrToTile hashes addr to one of this tile's partition-mates,
// interleaving the partition's logically-shared L2 across its member
// tiles.
func (t *Tile) mapAddrToTile(addr uint64) uint {
	numTiles := t.part.Count()
	tileOffset := int(t.cfg.AddrHash(addr) % uint64(numTiles))
	return uint(t.part.NthSet(tileOffset + 1))
}

// GetFromNetwork dispatches a message this tile received over the
// mesh. L1INV invalidates the L1 line if present; INV/INT forward to
// the addressed L2 line's CCSM if that line is still resident; L2RD/
// L2WR perform the actual aggregate-L2 access and fake the data reply
// back to the requester. Returns the access result and whether one was
// produced (false for L1INV/INV/INT, which have no result to report).
func (t *Tile) GetFromNetwork(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) (protocol.Result, bool) {
	if msg == protocol.L1INV {
		t.l1.InvalidateLineIfExists(addr)
		sess.AddDelay(t.cfg.L1Access)
		return 0, false
	}

	switch msg {
	case protocol.INV, protocol.INT:
		line := t.l2.FindLine(addr)
		if line == nil {
			return 0, false
		}
		sess.AddDelay(t.cfg.L2Access)
		line.CCSM.(*ccsm.CCSM).GetFromNetwork(sess, msg)
		return 0, false

	case protocol.L2RD:
		result := t.l2.Access(sess, addr, protocol.OpRead)
		t.network.FakeDataTileToTile(sess, t.index, fromTile)
		return result, true

	case protocol.L2WR:
		result := t.l2.Access(sess, addr, protocol.OpWrite)
		t.network.FakeDataTileToTile(sess, t.index, fromTile)
		return result, true

	default:
		assert.Unreachable("tile: getFromNetwork on unexpected message %v", msg)
		return 0, false
	}
}

// BroadcastToPartition sends msg to every tile in this tile's
// partition, including itself, charging only the maximum of the
// per-destination delays (spec's parallel fan-out accounting), not
// their sum.
func (t *Tile) BroadcastToPartition(sess *session.Session, msg protocol.Msg, addr uint64) {
	targets := make([]uint, 0, t.part.Count())
	for i := uint(0); i < t.part.Width(); i++ {
		if t.part.Get(i) {
			targets = append(targets, i)
		}
	}

	sess.Fanout(len(targets), func(i int) {
		t.network.SendReqTileToTile(sess, msg, addr, t.index, targets[i])
	})
}
