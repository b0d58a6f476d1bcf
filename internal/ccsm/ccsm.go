// Package ccsm implements the per-L2-line cache coherence state
// machine for the MESI protocol: processor-initiated and
// network-initiated transitions, and setState's invalidate-broadcast
// side effect.
package ccsm

import (
	"github.com/dmabe/tilecoh/internal/assert"
	"github.com/dmabe/tilecoh/internal/cache"
	"github.com/dmabe/tilecoh/internal/protocol"
	"github.com/dmabe/tilecoh/internal/session"
)

// Network is the subset of the mesh network a CCSM needs: sending a
// coherence request up to the directory (returning the directory's
// resulting state, relevant only for RD) and flushing a dirty line back
// to main memory on eviction/downgrade. Defined here, on the consumer
// side, so network.Network can satisfy it without internal/network
// importing internal/ccsm.
type Network interface {
	SendReqTileToDir(sess *session.Session, msg protocol.Msg, addr uint64, tileIdx uint) protocol.DirState
	FlushToMem(sess *session.Session, addr uint64, tileIdx uint)
}

// Broadcaster is the subset of a Tile a CCSM needs to invalidate its
// own and peer L1s on an L2-line eviction or downgrade.
type Broadcaster interface {
	BroadcastToPartition(sess *session.Session, msg protocol.Msg, addr uint64)
	Index() uint
}

// CCSM is one L2 line's coherence state machine.
type CCSM struct {
	state protocol.MESIState

	tile    Broadcaster
	c       *cache.Cache
	line    *cache.Line
	network Network
}

// New returns a CCSM in the invalid state, bound to the L2 line it
// governs. The network reference is filled in later via BindNetwork
// once the network exists, mirroring the two-phase construction the
// source's global NETWORK pointer achieves implicitly.
func New(tile Broadcaster, c *cache.Cache, line *cache.Line) *CCSM {
	return &CCSM{
		state: protocol.StateI,
		tile:  tile,
		c:     c,
		line:  line,
	}
}

// BindNetwork attaches the network this CCSM sends coherence requests
// through. Must be called before any Access reaches this line.
func (m *CCSM) BindNetwork(n Network) { m.network = n }

// State reports the line's current MESI state.
func (m *CCSM) State() protocol.MESIState { return m.state }

func (m *CCSM) baseAddr() uint64 { return m.c.BaseAddr(m.line.Tag(), m.line.Index()) }

// setState transitions to s. Transitioning out of a non-invalid state
// into invalid broadcasts an L1 invalidation to every tile in the
// partition before the line itself is invalidated, since the broadcast
// needs the line's still-valid tag/index to compute the block address.
func (m *CCSM) setState(sess *session.Session, s protocol.MESIState) {
	if m.state != protocol.StateI && s == protocol.StateI {
		assert.That(m.line.IsValid(), "ccsm: setState(I) on an already-invalid line")

		m.tile.BroadcastToPartition(sess, protocol.L1INV, m.baseAddr())

		if m.line.Flags() == cache.Dirty {
			m.c.WriteBack()
		}

		m.line.Invalidate()
	}

	m.state = s
}

// Evict forces the line to invalid, satisfying cache.CoherenceAgent.
// Called by Cache.fillLine just before the line's identity is
// overwritten by the incoming block.
func (m *CCSM) Evict(sess *session.Session) {
	m.setState(sess, protocol.StateI)
}

// netInitInv handles a directory-issued INV: M flushes the dirty data
// to memory before invalidating; E and S invalidate with nothing to
// write back; I should never receive an INV.
func (m *CCSM) netInitInv(sess *session.Session) {
	addr := m.baseAddr()
	switch m.state {
	case protocol.StateM:
		m.network.FlushToMem(sess, addr, m.tile.Index())
		m.setState(sess, protocol.StateI)
	case protocol.StateE, protocol.StateS:
		m.setState(sess, protocol.StateI)
	case protocol.StateI:
		assert.Unreachable("ccsm: netInitInv on an already-invalid line")
	default:
		assert.Unreachable("ccsm: netInitInv from unknown state %v", m.state)
	}
}

// netInitInt handles a directory-issued INT (downgrade-to-shared
// intervention): M flushes and downgrades, E downgrades with nothing to
// write back, S and I have nothing to do.
func (m *CCSM) netInitInt(sess *session.Session) {
	addr := m.baseAddr()
	switch m.state {
	case protocol.StateM:
		m.network.FlushToMem(sess, addr, m.tile.Index())
		m.setState(sess, protocol.StateS)
	case protocol.StateE:
		m.setState(sess, protocol.StateS)
	case protocol.StateS, protocol.StateI:
	default:
		assert.Unreachable("ccsm: netInitInt from unknown state %v", m.state)
	}
}

// ProcInitWr handles a processor write, satisfying
// cache.CoherenceAgent. M has nothing to do; E migrates silently to M;
// S must send an UPGR to the directory before becoming M; I must send
// an RDX before becoming M.
func (m *CCSM) ProcInitWr(sess *session.Session, addr uint64) {
	switch m.state {
	case protocol.StateM:
	case protocol.StateE:
		m.setState(sess, protocol.StateM)
	case protocol.StateS:
		m.network.SendReqTileToDir(sess, protocol.UPGR, addr, m.tile.Index())
		m.setState(sess, protocol.StateM)
	case protocol.StateI:
		m.network.SendReqTileToDir(sess, protocol.RDX, addr, m.tile.Index())
		m.setState(sess, protocol.StateM)
	default:
		assert.Unreachable("ccsm: procInitWr from unknown state %v", m.state)
	}
}

// ProcInitRd handles a processor read, satisfying
// cache.CoherenceAgent. M, E and S have nothing to do; I sends an RD to
// the directory and adopts E or S depending on whether the directory's
// resulting state is the combined exclusive/modified state.
func (m *CCSM) ProcInitRd(sess *session.Session, addr uint64) {
	switch m.state {
	case protocol.StateM, protocol.StateE, protocol.StateS:
	case protocol.StateI:
		dirState := m.network.SendReqTileToDir(sess, protocol.RD, addr, m.tile.Index())
		if dirState == protocol.DirEM {
			m.setState(sess, protocol.StateE)
		} else {
			m.setState(sess, protocol.StateS)
		}
	default:
		assert.Unreachable("ccsm: procInitRd from unknown state %v", m.state)
	}
}

// GetFromNetwork dispatches a directory-issued message to this line's
// CCSM. Only INV and INT ever arrive this way; anything else is a
// protocol violation.
func (m *CCSM) GetFromNetwork(sess *session.Session, msg protocol.Msg) {
	switch msg {
	case protocol.INV:
		m.netInitInv(sess)
	case protocol.INT:
		m.netInitInt(sess)
	default:
		assert.Unreachable("ccsm: getFromNetwork on unexpected message %v", msg)
	}
}
