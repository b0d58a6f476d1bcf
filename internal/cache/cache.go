// Package cache implements the two-level set-associative cache used by
// both L1 and L2: address decomposition, LRU victim selection, fill,
// invalidate, and the access counters the stats report reads.
package cache

import (
	"github.com/dmabe/tilecoh/internal/protocol"
	"github.com/dmabe/tilecoh/internal/session"
)

// Level distinguishes L1 (write-through, no coherence agent) from L2
// (inclusive of L1, CCSM-managed).
type Level int

const (
	L1 Level = iota
	L2
)

// Flags is a cache line's validity/dirty state.
type Flags int

const (
	Invalid Flags = iota
	Valid
	Dirty
)

// CoherenceAgent is the hook a Cache calls into for its L2 lines: on
// fill it notifies the victim's agent of eviction before the line's
// identity is overwritten, and after every access it hands the access
// off to the agent's MESI transition logic. L1 lines carry a nil agent
// since the source's write-through L1 has no per-line coherence state.
type CoherenceAgent interface {
	Evict(sess *session.Session)
	ProcInitRd(sess *session.Session, addr uint64)
	ProcInitWr(sess *session.Session, addr uint64)
}

// Line is one cache way: tag/index identity, validity/dirty flags, an
// LRU sequence stamp, and — for L2 only — a back-reference to the
// line's coherence agent.
type Line struct {
	tag   uint64
	index uint64
	flags Flags
	seq   uint64

	CCSM CoherenceAgent // nil for L1 lines
}

func (l *Line) Tag() uint64    { return l.tag }
func (l *Line) Index() uint64  { return l.index }
func (l *Line) Flags() Flags   { return l.flags }
func (l *Line) Seq() uint64    { return l.seq }
func (l *Line) IsValid() bool  { return l.flags != Invalid }
func (l *Line) SetFlags(f Flags) { l.flags = f }
func (l *Line) SetSeq(seq uint64) { l.seq = seq }

// Invalidate clears a line's identity, matching the source's
// CacheLine::invalidate (tag reset alongside the flag, even though tag
// is disregarded once Flags == Invalid).
func (l *Line) Invalidate() {
	l.tag = 0
	l.flags = Invalid
}

// Cache is a set-associative cache of either level.
type Cache struct {
	level    Level
	size     uint
	lineSize uint
	assoc    uint

	numSets    uint
	indexBits  uint
	offsetBits uint
	tagBits    uint
	tagMask    uint64

	accessTime uint

	lines [][]Line

	lruCounter uint64

	reads, readMisses   uint64
	writes, writeMisses uint64
	writeBacks          uint64
}

// New builds a cache of the given level, total size, associativity and
// line size, charging accessTime cycles on every Access. For L2
// caches, callers must attach a CoherenceAgent to every line after
// construction (tile.New does this, since the agent needs a
// back-reference to both the cache and the owning tile).
func New(level Level, size, assoc, lineSize, accessTime uint) *Cache {
	numSets := size / lineSize / assoc
	offsetBits := log2(lineSize)
	indexBits := log2(numSets)
	tagBits := 32 - indexBits - offsetBits

	lines := make([][]Line, numSets)
	for i := range lines {
		lines[i] = make([]Line, assoc)
	}

	return &Cache{
		level:      level,
		size:       size,
		lineSize:   lineSize,
		assoc:      assoc,
		numSets:    numSets,
		indexBits:  indexBits,
		offsetBits: offsetBits,
		tagBits:    tagBits,
		tagMask:    (uint64(1)<<(indexBits+offsetBits) - 1),
		accessTime: accessTime,
		lines:      lines,
	}
}

// Lines exposes the raw [set][way] array so tile.New can attach a
// CoherenceAgent to every L2 line at construction time.
func (c *Cache) Lines() [][]Line { return c.lines }

func (c *Cache) calcTag(addr uint64) uint64 {
	return addr >> (c.indexBits + c.offsetBits)
}

func (c *Cache) calcIndex(addr uint64) uint64 {
	return (addr & c.tagMask) >> c.offsetBits
}

// BaseAddr reconstructs the full block address a line identifies, used
// whenever CCSM or an eviction needs to address the L1 or the directory
// knowing only the line's tag/index.
func (c *Cache) BaseAddr(tag, index uint64) uint64 {
	return ((tag << c.indexBits) | index) << c.offsetBits
}

// findLine returns the valid line in addr's set whose tag matches, or
// nil if no such line exists.
func (c *Cache) findLine(addr uint64) *Line {
	index := c.calcIndex(addr)
	tag := c.calcTag(addr)
	set := c.lines[index]
	for i := range set {
		if !set[i].IsValid() {
			continue
		}
		if set[i].tag == tag {
			return &set[i]
		}
	}
	return nil
}

// getLRU returns addr's set's victim: the first invalid line if any
// exists, else the valid line with the minimum LRU sequence.
func (c *Cache) getLRU(addr uint64) *Line {
	index := c.calcIndex(addr)
	set := c.lines[index]

	for i := range set {
		if !set[i].IsValid() {
			return &set[i]
		}
	}

	victim := -1
	min := c.lruCounter
	for i := range set {
		if set[i].seq <= min {
			victim = i
			min = set[i].seq
		}
	}
	if victim < 0 {
		panic("cache: getLRU found no victim in a non-empty set")
	}
	return &set[victim]
}

// fillLine allocates a victim for addr, evicting the prior occupant if
// one exists, and installs addr's tag/index as VALID.
func (c *Cache) fillLine(sess *session.Session, addr uint64) *Line {
	victim := c.getLRU(addr)

	if victim.IsValid() && victim.flags == Dirty {
		c.writeBacks++
	}

	// Evict before overwriting tag/index: the eviction path (CCSM
	// setState->I) still needs the victim's old identity to address
	// the L1 invalidation broadcast and directory bookkeeping.
	if c.level == L2 && victim.IsValid() {
		victim.CCSM.Evict(sess)
	}

	c.updateLRU(victim)
	victim.tag = c.calcTag(addr)
	victim.index = c.calcIndex(addr)
	victim.flags = Valid

	return victim
}

func (c *Cache) updateLRU(l *Line) {
	l.seq = c.lruCounter
}

// Access performs a read or write of addr, returning Hit or Miss. For
// L2 caches, the access is additionally forwarded to the resulting
// line's coherence agent — after the fill, so the agent always sees a
// valid line.
func (c *Cache) Access(sess *session.Session, addr uint64, op protocol.Op) protocol.Result {
	sess.AddDelay(c.accessTime)

	c.lruCounter++

	if op == protocol.OpWrite {
		c.writes++
	} else {
		c.reads++
	}

	line := c.findLine(addr)
	result := protocol.Hit
	if line == nil {
		result = protocol.Miss
	}

	if result == protocol.Miss {
		line = c.fillLine(sess, addr)
		if op == protocol.OpWrite {
			c.writeMisses++
		} else {
			c.readMisses++
		}
	}

	if op == protocol.OpWrite {
		line.flags = Dirty
	}

	if result == protocol.Hit {
		c.updateLRU(line)
	}

	if c.level == L2 {
		if op == protocol.OpWrite {
			line.CCSM.ProcInitWr(sess, addr)
		} else {
			line.CCSM.ProcInitRd(sess, addr)
		}
	}

	return result
}

// InvalidateLineIfExists removes addr's line if present, counting a
// writeback first if it was dirty. Used by an L1 when its owning
// tile's L2 evicts the corresponding line (inclusion).
func (c *Cache) InvalidateLineIfExists(addr uint64) {
	line := c.findLine(addr)
	if line == nil {
		return
	}
	if line.flags == Dirty {
		c.writeBacks++
	}
	line.Invalidate()
}

// WriteBack records an externally-observed writeback (used by CCSM's
// setState when invalidating a dirty L2 line).
func (c *Cache) WriteBack() { c.writeBacks++ }

func (c *Cache) Reads() uint64       { return c.reads }
func (c *Cache) ReadMisses() uint64  { return c.readMisses }
func (c *Cache) Writes() uint64      { return c.writes }
func (c *Cache) WriteMisses() uint64 { return c.writeMisses }
func (c *Cache) WriteBacks() uint64  { return c.writeBacks }

// FindLine exposes findLine to callers outside the package (tile's
// network-message dispatch needs to locate an L2 line without causing
// a fill on what would otherwise be a miss).
func (c *Cache) FindLine(addr uint64) *Line { return c.findLine(addr) }

func log2(n uint) uint {
	if n == 0 || n&(n-1) != 0 {
		panic("cache: geometry parameter must be a power of two")
	}
	var r uint
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
