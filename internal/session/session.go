// Package session replaces the source's process-global mutable state
// (CURRENTDELAY, CURRENTMEMDELAY, PARTSHARING, the NETWORK pointer)
// with one struct threaded explicitly through every call, per the
// design note in spec §9. It has no dependency on any other simulator
// package so every layer — cache, CCSM, directory, tile, network — can
// import it without risking a cycle.
package session

// Session carries the two per-access delay accumulators and the
// partition-sharing flag through one trace-record's worth of nested
// calls. A Session is reset at the start of every tile Access and is
// not safe for concurrent use — the simulator is single-threaded and
// cooperative (spec §5).
type Session struct {
	CurrentDelay    uint
	CurrentMemDelay uint

	// PartSharing enables inter-partition L2-to-L2 forwarding; when
	// false, Directory.ReplyData forces every inter-partition reply
	// through main memory.
	PartSharing bool
}

// New returns a Session with both accumulators at zero.
func New(partSharing bool) *Session {
	return &Session{PartSharing: partSharing}
}

// Reset zeroes both delay accumulators, mirroring the start of
// Tile.Access in the source.
func (s *Session) Reset() {
	s.CurrentDelay = 0
	s.CurrentMemDelay = 0
}

// AddDelay accumulates a control/compute latency.
func (s *Session) AddDelay(d uint) {
	s.CurrentDelay += d
}

// AddMemDelay accumulates a memory-access latency.
func (s *Session) AddMemDelay(d uint) {
	s.CurrentMemDelay += d
}

// Fanout implements the parallel-fan-out accounting idiom required by
// spec §5: for a broadcast or multi-target invalidation, only the
// maximum of the per-destination delays is charged, not the sum. dispatch
// is called once per target; whatever it adds to s.CurrentDelay during
// that call is folded into the running maximum, and s.CurrentDelay is
// restored to (the delay already outstanding before the fan-out) plus
// that maximum once every target has been visited.
func (s *Session) Fanout(n int, dispatch func(i int)) {
	saved := s.CurrentDelay
	var max uint
	for i := 0; i < n; i++ {
		s.CurrentDelay = 0
		dispatch(i)
		if s.CurrentDelay > max {
			max = s.CurrentDelay
		}
	}
	s.CurrentDelay = saved + max
}
