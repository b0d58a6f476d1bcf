package network

import (
	"testing"

	"github.com/dmabe/tilecoh/internal/params"
	"github.com/dmabe/tilecoh/internal/protocol"
	"github.com/dmabe/tilecoh/internal/session"
	"github.com/stretchr/testify/require"
)

type fakeTile struct {
	x, y     uint
	received []protocol.Msg
	result   protocol.Result
}

func (f *fakeTile) XIndex() uint { return f.x }
func (f *fakeTile) YIndex() uint { return f.y }
func (f *fakeTile) GetFromNetwork(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) (protocol.Result, bool) {
	f.received = append(f.received, msg)
	return f.result, true
}

type fakeDirectory struct {
	received []protocol.Msg
	state    protocol.DirState
}

func (f *fakeDirectory) GetFromNetwork(sess *session.Session, msg protocol.Msg, addr uint64, fromTile uint) protocol.DirState {
	f.received = append(f.received, msg)
	return f.state
}

func meshCfg() params.Config {
	cfg := params.Default()
	cfg.NumTiles = 16
	cfg.MeshSide = 4
	cfg.HopTime = 4
	return cfg
}

func meshTiles() []Tile {
	tiles := make([]Tile, 16)
	for i := 0; i < 16; i++ {
		idx := uint(i)
		tiles[i] = &fakeTile{x: idx / 4, y: idx % 4}
	}
	return tiles
}

func TestCalcTileToTileHopsIsTrueManhattanDistance(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	n := New(cfg, meshTiles(), dir)

	// tile 0 is (0,0), tile 15 is (3,3): true Manhattan distance is 6.
	require.Equal(t, uint(6), n.CalcTileToTileHops(0, 15))
	// tile 5 is (1,1), tile 6 is (1,2): adjacent, distance 1.
	require.Equal(t, uint(1), n.CalcTileToTileHops(5, 6))
	require.Equal(t, uint(0), n.CalcTileToTileHops(3, 3))
}

func TestSendReqTileToTileChargesHopDelayExceptSameTile(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	tiles := meshTiles()
	n := New(cfg, tiles, dir)
	sess := session.New(true)

	n.SendReqTileToTile(sess, protocol.L2RD, 0x1000, 0, 0)
	require.Equal(t, uint(0), sess.CurrentDelay)

	sess.Reset()
	n.SendReqTileToTile(sess, protocol.L2RD, 0x1000, 0, 15)
	require.Equal(t, cfg.HopDelay(6), sess.CurrentDelay)
}

func TestCalcTileToDirHopsPicksCornerByBlockAddrMod4(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	n := New(cfg, meshTiles(), dir)

	// tile 0 sits at (0,0). corners[0] = (-1,0): distance 1.
	require.Equal(t, uint(1), n.calcTileToDirHops(0x0, 0))
	// blockAddr 1 selects corners[1] = (4,0): distance 4.
	require.Equal(t, uint(4), n.calcTileToDirHops(uint64(cfg.BlockSize), 0))
}

func TestSendReqTileToDirChargesControlHopAndReturnsDirState(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{state: protocol.DirS}
	n := New(cfg, meshTiles(), dir)
	sess := session.New(true)

	state := n.SendReqTileToDir(sess, protocol.RD, 0x1000, 0)
	require.Equal(t, protocol.DirS, state)
	require.Contains(t, dir.received, protocol.RD)
	require.Greater(t, sess.CurrentDelay, uint(0))
}

func TestSendReqDirToTileDeliversWithoutFromTile(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	tiles := meshTiles()
	n := New(cfg, tiles, dir)
	sess := session.New(true)

	n.SendReqDirToTile(sess, protocol.INV, 0x1000, 3)
	require.Contains(t, tiles[3].(*fakeTile).received, protocol.INV)
}

func TestFakeDataDirToTileChargesDataHopDelay(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	n := New(cfg, meshTiles(), dir)
	sess := session.New(true)

	n.FakeDataDirToTile(sess, 0x1000, 0)
	require.Equal(t, cfg.DataHopDelay(n.calcTileToDirHops(0x1000, 0)), sess.CurrentDelay)
}

func TestFakeDataTileToTileIsZeroForSameTile(t *testing.T) {
	cfg := meshCfg()
	dir := &fakeDirectory{}
	n := New(cfg, meshTiles(), dir)
	sess := session.New(true)

	n.FakeDataTileToTile(sess, 2, 2)
	require.Equal(t, uint(0), sess.CurrentDelay)
	require.Equal(t, uint(0), sess.CurrentMemDelay)
}
