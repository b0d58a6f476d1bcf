// Package sim owns the construction order the rest of the simulator's
// packages can't express on their own: the directory has no network
// dependency, each tile's L2 lines get a CCSM bound to the tile before
// the network exists, and only once every tile and the directory are
// built can the network — and through it, every two-phase binding — be
// completed.
package sim

import (
	"github.com/dmabe/tilecoh/internal/directory"
	"github.com/dmabe/tilecoh/internal/network"
	"github.com/dmabe/tilecoh/internal/params"
	"github.com/dmabe/tilecoh/internal/tile"
)

// Simulator is a fully wired instance: every tile, the directory, and
// the network connecting them.
type Simulator struct {
	Cfg        params.Config
	PartScheme uint

	Directory *directory.Directory
	Tiles     []*tile.Tile
	Network   *network.Network
}

// New builds and fully wires a Simulator for the given configuration
// and partition scheme.
func New(cfg params.Config, partScheme uint) *Simulator {
	dir := directory.New(partScheme, cfg)

	tiles := make([]*tile.Tile, cfg.NumTiles)
	for i := range tiles {
		idx := uint(i)
		tiles[i] = tile.New(idx, cfg, dir.PartitionMask(idx))
	}

	netTiles := make([]network.Tile, len(tiles))
	for i, t := range tiles {
		netTiles[i] = t
	}
	net := network.New(cfg, netTiles, dir)

	dir.BindNetwork(net)
	for _, t := range tiles {
		t.BindNetwork(net)
	}

	return &Simulator{
		Cfg:        cfg,
		PartScheme: partScheme,
		Directory:  dir,
		Tiles:      tiles,
		Network:    net,
	}
}
