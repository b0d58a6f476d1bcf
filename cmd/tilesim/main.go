// Command tilesim replays a memory-access trace against a tiled
// multiprocessor with a directory-based MESI coherence protocol and
// reports per-tile cycle-accounting statistics.
//
// Usage:
//
//	tilesim <partitions> <partsharing> <trace_file> [tabular]
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dmabe/tilecoh/internal/migrate"
	"github.com/dmabe/tilecoh/internal/obs"
	"github.com/dmabe/tilecoh/internal/params"
	"github.com/dmabe/tilecoh/internal/report"
	"github.com/dmabe/tilecoh/internal/session"
	"github.com/dmabe/tilecoh/internal/sim"
	"github.com/dmabe/tilecoh/internal/trace"
)

func main() {
	migrateEvery := flag.Uint("migrate-every", 0, "for shape-(a) traces, migrate the logical process to the next tile every N records (0 disables migration)")
	flag.Parse()

	obs.Init()

	args := flag.Args()
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "input format: tilesim <partitions> <partsharing> <trace_file> [tabular]")
		os.Exit(1)
	}

	partScheme, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad partitions argument %q: %v\n", args[0], err)
		os.Exit(1)
	}

	partSharingVal, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad partsharing argument %q: %v\n", args[1], err)
		os.Exit(1)
	}

	traceFile := args[2]
	tabular := len(args) > 3

	cfg := params.Default()
	partSharing := partSharingVal != 0

	if !tabular {
		obs.Banner(cfg, uint(partScheme), partSharing, traceFile)
	}

	content, err := os.ReadFile(traceFile)
	if err != nil {
		obs.Fatal(0, "trace file problem", err)
		return
	}

	firstLine := ""
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			firstLine = line
			break
		}
	}

	shape, err := trace.DetectShape(firstLine)
	if err != nil {
		obs.Fatal(0, "trace file problem", err)
		return
	}

	s := sim.New(cfg, uint(partScheme))
	sess := session.New(partSharing)
	mig := migrate.New(cfg.NumTiles, *migrateEvery)

	tileOf := func() uint { return mig.Current() }

	err = trace.Scan(strings.NewReader(string(content)), shape, tileOf, func(rec trace.Record) error {
		s.Tiles[rec.Tile].Access(sess, rec.Addr, rec.Op)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("trace replay failed")
		os.Exit(1)
	}

	if tabular {
		report.Tabular(os.Stdout, s.Tiles, uint(partScheme))
	} else {
		report.Human(os.Stdout, s.Tiles)
	}
}
