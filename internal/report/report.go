// Package report renders per-tile simulation statistics, either as a
// human-readable multi-line block per tile or as a whitespace-padded
// tabular listing with one header row.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmabe/tilecoh/internal/cache"
	"github.com/dmabe/tilecoh/internal/tile"
)

// Human writes the enumerated per-tile block, followed by the L1 and
// L2 cache sub-reports, for every tile in order.
func Human(w io.Writer, tiles []*tile.Tile) {
	for _, t := range tiles {
		fmt.Fprintf(w, "========================================================== (Tile %d)\n", t.Index())
		fmt.Fprintf(w, "01. cycle completed:                            %d\n", t.Cycle())
		fmt.Fprintf(w, "02. cache to cache xfer (within partition)      %d\n", t.CtocXfers())
		fmt.Fprintf(w, "03. memory xfer (does not include writebacks)   %d\n", t.MemXfers())
		fmt.Fprintf(w, "04. part to part xfer  (outside partition)      %d\n", t.PtopXfers())
		fmt.Fprintf(w, "05. number of accesses                          %d\n", t.Accesses())
		fmt.Fprintf(w, "06. memory cycles                               %d\n", t.MemCycles())
		fmt.Fprintf(w, "07. average total access time (cycles)          %f\n", ratio(t.Cycle(), t.Accesses()))
		fmt.Fprintf(w, "08. average interconnect hop cycles             %f\n", ratio(t.Cycle()-t.MemCycles(), t.Accesses()))
		fmt.Fprintf(w, "09. average mem access cycles (excludes hops)   %f\n", ratio(t.MemCycles(), t.Accesses()))
		fmt.Fprintf(w, "10. average mem access cycles (includes hops)   %f\n", ratio(t.MemCycles()+t.MemHopsCycles(), t.Accesses()))
		fmt.Fprintf(w, "===== Simulation results (Cache %d L1) =============\n", t.Index())
		cacheHuman(w, t.L1())
		fmt.Fprintf(w, "===== Simulation results (Cache %d L2) =============\n", t.Index())
		cacheHuman(w, t.L2())
	}
}

func cacheHuman(w io.Writer, c *cache.Cache) {
	fmt.Fprintf(w, "01. number of reads:                            %d\n", c.Reads())
	fmt.Fprintf(w, "02. number of read misses:                      %d\n", c.ReadMisses())
	fmt.Fprintf(w, "03. number of writes:                           %d\n", c.Writes())
	fmt.Fprintf(w, "04. number of write misses:                     %d\n", c.WriteMisses())
	fmt.Fprintf(w, "05. number of write backs:                      %d\n", c.WriteBacks())
}

// Tabular writes a header row (once) followed by one padded row per
// tile. tabwriter right-aligns each column to its widest cell plus two
// spaces; column widths follow the content rather than a fixed 15
// characters, and the final column is written unpadded.
func Tabular(w io.Writer, tiles []*tile.Tile, partScheme uint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	header := []string{
		"tile", "partscheme", "cycle", "accesses", "L2accesses",
		"locxfer", "ctocxfer", "ptopxfer", "memxfer",
		"locAAT", "ctocAAT", "ptopAAT", "memAAT", "totalAAT",
		"memcycles", "ahopcycles", "amemnohops", "amemwithhops",
	}
	header = append(header, cacheHeader("L1")...)
	header = append(header, cacheHeader("L2")...)
	writeRow(tw, header)

	for _, t := range tiles {
		row := []string{
			fmt.Sprint(t.Index()),
			fmt.Sprint(partScheme),
			fmt.Sprint(t.Cycle()),
			fmt.Sprint(t.Accesses()),
			fmt.Sprint(t.L2Accesses()),
			fmt.Sprint(t.LocalXfers()),
			fmt.Sprint(t.CtocXfers()),
			fmt.Sprint(t.PtopXfers()),
			fmt.Sprint(t.MemXfers()),
			fmt.Sprintf("%f", ratio(t.LocalDelay(), t.LocalXfers())),
			fmt.Sprintf("%f", ratio(t.CtocDelay(), t.CtocXfers())),
			fmt.Sprintf("%f", ratio(t.PtopDelay(), t.PtopXfers())),
			fmt.Sprintf("%f", ratio(t.MemCycles()+t.MemHopsCycles(), t.MemXfers())),
			fmt.Sprintf("%f", ratio(t.Cycle(), t.Accesses())),
			fmt.Sprint(t.MemCycles()),
			fmt.Sprintf("%f", ratio(t.Cycle()-t.MemCycles(), t.Accesses())),
			fmt.Sprintf("%f", ratio(t.MemCycles(), t.Accesses())),
			fmt.Sprintf("%f", ratio(t.MemCycles()+t.MemHopsCycles(), t.Accesses())),
		}
		row = append(row, cacheRow(t.L1())...)
		row = append(row, cacheRow(t.L2())...)
		writeRow(tw, row)
	}

	tw.Flush()
}

func cacheHeader(level string) []string {
	return []string{level + "reads", level + "rdMisses", level + "writes", level + "wrMisses", level + "wrBacks"}
}

func cacheRow(c *cache.Cache) []string {
	return []string{
		fmt.Sprint(c.Reads()),
		fmt.Sprint(c.ReadMisses()),
		fmt.Sprint(c.Writes()),
		fmt.Sprint(c.WriteMisses()),
		fmt.Sprint(c.WriteBacks()),
	}
}

func writeRow(tw *tabwriter.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, f)
	}
	fmt.Fprint(tw, "\n")
}

// ratio divides two cycle-ish counters, yielding NaN/Inf the same way
// the source's float division does when the denominator is zero rather
// than guarding it — there is no well-defined "average" over zero
// transfers.
func ratio(num, denom uint) float64 {
	return float64(num) / float64(denom)
}
