// Package obs is the simulator's logging boundary: a startup
// configuration banner and fatal-error reporting, kept entirely out of
// the per-access hot path.
package obs

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmabe/tilecoh/internal/params"
)

// Init configures the package logger to write human-readable, leveled
// output to stderr.
func Init() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}

// Banner logs the simulator configuration at debug level, mirroring the
// source's startup printout. cmd/tilesim calls it only in human mode;
// in tabular mode no banner is logged.
func Banner(cfg params.Config, partScheme uint, partSharing bool, traceFile string) {
	log.Debug().
		Uint("l1_size", cfg.L1Size).
		Uint("l1_assoc", cfg.L1Assoc).
		Uint("l2_size", cfg.L2Size).
		Uint("l2_assoc", cfg.L2Assoc).
		Uint("block_size", cfg.BlockSize).
		Uint("num_tiles", cfg.NumTiles).
		Str("protocol", "MESI").
		Uint("tiles_per_partition", partScheme).
		Bool("partition_sharing", partSharing).
		Str("trace_file", traceFile).
		Msg("706 SMP simulator configuration")
}

// Fatal logs msg at error level and exits the process with the given
// code, matching the CLI's recoverable-error exit contract (spec §7):
// missing arguments exit 1, a trace file that cannot be opened exits 0.
func Fatal(code int, msg string, err error) {
	ev := log.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
	os.Exit(code)
}
