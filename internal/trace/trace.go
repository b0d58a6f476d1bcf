// Package trace parses the simulator's input format: one access record
// per line, either with an explicit processor id or bound to a single
// logical process that migrates between tiles.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmabe/tilecoh/internal/protocol"
)

// Record is one parsed trace line: the tile the access targets, the
// operation, and the block address.
type Record struct {
	Tile uint
	Op   protocol.Op
	Addr uint64
}

// Shape distinguishes the two record layouts a trace file can use.
type Shape int

const (
	// ShapeExplicit is "<proc> <op> <hexaddr>" — the default, explicit
	// per-record processor id.
	ShapeExplicit Shape = iota
	// ShapeImplicit is "<op> <hexaddr>" — a single logical process,
	// bound to whichever tile internal/migrate currently hosts it.
	ShapeImplicit
)

// DetectShape reports which shape the trace uses, given its first
// non-blank line; callers pass the detected shape on to Scan. Detection
// counts whitespace-separated fields: 2 fields means ShapeImplicit, 3
// means ShapeExplicit, and any other count is an error.
func DetectShape(firstLine string) (Shape, error) {
	fields := strings.Fields(firstLine)
	switch len(fields) {
	case 2:
		return ShapeImplicit, nil
	case 3:
		return ShapeExplicit, nil
	default:
		return 0, fmt.Errorf("trace: cannot detect record shape from line %q", firstLine)
	}
}

// Scan reads every record from r according to shape, invoking fn for
// each. For ShapeImplicit records, tileOf is called to resolve the
// current tile hosting the logical process (internal/migrate supplies
// this); it is ignored for ShapeExplicit.
func Scan(r io.Reader, shape Shape, tileOf func() uint, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)

		var rec Record
		switch shape {
		case ShapeExplicit:
			if len(fields) < 3 {
				return fmt.Errorf("trace: malformed explicit-shape line %q", line)
			}
			proc, err := strconv.ParseUint(fields[0], 10, 32)
			if err != nil {
				return fmt.Errorf("trace: bad processor id %q: %w", fields[0], err)
			}
			rec.Tile = uint(proc)
			rec.Op = parseOp(fields[1])
			addr, err := parseHex(fields[2])
			if err != nil {
				return fmt.Errorf("trace: bad address %q: %w", fields[2], err)
			}
			rec.Addr = addr

		case ShapeImplicit:
			if len(fields) < 2 {
				return fmt.Errorf("trace: malformed implicit-shape line %q", line)
			}
			rec.Tile = tileOf()
			rec.Op = parseOp(fields[0])
			addr, err := parseHex(fields[1])
			if err != nil {
				return fmt.Errorf("trace: bad address %q: %w", fields[1], err)
			}
			rec.Addr = addr
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseOp(s string) protocol.Op {
	if len(s) == 0 {
		return protocol.OpRead
	}
	return protocol.Op(s[0])
}

// parseHex accepts an address with or without a leading "0x"/"0X".
func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 32)
}
