// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package esptrace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voltforge/espflash/pkg/espboot"
)

type direction int

const (
	dirRead direction = iota
	dirWrite
	dirControl
)

func (d direction) String() string {
	switch d {
	case dirRead:
		return "READ"
	case dirWrite:
		return "WRITE"
	default:
		return "CONTROL"
	}
}

// Entry is one parsed trace record.
type Entry struct {
	At   float64
	dir  direction
	Data []byte
	DTR  bool
	RTS  bool
}

// Player replays a recorded trace as a Transport. Writes are asserted
// byte-exact against the next recorded host frame; reads serve the next
// recorded device frame, then delay roughly 1.1 ms per recorded
// inter-entry millisecond before admitting end-of-data, so the engine's
// deadline handling sees realistic pacing. Control line changes are
// asserted against the recorded DTR/RTS pair.
type Player struct {
	entries []Entry
	index   int
	next    float64

	pending []byte
	delay   time.Duration
}

// readDelayScale converts a recorded inter-frame gap into a replay delay.
// Slightly above real time so recorded timeouts stay timeouts.
const readDelayScale = 1.1

// Load reads and parses a trace file.
func Load(path string) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a trace from r.
func Parse(r io.Reader) (*Player, error) {
	sc := bufio.NewScanner(r)
	// Flash data frames produce long lines
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var entries []Entry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Player{entries: entries}, nil
}

func parseLine(line string) (Entry, error) {
	if len(line) < 3 || line[0] != '[' {
		return Entry{}, fmt.Errorf("missing timestamp: %q", line)
	}
	close := strings.IndexByte(line, ']')
	if close < 0 {
		return Entry{}, fmt.Errorf("missing timestamp: %q", line)
	}
	at, err := strconv.ParseFloat(line[1:close], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("bad timestamp: %q", line[1:close])
	}
	rest := strings.TrimSpace(line[close+1:])
	switch {
	case strings.HasPrefix(rest, "SET_CONTROL_LINES"):
		return Entry{
			At:  at,
			dir: dirControl,
			DTR: strings.Contains(rest, "DTR=true"),
			RTS: strings.Contains(rest, "RTS=true"),
		}, nil
	case strings.HasPrefix(rest, ">>>>"), strings.HasPrefix(rest, "<<<<"):
		dir := dirWrite
		if rest[0] == '<' {
			dir = dirRead
		}
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			return Entry{}, fmt.Errorf("missing hex dump: %q", rest)
		}
		fields := strings.Fields(rest[colon+1:])
		data := make([]byte, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 16, 8)
			if err != nil {
				return Entry{}, fmt.Errorf("bad hex byte %q", f)
			}
			data[i] = byte(v)
		}
		return Entry{At: at, dir: dir, Data: data}, nil
	default:
		return Entry{}, fmt.Errorf("unrecognized record: %q", rest)
	}
}

func (p *Player) nextEntry(want direction) (Entry, error) {
	if p.index >= len(p.entries) {
		return Entry{}, fmt.Errorf("trace exhausted while expecting a %s entry", want)
	}
	e := p.entries[p.index]
	p.index++
	p.next = e.At
	if p.index < len(p.entries) {
		p.next = p.entries[p.index].At
	}
	if e.dir != want {
		return Entry{}, fmt.Errorf("trace mismatch at [%.3f]: expected %s entry, trace has %s", e.At, want, e.dir)
	}
	return e, nil
}

func (p *Player) Write(buf []byte) (int, error) {
	e, err := p.nextEntry(dirWrite)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(buf, e.Data) {
		return 0, fmt.Errorf("write mismatch at [%.3f]: sent (%d bytes) %s, trace has (%d bytes) %s",
			e.At, len(buf), hexDump(buf), len(e.Data), hexDump(e.Data))
	}
	// A command went out; anything still buffered from the previous read
	// entry is stale.
	p.pending = nil
	return len(buf), nil
}

func (p *Player) Read(buf []byte) (int, error) {
	if len(p.pending) == 0 {
		if p.delay > 0 {
			time.Sleep(p.delay)
			p.delay = 0
			return 0, nil
		}
		e, err := p.nextEntry(dirRead)
		if err != nil {
			return 0, err
		}
		p.pending = e.Data
		p.delay = time.Duration((p.next - e.At) * readDelayScale * float64(time.Second))
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Player) SetControlLines(dtr, rts bool) error {
	e, err := p.nextEntry(dirControl)
	if err != nil {
		return err
	}
	if e.DTR != dtr || e.RTS != rts {
		return fmt.Errorf("control line mismatch at [%.3f]: expected DTR=%t RTS=%t, got DTR=%t RTS=%t",
			e.At, e.DTR, e.RTS, dtr, rts)
	}
	time.Sleep(time.Duration((p.next - e.At) * float64(time.Second)))
	return nil
}

// Finished reports whether every trace entry has been consumed.
func (p *Player) Finished() bool {
	return p.index >= len(p.entries)
}

// Remaining returns the number of unconsumed trace entries.
func (p *Player) Remaining() int {
	return len(p.entries) - p.index
}

// Dump pretty-prints a trace: control line changes as-is, frames with
// direction, length and the bootloader opcode when one can be parsed out.
func (p *Player) Dump(w io.Writer) {
	for _, e := range p.entries {
		switch e.dir {
		case dirControl:
			fmt.Fprintf(w, "[%8.3f] control  DTR=%-5t RTS=%t\n", e.At, e.DTR, e.RTS)
		case dirWrite:
			fmt.Fprintf(w, "[%8.3f] host →   %s\n", e.At, describeFrame(e.Data))
		case dirRead:
			fmt.Fprintf(w, "[%8.3f] device ← %s\n", e.At, describeFrame(e.Data))
		}
	}
}

func describeFrame(frame []byte) string {
	// Frames are recorded with their SLIP delimiters
	body := frame
	if len(body) >= 2 && body[0] == 0xC0 && body[len(body)-1] == 0xC0 {
		body = body[1 : len(body)-1]
	}
	if len(body) >= 8 && (body[0] == 0x00 || body[0] == 0x01) {
		return fmt.Sprintf("%-16s %4d bytes", espboot.OpName(body[1]), len(frame))
	}
	if len(body) <= 16 {
		return fmt.Sprintf("raw frame        %4d bytes: %s", len(frame), hexDump(body))
	}
	return fmt.Sprintf("raw frame        %4d bytes", len(frame))
}
