// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package esptrace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/voltforge/espflash/pkg/slip"
)

// fakeTransport is a scripted inner transport for the Recorder.
type fakeTransport struct {
	reads  [][]byte
	writes [][]byte
	lines  [][2]bool
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, nil
	}
	n := copy(p, f.reads[0])
	f.reads = f.reads[1:]
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeTransport) SetControlLines(dtr, rts bool) error {
	f.lines = append(f.lines, [2]bool{dtr, rts})
	return nil
}

func TestRecorder_RoundTripsThroughParse(t *testing.T) {
	hostFrame := slip.Encode([]byte{0x00, 0x08, 0x01, 0x00, 0, 0, 0, 0, 0x55})
	deviceFrame := slip.Encode([]byte{0x01, 0x08, 0x04, 0x00, 0, 0, 0, 0, 0, 0, 0, 0})

	inner := &fakeTransport{reads: [][]byte{deviceFrame}}
	var log bytes.Buffer
	rec := NewRecorder(inner, &log)

	if err := rec.SetControlLines(true, false); err != nil {
		t.Fatal(err)
	}
	// Split the host frame across two Write calls; the recorder must
	// still log it as one record
	if _, err := rec.Write(hostFrame[:3]); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Write(hostFrame[3:]); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := rec.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], deviceFrame) {
		t.Fatalf("recorder altered the read bytes")
	}

	player, err := Parse(strings.NewReader(log.String()))
	if err != nil {
		t.Fatalf("parsing recorded log: %v\n%s", err, log.String())
	}
	if len(player.entries) != 3 {
		t.Fatalf("recorded %d entries, want 3:\n%s", len(player.entries), log.String())
	}
	if player.entries[0].dir != dirControl || !player.entries[0].DTR || player.entries[0].RTS {
		t.Errorf("control entry = %+v", player.entries[0])
	}
	if player.entries[1].dir != dirWrite || !bytes.Equal(player.entries[1].Data, hostFrame) {
		t.Errorf("write entry = % X, want % X", player.entries[1].Data, hostFrame)
	}
	if player.entries[2].dir != dirRead || !bytes.Equal(player.entries[2].Data, deviceFrame) {
		t.Errorf("read entry = % X, want % X", player.entries[2].Data, deviceFrame)
	}
}

const sampleTrace = `[0.000] SET_CONTROL_LINES DTR=true RTS=false
[0.100] >>>> (     4): C0 01 02 C0
[0.200] <<<< (     4): C0 03 04 C0
`

func TestPlayer_ReplaysReads(t *testing.T) {
	player, err := Parse(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatal(err)
	}

	if err := player.SetControlLines(true, false); err != nil {
		t.Fatal(err)
	}
	if _, err := player.Write([]byte{0xC0, 0x01, 0x02, 0xC0}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	var got []byte
	for len(got) < 4 {
		n, err := player.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, []byte{0xC0, 0x03, 0x04, 0xC0}) {
		t.Errorf("read % X", got)
	}
	if !player.Finished() {
		t.Errorf("%d entries left", player.Remaining())
	}
}

func TestPlayer_WriteMismatch(t *testing.T) {
	player, err := Parse(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatal(err)
	}
	if err := player.SetControlLines(true, false); err != nil {
		t.Fatal(err)
	}
	if _, err := player.Write([]byte{0xC0, 0xFF, 0xFF, 0xC0}); err == nil {
		t.Error("expected a write mismatch error")
	}
}

func TestPlayer_ControlLineMismatch(t *testing.T) {
	player, err := Parse(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatal(err)
	}
	if err := player.SetControlLines(false, true); err == nil {
		t.Error("expected a control line mismatch error")
	}
}

func TestPlayer_DirectionMismatch(t *testing.T) {
	player, err := Parse(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatal(err)
	}
	// The trace starts with a control entry, not a write
	if _, err := player.Write([]byte{0xC0, 0x01, 0x02, 0xC0}); err == nil {
		t.Error("expected a direction mismatch error")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	tests := []string{
		"no timestamp at all",
		"[abc] >>>> (     1): 00",
		"[0.1] ???? (     1): 00",
		"[0.1] >>>> (     1): ZZ",
	}
	for _, line := range tests {
		if _, err := Parse(strings.NewReader(line + "\n")); err == nil {
			t.Errorf("Parse accepted %q", line)
		}
	}
}

func TestParse_SkipsBlankLines(t *testing.T) {
	player, err := Parse(strings.NewReader("\n\n[0.000] SET_CONTROL_LINES DTR=false RTS=false\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(player.entries) != 1 {
		t.Errorf("parsed %d entries, want 1", len(player.entries))
	}
}
