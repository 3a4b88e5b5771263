// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package flasher_test

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/voltforge/espflash/pkg/chip"
	"github.com/voltforge/espflash/pkg/espboot"
	"github.com/voltforge/espflash/pkg/flasher"
	"github.com/voltforge/espflash/pkg/slip"
)

// mockDevice emulates just enough of a chip's bootloader to exercise the
// staged API: it answers commands in the ROM shape until the stub upload
// completes, then switches to the stub shape, stores flash writes (raw and
// deflated) and computes real MD5 digests over them.
type mockDevice struct {
	magic uint32

	out    bytes.Buffer
	flash  []byte
	isStub bool
	ops    []byte

	deflBuf    []byte
	deflOffset uint32
}

func (d *mockDevice) SetControlLines(dtr, rts bool) error {
	return nil
}

func (d *mockDevice) Read(p []byte) (int, error) {
	if d.out.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return d.out.Read(p)
}

func (d *mockDevice) Write(p []byte) (int, error) {
	body := slip.Decode(p[1 : len(p)-1])
	if len(body) < 8 {
		// Bare ack frames only occur during read-back, which the mock
		// does not emulate
		return len(p), nil
	}
	op := body[1]
	payload := body[8:]
	d.ops = append(d.ops, op)
	le := binary.LittleEndian

	switch op {
	case espboot.OpSync:
		d.respond(op, 0)
	case espboot.OpReadReg:
		d.respond(op, d.magic)
	case espboot.OpChangeBaudrate, espboot.OpSpiAttach, espboot.OpSpiSetParams,
		espboot.OpFlashBegin, espboot.OpFlashEnd, espboot.OpMemBegin,
		espboot.OpEraseFlash, espboot.OpEraseRegion, espboot.OpMemData:
		d.respond(op, 0)

	case espboot.OpFlashData:
		size := le.Uint32(payload[0:4])
		seq := le.Uint32(payload[4:8])
		chunk := payload[16 : 16+size]
		d.store(seq*size, chunk)
		d.respond(op, 0)

	case espboot.OpFlashDeflBegin:
		d.deflBuf = nil
		d.deflOffset = le.Uint32(payload[12:16])
		d.respond(op, 0)

	case espboot.OpFlashDeflData:
		size := le.Uint32(payload[0:4])
		d.deflBuf = append(d.deflBuf, payload[16:16+size]...)
		d.respond(op, 0)

	case espboot.OpMemEnd:
		d.respond(op, 0)
		// The stub announces itself once it starts executing
		d.out.Write(slip.Encode([]byte("OHAI")))
		d.isStub = true

	case espboot.OpSpiFlashMD5:
		d.flushDefl()
		addr := le.Uint32(payload[0:4])
		size := le.Uint32(payload[4:8])
		d.store(addr+size, nil) // make sure the range exists
		sum := md5.Sum(d.flash[addr : addr+size])
		if d.isStub {
			d.respondBody(op, sum[:])
		} else {
			d.respondBody(op, []byte(hex.EncodeToString(sum[:])))
		}
	}
	return len(p), nil
}

// store grows the flash image as needed and lays chunk down at off.
func (d *mockDevice) store(off uint32, chunk []byte) {
	need := int(off) + len(chunk)
	if need > len(d.flash) {
		d.flash = append(d.flash, make([]byte, need-len(d.flash))...)
	}
	copy(d.flash[off:], chunk)
}

// flushDefl inflates the accumulated compressed stream into flash.
func (d *mockDevice) flushDefl() {
	if len(d.deflBuf) == 0 {
		return
	}
	r, err := zlib.NewReader(bytes.NewReader(d.deflBuf))
	if err != nil {
		panic("mock received a non-zlib stream: " + err.Error())
	}
	image, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	d.store(d.deflOffset, image)
	d.deflBuf = nil
}

func (d *mockDevice) respond(op byte, value uint32) {
	if d.isStub {
		d.respondWith(op, value, []byte{0x00, 0x00})
	} else {
		d.respondWith(op, value, []byte{0x00, 0x00, 0x00, 0x00})
	}
}

func (d *mockDevice) respondBody(op byte, body []byte) {
	if d.isStub {
		d.respondWith(op, 0, append(append([]byte(nil), body...), 0x00, 0x00))
	} else {
		d.respondWith(op, 0, append(append([]byte(nil), body...), 0x00, 0x00, 0x00, 0x00))
	}
}

func (d *mockDevice) respondWith(op byte, value uint32, payload []byte) {
	frame := make([]byte, 8+len(payload))
	frame[0] = 0x01
	frame[1] = op
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], value)
	copy(frame[8:], payload)
	d.out.Write(slip.Encode(frame))
}

func (d *mockDevice) opCount(op byte) int {
	n := 0
	for _, o := range d.ops {
		if o == op {
			n++
		}
	}
	return n
}

func patternImage(n int) []byte {
	image := make([]byte, n)
	for i := range image {
		image[i] = byte(i * 13)
	}
	return image
}

const esp32Magic = 0x00f01d83
const esp32c3Magic = 0x6921506f

func TestRomFlow_RawWriteAndVerify(t *testing.T) {
	dev := &mockDevice{magic: esp32Magic}

	start, err := flasher.Connect(dev)
	if err != nil {
		t.Fatal(err)
	}
	detected, err := start.DetectChip()
	if err != nil {
		t.Fatal(err)
	}
	if detected.Chip() != chip.ESP32 {
		t.Fatalf("detected %s", detected.Chip())
	}
	rom, err := detected.SpiAttach()
	if err != nil {
		t.Fatal(err)
	}

	image := patternImage(2500)
	if _, err := rom.WithCompression(false).WriteFlash(0, image, true); err != nil {
		t.Fatal(err)
	}

	// ceil(2500/1024) = 3 data blocks after exactly one begin
	if got := dev.opCount(espboot.OpFlashBegin); got != 1 {
		t.Errorf("FLASH_BEGIN count = %d", got)
	}
	if got := dev.opCount(espboot.OpFlashData); got != 3 {
		t.Errorf("FLASH_DATA count = %d, want 3", got)
	}
	if !bytes.Equal(dev.flash[:2500], image) {
		t.Error("device flash differs from image")
	}
	// The final block is zero-padded to the full block size
	if len(dev.flash) != 3*1024 {
		t.Errorf("device flash length = %d, want %d", len(dev.flash), 3*1024)
	}
	for _, b := range dev.flash[2500:] {
		if b != 0 {
			t.Error("padding bytes should be zero")
			break
		}
	}

	if err := rom.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestStubFlow_DeflateWriteAndVerify(t *testing.T) {
	dev := &mockDevice{magic: esp32c3Magic}

	start, err := flasher.Connect(dev)
	if err != nil {
		t.Fatal(err)
	}
	detected, err := start.DetectChip()
	if err != nil {
		t.Fatal(err)
	}
	stub, err := detected.LoadStub(testStubLoader)
	if err != nil {
		t.Fatal(err)
	}
	if !dev.isStub {
		t.Fatal("mock never saw the stub start")
	}

	if stub, err = stub.EraseFlash(); err != nil {
		t.Fatal(err)
	}

	image := patternImage(3000)
	if _, err := stub.WriteFlash(0x1000, image, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dev.flash[0x1000:0x1000+3000], image) {
		t.Error("device flash differs from image after deflate write")
	}

	// The whole compressed stream fits one 16 KiB block
	if got := dev.opCount(espboot.OpFlashDeflData); got != 1 {
		t.Errorf("FLASH_DEFL_DATA count = %d, want 1", got)
	}

	if err := stub.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestStubFlow_SoftResetGuard(t *testing.T) {
	dev := &mockDevice{magic: esp32c3Magic}

	start, err := flasher.Connect(dev)
	if err != nil {
		t.Fatal(err)
	}
	detected, err := start.DetectChip()
	if err != nil {
		t.Fatal(err)
	}
	stub, err := detected.LoadStub(testStubLoader)
	if err != nil {
		t.Fatal(err)
	}
	if err := stub.SoftReset(); err == nil {
		t.Error("soft reset should be rejected on an ESP32-C3")
	}
}

func TestLoadStub_ChipWithoutStubImage(t *testing.T) {
	dev := &mockDevice{magic: 0x6f51306f} // ESP32-C2, no stub exists

	start, err := flasher.Connect(dev)
	if err != nil {
		t.Fatal(err)
	}
	detected, err := start.DetectChip()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := detected.LoadStub(testStubLoader); err == nil {
		t.Error("LoadStub should refuse a chip without a stub image")
	}
}

func TestWithBaudRate(t *testing.T) {
	dev := &mockDevice{magic: esp32Magic}

	start, err := flasher.Connect(dev)
	if err != nil {
		t.Fatal(err)
	}
	applied := 0
	if _, err := start.WithBaudRate(flasher.ROMBaudHighest, func(rate int) error {
		applied = rate
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if applied != flasher.ROMBaudHighest {
		t.Errorf("apply callback saw %d", applied)
	}
	if got := dev.opCount(espboot.OpChangeBaudrate); got != 1 {
		t.Errorf("CHANGE_BAUDRATE count = %d", got)
	}
}

// testStubLoader hands out a miniature stub blob; the mock only checks the
// upload choreography, not the contents.
func testStubLoader(c chip.Chip) ([]byte, error) {
	return []byte(`{
		"entry": 1077411844,
		"text_start": 1077411840,
		"data_start": 1070161920,
		"text": "AQIDBAUGBwg=",
		"data": "qlWqVQ=="
	}`), nil
}
