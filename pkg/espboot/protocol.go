// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voltforge/espflash/pkg/chip"
	"github.com/voltforge/espflash/pkg/slip"
)

// State is the engine lifecycle stage. States only ever advance; a failed
// operation leaves the engine indeterminate and the caller is expected to
// reset the chip and resync before reuse.
type State int

// Lifecycle states
const (
	StateDisconnected State = iota
	StateBootloader
	StateSynced
	StateChipDetected
	StateSPIAttached
	StateStubReady
)

// Protocol drives one ESP chip through a Transport. It is synchronous and
// single-threaded: every command is sent, its response awaited, and only
// then does the next command go out. One caller owns the engine at a time.
type Protocol struct {
	transport Transport
	reader    *frameReader
	progress  ProgressCallback

	chip   chip.Chip
	isStub bool
	view   statusView
	state  State
}

// New creates an engine over a transport. The chip is unknown until
// DetectChip and every response is interpreted in the ROM shape until
// LoadStub succeeds.
func New(t Transport) *Protocol {
	return &Protocol{
		transport: t,
		reader:    newFrameReader(t),
		progress:  NopProgress{},
	}
}

// SetProgressCallback installs an observer for long-running operations.
// Passing nil restores the default no-op sink.
func (p *Protocol) SetProgressCallback(cb ProgressCallback) {
	if cb == nil {
		cb = NopProgress{}
	}
	p.progress = cb
}

// Chip returns the detected chip family, or chip.Unknown before DetectChip.
func (p *Protocol) Chip() chip.Chip {
	return p.chip
}

// IsStub reports whether the stub loader has taken over the line.
func (p *Protocol) IsStub() bool {
	return p.isStub
}

// State returns the current lifecycle stage.
func (p *Protocol) State() State {
	return p.state
}

func (p *Protocol) advance(s State) {
	if p.state < s {
		p.state = s
	}
}

func (p *Protocol) setControlLines(dtr, rts bool) error {
	if err := p.transport.SetControlLines(dtr, rts); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// exchange sends one command and waits for its matching response. With
// verify set, a response whose status trailer signals failure becomes a
// FatalError carrying the chip's decoded error message.
func (p *Protocol) exchange(cmd command, timeout time.Duration, verify bool) (*response, error) {
	pkt := slip.Encode(cmd.encode())
	if _, err := p.transport.Write(pkt); err != nil {
		return nil, &TransportError{Err: err}
	}
	resp, err := p.reader.waitResponse(cmd.op, timeout)
	if err != nil {
		return nil, err
	}
	if verify && !p.view.ok(resp) {
		return nil, fatalf("%s failed: %s", OpName(cmd.op), p.view.errorMessage(resp))
	}
	return resp, nil
}

// scaleTimeout stretches a per-megabyte budget over a transfer size, with
// the default command timeout as the floor.
func scaleTimeout(perMB time.Duration, sizeBytes int) time.Duration {
	d := time.Duration(float64(perMB) * float64(sizeBytes) / 1e6)
	if d < defaultTimeout {
		return defaultTimeout
	}
	return d
}

// EnterBootloader pulses DTR/RTS to boot the chip into its serial
// bootloader: GPIO0 held low while EN is released. The 100 ms holds are
// required by the reset circuitry.
func (p *Protocol) EnterBootloader() error {
	if err := p.setControlLines(true, false); err != nil {
		return err
	}
	time.Sleep(resetHold)
	if err := p.setControlLines(false, true); err != nil {
		return err
	}
	time.Sleep(resetHold)
	if err := p.setControlLines(true, false); err != nil {
		return err
	}
	p.advance(StateBootloader)
	return nil
}

// Reset pulses RTS with DTR released, restarting the chip into normal
// execution.
func (p *Protocol) Reset() error {
	if err := p.setControlLines(false, false); err != nil {
		return err
	}
	time.Sleep(resetHold)
	if err := p.setControlLines(false, true); err != nil {
		return err
	}
	time.Sleep(resetHold)
	return p.setControlLines(false, false)
}

// Sync establishes the command channel with the ROM loader. The sync
// preamble is sent up to 20 times; once a successful reply arrives, the
// line is drained of the pipelined echoes the ROM produces by accepting
// further sync replies until one times out.
func (p *Protocol) Sync() error {
	pkt := slip.Encode(syncCommand().encode())
	for i := 0; i < syncAttempts; i++ {
		if _, err := p.transport.Write(pkt); err != nil {
			return &TransportError{Err: err}
		}
		resp, err := p.reader.waitResponse(OpSync, syncTimeout)
		if err != nil {
			var te *TimeoutError
			if errors.As(err, &te) {
				continue
			}
			return err
		}
		if !romStatus.ok(resp) {
			continue
		}
		for {
			if _, err := p.reader.waitResponse(OpSync, syncTimeout); err != nil {
				var te *TimeoutError
				if errors.As(err, &te) {
					p.advance(StateSynced)
					return nil
				}
				return err
			}
		}
	}
	return &SyncError{Attempts: syncAttempts}
}

// DetectChip reads the chip-detect magic register and resolves the chip
// family from its value.
func (p *Protocol) DetectChip() error {
	if p.state < StateSynced {
		return &StateError{Msg: "chip detection requires a synced bootloader"}
	}
	resp, err := p.exchange(readRegCommand(chipMagicRegAddr), shortTimeout, true)
	if err != nil {
		return err
	}
	c, err := chip.FromMagic(resp.value)
	if err != nil {
		return fatalf("%v", err)
	}
	p.chip = c
	p.advance(StateChipDetected)
	p.progress.OnInfo("Detected chip: " + c.String())
	return nil
}

// SpiAttach attaches the default SPI flash interface. Required before
// flash operations when staying on the ROM loader.
func (p *Protocol) SpiAttach() error {
	if p.state < StateSynced {
		return &StateError{Msg: "SPI attach requires a synced bootloader"}
	}
	if _, err := p.exchange(spiAttachCommand(), shortTimeout, true); err != nil {
		return err
	}
	p.advance(StateSPIAttached)
	return nil
}

// SetFlashSize announces the flash geometry: total size with the standard
// 64 KiB blocks, 4 KiB sectors and 256-byte pages.
func (p *Protocol) SetFlashSize(totalSize uint32) error {
	_, err := p.exchange(spiSetParamsCommand(totalSize), shortTimeout, true)
	return err
}

// ChangeBaudRate asks the loader to switch the line speed. The caller must
// reconfigure its transport to the new rate immediately afterwards.
func (p *Protocol) ChangeBaudRate(rate int) error {
	if p.state < StateSynced {
		return &StateError{Msg: "baud rate change requires a synced bootloader"}
	}
	_, err := p.exchange(changeBaudrateCommand(uint32(rate)), shortTimeout, true)
	return err
}

// memWrite places an image in chip RAM via MEM_BEGIN/MEM_DATA. Chunks are
// sent at their exact length, unpadded. MEM_END is the caller's move.
func (p *Protocol) memWrite(image []byte, blockSize, offset uint32) error {
	blocks := (uint32(len(image)) + blockSize - 1) / blockSize
	cmd := memBeginCommand(uint32(len(image)), blocks, blockSize, offset)
	if _, err := p.exchange(cmd, scaleTimeout(erasePerMB, len(image)), true); err != nil {
		return err
	}
	for seq := uint32(0); seq < blocks; seq++ {
		start := seq * blockSize
		end := start + blockSize
		if end > uint32(len(image)) {
			end = uint32(len(image))
		}
		chunk := image[start:end]
		if _, err := p.exchange(memDataCommand(seq, chunk), scaleTimeout(writePerMB, int(blockSize)), true); err != nil {
			return err
		}
	}
	return nil
}

// LoadStub uploads a stub loader image into chip RAM, jumps to its entry
// point, and waits for the "OHAI" marker frame that proves the stub has
// taken over the line. On success every later response is parsed in the
// stub shape.
func (p *Protocol) LoadStub(blob *StubBlob) error {
	if p.state < StateChipDetected {
		return &StateError{Msg: "stub upload requires a detected chip"}
	}
	p.progress.OnInfo(fmt.Sprintf("Loading stub: textAddr=0x%08X, dataAddr=0x%08X, entryPoint=0x%08X",
		blob.TextStart, blob.DataStart, blob.Entry))
	if err := p.memWrite(blob.Text, memWriteBlock, blob.TextStart); err != nil {
		return err
	}
	if err := p.memWrite(blob.Data, memWriteBlock, blob.DataStart); err != nil {
		return err
	}
	p.progress.OnInfo(fmt.Sprintf("Executing stub: entryPoint=0x%08X", blob.Entry))
	if _, err := p.exchange(memEndCommand(blob.Entry), shortTimeout, true); err != nil {
		return err
	}
	if _, err := p.reader.waitFrame(stubMarker, shortTimeout); err != nil {
		return err
	}
	p.isStub = true
	p.view = stubStatus
	p.advance(StateStubReady)
	p.progress.OnInfo("Got reply, stub is started")
	return nil
}

func (p *Protocol) canEncrypt() bool {
	return p.chip.CanEncrypt() && !p.isStub
}

// FlashWrite writes an image to flash uncompressed. Each block is
// zero-padded to blockSize and acknowledged before the next is sent.
func (p *Protocol) FlashWrite(image []byte, blockSize, offset uint32) error {
	blocks := (uint32(len(image)) + blockSize - 1) / blockSize
	p.progress.OnStart()
	p.progress.OnInfo(fmt.Sprintf("Writing %d bytes at 0x%08X...", len(image), offset))
	eraseStart := time.Now()
	begin := flashBeginCommand(uint32(len(image)), blocks, blockSize, offset, p.canEncrypt())
	if _, err := p.exchange(begin, scaleTimeout(erasePerMB, len(image)), true); err != nil {
		return err
	}
	if !p.isStub {
		p.progress.OnInfo(fmt.Sprintf("Took %.2f seconds to erase %d bytes at 0x%08x",
			time.Since(eraseStart).Seconds(), len(image), offset))
	}
	writeStart := time.Now()
	chunkTimeout := scaleTimeout(writePerMB, int(blockSize))
	for seq := uint32(0); seq < blocks; seq++ {
		p.progress.OnProgress(float64(seq) * 100 / float64(blocks))
		start := seq * blockSize
		remaining := uint32(len(image)) - start
		n := blockSize
		if remaining < n {
			n = remaining
		}
		chunk := make([]byte, blockSize)
		copy(chunk, image[start:start+n])
		if _, err := p.exchange(flashDataCommand(seq, chunk), chunkTimeout, true); err != nil {
			return err
		}
	}
	p.progress.OnProgress(100)
	p.progress.OnEnd()
	elapsed := time.Since(writeStart).Seconds()
	p.progress.OnInfo(fmt.Sprintf("Wrote %d bytes at 0x%08X in %.2f seconds (effective %.2f kBit/s)...",
		len(image), offset, elapsed, float64(len(image)*8)/elapsed/1024.0))
	return nil
}

// FlashDeflWrite writes an image compressed with deflate at the highest
// level. Block accounting runs over the compressed byte stream and the
// last chunk is sent short, unpadded. The stub is announced the true
// uncompressed size; the ROM loader is announced blockSize × blocks, the
// compressed length rounded up to whole blocks, as a ROM compatibility
// quirk.
func (p *Protocol) FlashDeflWrite(image []byte, blockSize, offset uint32) error {
	p.progress.OnStart()
	p.progress.OnInfo(fmt.Sprintf("Writing %d bytes at 0x%08X...", len(image), offset))
	compressed, err := deflate(image)
	if err != nil {
		return fmt.Errorf("compressing image: %w", err)
	}
	blocks := (uint32(len(compressed)) + blockSize - 1) / blockSize
	announced := uint32(len(image))
	if !p.isStub {
		announced = blockSize * blocks
	}
	eraseStart := time.Now()
	begin := flashDeflBeginCommand(announced, blocks, blockSize, offset, p.canEncrypt())
	if _, err := p.exchange(begin, scaleTimeout(erasePerMB, len(image)), true); err != nil {
		return err
	}
	if !p.isStub {
		p.progress.OnInfo(fmt.Sprintf("Took %.2f seconds to erase %d bytes at 0x%08x",
			time.Since(eraseStart).Seconds(), len(image), offset))
	}
	writeStart := time.Now()
	chunkTimeout := scaleTimeout(writePerMB, int(blockSize))
	for seq := uint32(0); seq < blocks; seq++ {
		p.progress.OnProgress(float64(seq) * 100 / float64(blocks))
		start := seq * blockSize
		end := start + blockSize
		if end > uint32(len(compressed)) {
			end = uint32(len(compressed))
		}
		chunk := compressed[start:end]
		if _, err := p.exchange(flashDeflDataCommand(seq, chunk), chunkTimeout, true); err != nil {
			return err
		}
	}
	p.progress.OnProgress(100)
	p.progress.OnEnd()
	elapsed := time.Since(writeStart).Seconds()
	p.progress.OnInfo(fmt.Sprintf("Wrote %d bytes (%d compressed) at 0x%08X in %.2f seconds (effective %.2f kBit/s)...",
		len(image), len(compressed), offset, elapsed, float64(len(image)*8)/elapsed/1024.0))
	return nil
}

// FlashMd5Verify checks a flash region against the MD5 of an image. The
// stub answers with 16 raw digest bytes, the ROM with 32 hex characters;
// both are normalized to lowercase hex before comparison.
func (p *Protocol) FlashMd5Verify(image []byte, offset uint32) error {
	cmd := spiFlashMD5Command(offset, uint32(len(image)))
	resp, err := p.exchange(cmd, scaleTimeout(md5PerMB, len(image)), true)
	if err != nil {
		return err
	}
	body := p.view.body(resp)
	var flashMD5 string
	if p.isStub {
		if len(body) < 16 {
			return fatalf("malformed MD5 response: %d byte payload", len(body))
		}
		flashMD5 = hex.EncodeToString(body[:16])
	} else {
		if len(body) < 32 {
			return fatalf("malformed MD5 response: %d byte payload", len(body))
		}
		flashMD5 = strings.ToLower(string(body[:32]))
	}
	imageMD5 := md5Hex(image)
	if imageMD5 != flashMD5 {
		return fatalf("MD5 hash mismatch: %s != %s", flashMD5, imageMD5)
	}
	return nil
}

// EraseFlash erases the entire flash. Stub loader only.
func (p *Protocol) EraseFlash() error {
	if !p.isStub {
		return &StateError{Msg: "ERASE_FLASH is a stub loader only command"}
	}
	p.progress.OnInfo("Erasing entire flash...")
	_, err := p.exchange(eraseFlashCommand(), 16*erasePerMB, true)
	return err
}

// EraseFlashRegion erases size bytes starting at offset. Stub loader only.
func (p *Protocol) EraseFlashRegion(offset, size uint32) error {
	if !p.isStub {
		return &StateError{Msg: "ERASE_REGION is a stub loader only command"}
	}
	p.progress.OnInfo(fmt.Sprintf("Erasing flash region: offset=0x%08X, size=%d", offset, size))
	_, err := p.exchange(eraseRegionCommand(offset, size), scaleTimeout(erasePerMB, int(size)), true)
	return err
}

// ReadFlash reads length bytes starting at offset into dst. Stub loader
// only. The stub streams raw data frames, at most two in flight; the host
// acknowledges each one with a bare SLIP-framed little-endian count of
// bytes received so far. A trailing 16-byte frame carries the MD5 of the
// whole region, which is checked against the assembled data.
func (p *Protocol) ReadFlash(dst []byte, offset, length uint32) error {
	if !p.isStub {
		return &StateError{Msg: "READ_FLASH is a stub loader only command"}
	}
	if uint32(len(dst)) < length {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), length)
	}
	p.progress.OnInfo(fmt.Sprintf("Reading flash region: offset=0x%08X, size=%d", offset, length))
	blockTimeout := scaleTimeout(readPerMB, readFlashBlock)
	readStart := time.Now()
	cmd := readFlashCommand(offset, length, readFlashBlock, readFlashInflight)
	if _, err := p.exchange(cmd, shortTimeout, true); err != nil {
		return err
	}
	var pos uint32
	for pos < length {
		frame, err := p.reader.waitFrame(nil, blockTimeout)
		if err != nil {
			return err
		}
		if uint32(len(frame)) > length-pos {
			return fatalf("read overrun: chunk of %d bytes at position %d exceeds %d", len(frame), pos, length)
		}
		copy(dst[pos:], frame)
		pos += uint32(len(frame))
		ack := make([]byte, 4)
		binary.LittleEndian.PutUint32(ack, pos)
		if _, err := p.transport.Write(slip.Encode(ack)); err != nil {
			return &TransportError{Err: err}
		}
		p.progress.OnProgress(float64(pos) * 100 / float64(length))
	}
	sumFrame, err := p.reader.waitFrame(nil, blockTimeout)
	if err != nil {
		return err
	}
	flashMD5 := hex.EncodeToString(sumFrame)
	imageMD5 := md5Hex(dst[:length])
	if imageMD5 != flashMD5 {
		return fatalf("MD5 hash mismatch: %s != %s", flashMD5, imageMD5)
	}
	p.progress.OnProgress(100)
	p.progress.OnEnd()
	elapsed := time.Since(readStart).Seconds()
	p.progress.OnInfo(fmt.Sprintf("Read %d bytes at 0x%08X in %.2f seconds (effective %.2f kBit/s)...",
		length, offset, elapsed, float64(length*8)/elapsed/1024.0))
	return nil
}

// EndFlash sends FLASH_END with the run-user-code flag. The success check
// is skipped: the chip may reset before the reply makes it out.
func (p *Protocol) EndFlash() error {
	_, err := p.exchange(flashEndCommand(0), shortTimeout, false)
	return err
}

// EndDeflFlash terminates a deflate write session, likewise unverified.
func (p *Protocol) EndDeflFlash() error {
	_, err := p.exchange(flashDeflEndCommand(0), shortTimeout, false)
	return err
}

// RunUserCode asks the stub to jump to the flashed application. Stub
// loader only; the reply is not verified since the chip leaves the
// bootloader while answering.
func (p *Protocol) RunUserCode() error {
	if !p.isStub {
		return &StateError{Msg: "RUN_USER_CODE is a stub loader only command"}
	}
	_, err := p.exchange(runUserCodeCommand(), shortTimeout, false)
	return err
}
