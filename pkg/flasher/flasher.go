// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// Package flasher is the user-facing composition layer over the espboot
// protocol engine. The connection lifecycle is modeled as distinct stage
// values - Start, Detected, Stub, Rom - each exposing only the operations
// that are legal at that stage, so most sequencing mistakes fail to
// compile instead of failing on the wire.
package flasher

import (
	"fmt"

	"github.com/voltforge/espflash/pkg/chip"
	"github.com/voltforge/espflash/pkg/espboot"
)

// Baud rates understood by the ROM loader.
const (
	ROMBaud        = 115200
	ROMBaudHigh    = 460800
	ROMBaudHighest = 921600
)

// Write block sizes: the stub accepts large blocks, the ROM only small
// ones.
const (
	stubBlockSize = 0x4000
	romBlockSize  = 0x400
)

// StubLoader resolves the stub blob bytes for a chip family. The blobs are
// opaque external data; where they come from (files, embedded resources,
// a download) is the caller's concern.
type StubLoader func(c chip.Chip) ([]byte, error)

// Start is the stage reached after entering the bootloader and syncing.
type Start struct {
	p *espboot.Protocol
}

// Connect enters the bootloader over the given transport and syncs with
// the ROM loader.
func Connect(t espboot.Transport) (*Start, error) {
	p := espboot.New(t)
	if err := p.EnterBootloader(); err != nil {
		return nil, err
	}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return &Start{p: p}, nil
}

// WithCallback installs a progress observer.
func (s *Start) WithCallback(cb espboot.ProgressCallback) *Start {
	s.p.SetProgressCallback(cb)
	return s
}

// WithBaudRate switches the loader to a faster line speed and gives the
// caller the chance to reconfigure its transport through apply.
func (s *Start) WithBaudRate(rate int, apply func(rate int) error) (*Start, error) {
	if err := s.p.ChangeBaudRate(rate); err != nil {
		return nil, err
	}
	if err := apply(rate); err != nil {
		return nil, fmt.Errorf("reconfiguring transport to %d baud: %w", rate, err)
	}
	return s, nil
}

// DetectChip identifies the connected chip family.
func (s *Start) DetectChip() (*Detected, error) {
	if err := s.p.DetectChip(); err != nil {
		return nil, err
	}
	return &Detected{p: s.p}, nil
}

// Detected is the stage with a known chip, before choosing between the
// stub loader and the bare ROM.
type Detected struct {
	p *espboot.Protocol
}

// Chip returns the detected chip family.
func (d *Detected) Chip() chip.Chip {
	return d.p.Chip()
}

// LoadStub uploads and starts the stub loader for the detected chip,
// resolving the blob through load.
func (d *Detected) LoadStub(load StubLoader) (*Stub, error) {
	c := d.p.Chip()
	if !c.HasStub() {
		return nil, fmt.Errorf("no stub loader image exists for %s", c)
	}
	raw, err := load(c)
	if err != nil {
		return nil, fmt.Errorf("loading stub for %s: %w", c, err)
	}
	blob, err := espboot.ParseStubBlob(raw)
	if err != nil {
		return nil, err
	}
	if err := d.p.LoadStub(blob); err != nil {
		return nil, err
	}
	return &Stub{p: d.p, compress: true}, nil
}

// SpiAttach stays on the ROM loader and attaches the SPI flash.
func (d *Detected) SpiAttach() (*Rom, error) {
	if err := d.p.SpiAttach(); err != nil {
		return nil, err
	}
	return &Rom{p: d.p, compress: true}, nil
}

// Stub is the stage with the stub loader running. It has the full command
// set: erase, read-back and large-block writes.
type Stub struct {
	p        *espboot.Protocol
	compress bool
}

// Chip returns the detected chip family.
func (s *Stub) Chip() chip.Chip {
	return s.p.Chip()
}

// WithCompression selects between deflate and raw writes. Default is
// compressed.
func (s *Stub) WithCompression(compress bool) *Stub {
	s.compress = compress
	return s
}

// EraseFlash erases the entire flash chip.
func (s *Stub) EraseFlash() (*Stub, error) {
	if err := s.p.EraseFlash(); err != nil {
		return nil, err
	}
	return s, nil
}

// EraseRegion erases size bytes at offset.
func (s *Stub) EraseRegion(offset, size uint32) (*Stub, error) {
	if err := s.p.EraseFlashRegion(offset, size); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteFlash writes an image at offset and, when verify is set, checks it
// back by MD5.
func (s *Stub) WriteFlash(offset uint32, image []byte, verify bool) (*Stub, error) {
	var err error
	if s.compress {
		err = s.p.FlashDeflWrite(image, stubBlockSize, offset)
	} else {
		err = s.p.FlashWrite(image, stubBlockSize, offset)
	}
	if err != nil {
		return nil, err
	}
	if verify {
		if err := s.p.FlashMd5Verify(image, offset); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// VerifyFlash checks a flash region against the MD5 of image.
func (s *Stub) VerifyFlash(offset uint32, image []byte) (*Stub, error) {
	if err := s.p.FlashMd5Verify(image, offset); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFlash reads length bytes at offset into dst.
func (s *Stub) ReadFlash(dst []byte, offset, length uint32) (*Stub, error) {
	if err := s.p.ReadFlash(dst, offset, length); err != nil {
		return nil, err
	}
	return s, nil
}

// SoftReset asks the stub to jump into the flashed application without a
// hardware reset. Only the ESP8266 supports this.
func (s *Stub) SoftReset() error {
	if s.p.Chip() != chip.ESP8266 {
		return &espboot.StateError{Msg: "soft resetting is only supported on ESP8266"}
	}
	return s.p.RunUserCode()
}

// Reset restarts the chip into normal execution.
func (s *Stub) Reset() error {
	return s.p.Reset()
}

// Rom is the stage working against the bare ROM loader: small write
// blocks, no erase or read-back commands.
type Rom struct {
	p        *espboot.Protocol
	compress bool
}

// Chip returns the detected chip family.
func (r *Rom) Chip() chip.Chip {
	return r.p.Chip()
}

// WithCompression selects between deflate and raw writes.
func (r *Rom) WithCompression(compress bool) *Rom {
	r.compress = compress
	return r
}

// SetFlashSize announces the flash geometry to the ROM loader.
func (r *Rom) SetFlashSize(totalSize uint32) (*Rom, error) {
	if err := r.p.SetFlashSize(totalSize); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteFlash writes an image at offset and, when verify is set, checks it
// back by MD5.
func (r *Rom) WriteFlash(offset uint32, image []byte, verify bool) (*Rom, error) {
	var err error
	if r.compress {
		err = r.p.FlashDeflWrite(image, romBlockSize, offset)
	} else {
		err = r.p.FlashWrite(image, romBlockSize, offset)
	}
	if err != nil {
		return nil, err
	}
	if verify {
		if err := r.p.FlashMd5Verify(image, offset); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// VerifyFlash checks a flash region against the MD5 of image.
func (r *Rom) VerifyFlash(offset uint32, image []byte) (*Rom, error) {
	if err := r.p.FlashMd5Verify(image, offset); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset restarts the chip into normal execution.
func (r *Rom) Reset() error {
	return r.p.Reset()
}
