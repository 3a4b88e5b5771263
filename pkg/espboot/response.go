// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import (
	"encoding/binary"
	"fmt"

	"github.com/voltforge/espflash/pkg/chip"
)

// response is a decoded bootloader response packet:
// [dir=0x01][op][len:u16 LE][value:u32 LE][payload].
type response struct {
	op    byte
	value uint32
	data  []byte
}

// parseResponse decodes a SLIP-decoded frame as a response packet.
func parseResponse(frame []byte) (*response, error) {
	if len(frame) < 8 {
		return nil, fmt.Errorf("response too short: %d bytes", len(frame))
	}
	if frame[0] != dirResponse {
		return nil, fmt.Errorf("invalid direction byte: 0x%02X", frame[0])
	}
	size := int(binary.LittleEndian.Uint16(frame[2:4]))
	if size > len(frame)-8 {
		return nil, fmt.Errorf("response length mismatch: header says %d, frame carries %d", size, len(frame)-8)
	}
	return &response{
		op:    frame[1],
		value: binary.LittleEndian.Uint32(frame[4:8]),
		data:  frame[8 : 8+size],
	}, nil
}

// statusView selects between the two response trailer shapes. The ROM
// loader ends its payload with four bytes [status][error][0][0] and success
// is judged on the status byte; the stub loader ends it with two bytes,
// [status][error], and success is judged on the error byte instead. The view is
// chosen once, when the stub takes over, instead of branching at every
// call site.
type statusView int

const (
	romStatus statusView = iota
	stubStatus
)

func (v statusView) trailerLen() int {
	if v == stubStatus {
		return 2
	}
	return 4
}

// ok reports whether the response signals success.
func (v statusView) ok(r *response) bool {
	if len(r.data) < v.trailerLen() {
		return false
	}
	if v == stubStatus {
		return r.data[len(r.data)-1] == 0x00
	}
	return r.data[len(r.data)-4] == 0x00
}

// errorCode extracts the chip's error code from the trailer.
func (v statusView) errorCode(r *response) byte {
	if len(r.data) < v.trailerLen() {
		return 0
	}
	if v == stubStatus {
		return r.data[len(r.data)-1]
	}
	return r.data[len(r.data)-3]
}

// errorMessage resolves the error code against the table of whichever
// loader is talking.
func (v statusView) errorMessage(r *response) string {
	if v == stubStatus {
		return chip.StubErrorMessage(v.errorCode(r))
	}
	return chip.RomErrorMessage(v.errorCode(r))
}

// body returns the payload with the status trailer stripped.
func (v statusView) body(r *response) []byte {
	n := v.trailerLen()
	if len(r.data) < n {
		return nil
	}
	return r.data[:len(r.data)-n]
}
