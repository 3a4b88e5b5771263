// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import (
	"bytes"
	"time"

	"github.com/voltforge/espflash/pkg/slip"
)

// frameReader reassembles SLIP frames from the transport byte stream and
// hands back the ones a caller is waiting for. Two states: out of frame
// (bytes are dropped until a 0xC0 arrives) and in frame (bytes accumulate
// until the closing 0xC0). A reader that timed out mid-frame resyncs
// naturally on the next delimiter.
type frameReader struct {
	r       *byteReader
	frame   []byte
	inFrame bool
}

func newFrameReader(t Transport) *frameReader {
	return &frameReader{
		r:     newByteReader(t),
		frame: make([]byte, 0, 256),
	}
}

// poll consumes at most one byte from the transport. When that byte closes
// a frame, the SLIP-decoded body is returned with ok=true.
func (fr *frameReader) poll() (body []byte, ok bool, err error) {
	b, have, err := fr.r.next()
	if err != nil {
		return nil, false, err
	}
	if !have {
		return nil, false, nil
	}
	if b == slip.End {
		if fr.inFrame {
			fr.inFrame = false
			return slip.Decode(fr.frame), true, nil
		}
		fr.frame = fr.frame[:0]
		fr.inFrame = true
		return nil, false, nil
	}
	if fr.inFrame && len(fr.frame) < maxFrameSize {
		fr.frame = append(fr.frame, b)
	}
	return nil, false, nil
}

// waitResponse reads frames until one parses as a response with the wanted
// opcode or the deadline passes. Frames that fail to parse or carry a
// different opcode are stale (sync echoes, noise) and are dropped.
func (fr *frameReader) waitResponse(op byte, timeout time.Duration) (*response, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		body, ok, err := fr.poll()
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		if !ok {
			continue
		}
		resp, err := parseResponse(body)
		if err != nil {
			continue
		}
		if resp.op == op {
			return resp, nil
		}
	}
	return nil, &TimeoutError{Op: op}
}

// waitFrame returns the next raw frame body. With a non-nil pattern only a
// byte-exact match is accepted; other frames are dropped. Used for the
// stub startup marker and for the chunked read-back stream, whose data
// frames have no inner structure.
func (fr *frameReader) waitFrame(pattern []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		body, ok, err := fr.poll()
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		if !ok {
			continue
		}
		if pattern == nil || bytes.Equal(pattern, body) {
			return body, nil
		}
	}
	return nil, &TimeoutError{Pattern: pattern}
}
