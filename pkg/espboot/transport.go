// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

// Transport is the raw byte channel to the chip. Implementations wrap a
// serial port, a network bridge, or a replayed trace.
//
// Read blocks until data is available or an implementation-defined poll
// interval elapses; returning 0 bytes without error means "no data yet"
// and the caller retries until its deadline. Write blocks until the whole
// buffer is handed to the OS. SetControlLines drives DTR/RTS, which the
// reset circuitry of ESP dev boards maps to chip enable and GPIO0.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetControlLines(dtr, rts bool) error
}

// ReadBufferSizer lets a Transport suggest how many bytes the engine
// should request per Read call.
type ReadBufferSizer interface {
	ReadBufferSize() int
}

const defaultReadBuffer = 64

// byteReader feeds the frame reader one byte at a time through a
// transport-sized buffer, so the transport sees reasonably sized reads.
type byteReader struct {
	t     Transport
	buf   []byte
	pos   int
	limit int
}

func newByteReader(t Transport) *byteReader {
	size := defaultReadBuffer
	if s, ok := t.(ReadBufferSizer); ok && s.ReadBufferSize() > 0 {
		size = s.ReadBufferSize()
	}
	return &byteReader{t: t, buf: make([]byte, size)}
}

// next returns the next byte. ok is false when the transport currently has
// nothing to offer; the caller decides whether its deadline allows a retry.
func (r *byteReader) next() (b byte, ok bool, err error) {
	if r.pos >= r.limit {
		n, err := r.t.Read(r.buf)
		if err != nil {
			return 0, false, err
		}
		r.pos, r.limit = 0, n
	}
	if r.pos >= r.limit {
		return 0, false, nil
	}
	b = r.buf[r.pos]
	r.pos++
	return b, true, nil
}

// flush drops any buffered bytes.
func (r *byteReader) flush() {
	r.pos, r.limit = 0, 0
}
