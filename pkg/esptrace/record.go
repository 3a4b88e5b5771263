// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// Package esptrace records and replays bootloader sessions as textual
// traces. A Recorder wraps a live transport and logs every SLIP frame and
// control line change; a Player feeds a recorded trace back to the engine
// and asserts that its writes match the recording byte for byte.
//
// One record per line:
//
//	[<seconds.fff>] >>>> (<len>): HH HH HH ...   host-to-device frame
//	[<seconds.fff>] <<<< (<len>): HH HH HH ...   device-to-host frame
//	[<seconds.fff>] SET_CONTROL_LINES DTR=<bool> RTS=<bool>
package esptrace

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/voltforge/espflash/pkg/espboot"
	"github.com/voltforge/espflash/pkg/slip"
)

// Recorder wraps a Transport and writes a trace of the session. Frames are
// logged whole: writes are split on the closing SLIP delimiter, reads are
// reassembled the same way, so a trace line always holds one frame.
type Recorder struct {
	inner espboot.Transport
	w     io.Writer
	start time.Time

	writeBuf bytes.Buffer
	readBuf  bytes.Buffer
	inFrame  bool
}

// NewRecorder creates a recording wrapper around a transport, appending
// trace lines to w.
func NewRecorder(inner espboot.Transport, w io.Writer) *Recorder {
	return &Recorder{inner: inner, w: w, start: time.Now()}
}

func (r *Recorder) stamp() string {
	return fmt.Sprintf("[%.3f]", time.Since(r.start).Seconds())
}

func hexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func (r *Recorder) Write(p []byte) (int, error) {
	for _, b := range p {
		r.writeBuf.WriteByte(b)
		if b == slip.End && r.writeBuf.Len() > 1 {
			frame := r.writeBuf.Bytes()
			fmt.Fprintf(r.w, "%s >>>> (%6d): %s\n", r.stamp(), len(frame), hexDump(frame))
			r.writeBuf.Reset()
		}
	}
	return r.inner.Write(p)
}

func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	for _, b := range p[:n] {
		if b == slip.End {
			if r.inFrame {
				r.readBuf.WriteByte(b)
				frame := r.readBuf.Bytes()
				fmt.Fprintf(r.w, "%s <<<< (%6d): %s\n", r.stamp(), len(frame), hexDump(frame))
				r.readBuf.Reset()
				r.inFrame = false
			} else {
				r.readBuf.Reset()
				r.readBuf.WriteByte(b)
				r.inFrame = true
			}
		} else if r.inFrame {
			r.readBuf.WriteByte(b)
		}
	}
	return n, err
}

func (r *Recorder) SetControlLines(dtr, rts bool) error {
	fmt.Fprintf(r.w, "%s SET_CONTROL_LINES DTR=%t RTS=%t\n", r.stamp(), dtr, rts)
	return r.inner.SetControlLines(dtr, rts)
}
