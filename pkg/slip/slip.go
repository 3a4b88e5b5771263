// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// Package slip implements the byte-stuffed SLIP framing used by the
// Espressif serial bootloader. Frames are delimited by 0xC0; the two
// special bytes are escaped with 0xDB inside the frame body.
package slip

// Framing bytes
const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// Encode wraps data in a complete SLIP frame: a leading and trailing End
// byte with every End/Esc occurrence in the body escaped.
func Encode(data []byte) []byte {
	// Pre-allocate assuming few escapes
	out := make([]byte, 0, len(data)+8)
	out = append(out, End)
	for _, b := range data {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, End)
}

// Decode reverses the byte stuffing of a frame body. The input is the frame
// interior, without the End delimiters; stripping those is the frame
// reader's job. Decoding is tolerant: an escape followed by anything other
// than EscEnd/EscEsc emits the byte verbatim, and a trailing lone escape is
// dropped.
func Decode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inEscape := false
	for _, b := range data {
		if inEscape {
			switch b {
			case EscEnd:
				out = append(out, End)
			case EscEsc:
				out = append(out, Esc)
			default:
				out = append(out, b)
			}
			inEscape = false
		} else if b == Esc {
			inEscape = true
		} else {
			out = append(out, b)
		}
	}
	return out
}
