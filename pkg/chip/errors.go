// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package chip

// The ROM bootloader and the stub loader report failures through disjoint
// error code tables. The response trailer carries the code; these lookups
// turn it into the documented message.

var romErrors = map[byte]string{
	0x05: "received message is invalid (parameters or length field is invalid)",
	0x06: "failed to act on received message",
	0x07: "invalid CRC in message",
	0x08: "flash write error - verification mismatch after writing to flash",
	0x09: "flash read error - SPI read failed",
	0x0A: "flash read length error - SPI read request length is too long",
	0x0B: "deflate error - compressed uploads only",
}

var stubErrors = map[byte]string{
	0x01: "invalid size",
	0x02: "invalid argument",
	0x03: "flash read error",
	0x04: "flash write error",
	0x05: "flash erase error",
	0x06: "invalid flash arguments",
	0x07: "flash timeout",
}

// RomErrorMessage returns the message for a ROM bootloader error code.
func RomErrorMessage(code byte) string {
	if msg, ok := romErrors[code]; ok {
		return msg
	}
	return "unknown ROM error"
}

// StubErrorMessage returns the message for a stub loader error code.
func StubErrorMessage(code byte) string {
	if msg, ok := stubErrors[code]; ok {
		return msg
	}
	return "unknown stub error"
}
