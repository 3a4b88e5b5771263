// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// Package espboot implements the Espressif serial bootloader protocol:
// SLIP-framed command/response exchange with the factory ROM loader and
// the uploaded RAM stub loader, chunked flash writes (raw and deflate),
// MD5-verified read-back, and chip identification.
//
// See https://docs.espressif.com/projects/esptool/en/latest/esp32/advanced-topics/serial-protocol.html
package espboot

import "time"

// ROM bootloader opcodes
const (
	OpFlashBegin     byte = 0x02
	OpFlashData      byte = 0x03
	OpFlashEnd       byte = 0x04
	OpMemBegin       byte = 0x05
	OpMemEnd         byte = 0x06
	OpMemData        byte = 0x07
	OpSync           byte = 0x08
	OpWriteReg       byte = 0x09
	OpReadReg        byte = 0x0A
	OpSpiSetParams   byte = 0x0B
	OpSpiAttach      byte = 0x0D
	OpChangeBaudrate byte = 0x0F
	OpFlashDeflBegin byte = 0x10
	OpFlashDeflData  byte = 0x11
	OpFlashDeflEnd   byte = 0x12
	OpSpiFlashMD5    byte = 0x13
)

// Stub loader only opcodes
const (
	OpEraseFlash  byte = 0xD0
	OpEraseRegion byte = 0xD1
	OpReadFlash   byte = 0xD2
	OpRunUserCode byte = 0xD3
)

// Packet direction bytes
const (
	dirRequest  = 0x00
	dirResponse = 0x01
)

// Command timeouts
const (
	defaultTimeout = 3 * time.Second
	syncTimeout    = 100 * time.Millisecond
	shortTimeout   = 100 * time.Millisecond

	erasePerMB = 30 * time.Second
	writePerMB = 30 * time.Second
	readPerMB  = 30 * time.Second
	md5PerMB   = 8 * time.Second
)

const (
	syncAttempts = 20

	// RAM writes during stub upload use this block size
	memWriteBlock = 0x1800

	// Reading this register yields the chip identification magic
	chipMagicRegAddr = 0x40001000

	// Stub read-back parameters
	readFlashBlock    = 0x400
	readFlashInflight = 2

	// Hold time for each step of the DTR/RTS reset sequences. Part of
	// the protocol contract with the chip's reset circuitry.
	resetHold = 100 * time.Millisecond

	maxFrameSize = 16 * 1024
)

// stubMarker is the literal frame the stub loader emits once it has taken
// over the serial line ("OHAI").
var stubMarker = []byte{0x4F, 0x48, 0x41, 0x49}

// OpName returns a readable name for an opcode, for logs and traces.
func OpName(op byte) string {
	switch op {
	case OpFlashBegin:
		return "FLASH_BEGIN"
	case OpFlashData:
		return "FLASH_DATA"
	case OpFlashEnd:
		return "FLASH_END"
	case OpMemBegin:
		return "MEM_BEGIN"
	case OpMemEnd:
		return "MEM_END"
	case OpMemData:
		return "MEM_DATA"
	case OpSync:
		return "SYNC"
	case OpWriteReg:
		return "WRITE_REG"
	case OpReadReg:
		return "READ_REG"
	case OpSpiSetParams:
		return "SPI_SET_PARAMS"
	case OpSpiAttach:
		return "SPI_ATTACH"
	case OpChangeBaudrate:
		return "CHANGE_BAUDRATE"
	case OpFlashDeflBegin:
		return "FLASH_DEFL_BEGIN"
	case OpFlashDeflData:
		return "FLASH_DEFL_DATA"
	case OpFlashDeflEnd:
		return "FLASH_DEFL_END"
	case OpSpiFlashMD5:
		return "SPI_FLASH_MD5"
	case OpEraseFlash:
		return "ERASE_FLASH"
	case OpEraseRegion:
		return "ERASE_REGION"
	case OpReadFlash:
		return "READ_FLASH"
	case OpRunUserCode:
		return "RUN_USER_CODE"
	default:
		return "UNKNOWN"
	}
}
