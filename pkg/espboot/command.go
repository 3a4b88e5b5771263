// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import "encoding/binary"

// command is an outgoing bootloader packet before SLIP framing.
type command struct {
	op       byte
	checksum uint32
	data     []byte
}

// encode lays the command out on the wire:
// [dir=0x00][op][len:u16 LE][checksum:u32 LE][payload].
func (c command) encode() []byte {
	pkt := make([]byte, 8+len(c.data))
	pkt[0] = dirRequest
	pkt[1] = c.op
	binary.LittleEndian.PutUint16(pkt[2:4], uint16(len(c.data)))
	binary.LittleEndian.PutUint32(pkt[4:8], c.checksum)
	copy(pkt[8:], c.data)
	return pkt
}

// leWords packs 32-bit words little-endian.
func leWords(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

// dataPayload builds the common chunked-data payload:
// [len][seq][0][0][chunk...].
func dataPayload(seq uint32, chunk []byte) []byte {
	data := make([]byte, 16+len(chunk))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(chunk)))
	binary.LittleEndian.PutUint32(data[4:8], seq)
	copy(data[16:], chunk)
	return data
}

func syncCommand() command {
	data := make([]byte, 32)
	data[0], data[1], data[2], data[3] = 0x07, 0x07, 0x12, 0x20
	for i := 4; i < len(data); i++ {
		data[i] = 0x55
	}
	return command{op: OpSync, data: data}
}

func readRegCommand(addr uint32) command {
	return command{op: OpReadReg, data: leWords(addr)}
}

func spiAttachCommand() command {
	return command{op: OpSpiAttach, data: leWords(0, 0)}
}

func spiSetParamsCommand(totalSize uint32) command {
	// id, total size, block size 64 KiB, sector size 4 KiB, page size
	// 256, status mask
	return command{op: OpSpiSetParams, data: leWords(0, totalSize, 64*1024, 4*1024, 256, 0xffff)}
}

func changeBaudrateCommand(rate uint32) command {
	return command{op: OpChangeBaudrate, data: leWords(rate, 0)}
}

func flashBeginCommand(size, blocks, blockSize, offset uint32, canEncrypt bool) command {
	words := []uint32{size, blocks, blockSize, offset}
	if canEncrypt {
		words = append(words, 0)
	}
	return command{op: OpFlashBegin, data: leWords(words...)}
}

func flashDataCommand(seq uint32, chunk []byte) command {
	return command{op: OpFlashData, checksum: Checksum(chunk), data: dataPayload(seq, chunk)}
}

func flashEndCommand(flag uint32) command {
	return command{op: OpFlashEnd, data: leWords(flag)}
}

func flashDeflBeginCommand(uncompressedSize, blocks, blockSize, offset uint32, canEncrypt bool) command {
	words := []uint32{uncompressedSize, blocks, blockSize, offset}
	if canEncrypt {
		words = append(words, 0)
	}
	return command{op: OpFlashDeflBegin, data: leWords(words...)}
}

func flashDeflDataCommand(seq uint32, chunk []byte) command {
	return command{op: OpFlashDeflData, checksum: Checksum(chunk), data: dataPayload(seq, chunk)}
}

func flashDeflEndCommand(flag uint32) command {
	return command{op: OpFlashDeflEnd, data: leWords(flag)}
}

func memBeginCommand(size, blocks, blockSize, offset uint32) command {
	return command{op: OpMemBegin, data: leWords(size, blocks, blockSize, offset)}
}

func memDataCommand(seq uint32, chunk []byte) command {
	return command{op: OpMemData, checksum: Checksum(chunk), data: dataPayload(seq, chunk)}
}

func memEndCommand(entryPoint uint32) command {
	return command{op: OpMemEnd, data: leWords(0, entryPoint)}
}

func spiFlashMD5Command(addr, size uint32) command {
	return command{op: OpSpiFlashMD5, data: leWords(addr, size, 0, 0)}
}

func eraseFlashCommand() command {
	return command{op: OpEraseFlash}
}

func eraseRegionCommand(offset, size uint32) command {
	return command{op: OpEraseRegion, data: leWords(offset, size)}
}

func readFlashCommand(offset, size, blockSize, inflightBlocks uint32) command {
	return command{op: OpReadFlash, data: leWords(offset, size, blockSize, inflightBlocks)}
}

func runUserCodeCommand() command {
	return command{op: OpRunUserCode}
}
