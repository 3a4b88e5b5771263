// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/hex"
)

// checksumSeed is the XOR seed for bootloader data checksums.
const checksumSeed = 0xEF

// Checksum computes the bootloader data checksum of a chunk: XOR over all
// bytes, seeded with 0xEF, widened to 32 bits. Only the FLASH_DATA,
// MEM_DATA and FLASH_DEFL_DATA packets carry it.
func Checksum(data []byte) uint32 {
	chk := uint32(checksumSeed)
	for _, b := range data {
		chk ^= uint32(b)
	}
	return chk
}

// deflate compresses an image at the highest compression level, producing
// the zlib stream the FLASH_DEFL_* command family expects.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// md5Hex returns the lowercase hex MD5 digest of data.
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
