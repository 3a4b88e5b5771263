// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// Package chip describes the ESP chip families spoken to by the serial
// bootloader protocol: their identification magic values, stub loader
// image names, flash region layouts, and the bootloader error code tables.
package chip

import "fmt"

// Chip identifies an ESP chip family.
type Chip int

// Known chip families
const (
	Unknown Chip = iota
	ESP8266
	ESP32
	ESP32S2
	ESP32S3
	ESP32H2
	ESP32C2
	ESP32C3
	ESP32C6
)

type chipInfo struct {
	id       uint16
	name     string
	stubName string // empty when no stub image exists for the family
	magics   []uint32
	regions  map[FlashRegion]uint32
}

// Standard region layout shared by everything newer than the original
// ESP32, which keeps its bootloader at 0x1000.
var postEsp32Regions = map[FlashRegion]uint32{
	Bootloader:     0x0000,
	AppBootloader:  0xe000,
	PartitionTable: 0x8000,
	App0:           0x10000,
	App1:           0x210000,
	NVS:            0x9000,
}

var chipTable = map[Chip]chipInfo{
	ESP8266: {
		id:     0x8266,
		name:   "ESP8266",
		magics: []uint32{0xfff0c101},
	},
	ESP32: {
		id:       0x32,
		name:     "ESP32",
		stubName: "esp32.json",
		magics:   []uint32{0x00f01d83},
		regions: map[FlashRegion]uint32{
			Bootloader:     0x1000,
			AppBootloader:  0xe000,
			PartitionTable: 0x8000,
			App0:           0x10000,
			App1:           0x210000,
			NVS:            0x9000,
		},
	},
	ESP32S2: {
		id:       0x3252,
		name:     "ESP32-S2",
		stubName: "esp32s2.json",
		magics:   []uint32{0x000007c6},
		regions:  postEsp32Regions,
	},
	ESP32S3: {
		id:       0x3253,
		name:     "ESP32-S3",
		stubName: "esp32s3.json",
		magics:   []uint32{0x9},
		regions:  postEsp32Regions,
	},
	ESP32H2: {
		id:       0x3282,
		name:     "ESP32-H2",
		stubName: "esp32h2.json",
		magics:   []uint32{0xca26cc22, 0xd7b73e80},
		regions:  postEsp32Regions,
	},
	ESP32C2: {
		id:   0x32C2,
		name: "ESP32-C2",
		// Two magic values are seen in the wild for the C2; both are
		// registered, neither is treated as canonical.
		magics:  []uint32{0x6f51306f, 0x7c41a06f},
		regions: postEsp32Regions,
	},
	ESP32C3: {
		id:       0x32C3,
		name:     "ESP32-C3",
		stubName: "esp32c3.json",
		magics:   []uint32{0x6921506f, 0x1b31506f},
		regions:  postEsp32Regions,
	},
	ESP32C6: {
		id:       0x32C6,
		name:     "ESP32-C6",
		stubName: "esp32c6.json",
		magics:   []uint32{0x0da1806f, 0x2ce0806f},
		regions:  postEsp32Regions,
	},
}

// All returns every known chip family.
func All() []Chip {
	return []Chip{ESP8266, ESP32, ESP32S2, ESP32S3, ESP32H2, ESP32C2, ESP32C3, ESP32C6}
}

// ID returns the 16-bit family identifier.
func (c Chip) ID() uint16 {
	return chipTable[c].id
}

// String returns the readable chip name.
func (c Chip) String() string {
	if info, ok := chipTable[c]; ok {
		return info.name
	}
	return "unknown"
}

// StubName returns the file name of the stub loader blob for the family,
// or an empty string when the family has no stub.
func (c Chip) StubName() string {
	return chipTable[c].stubName
}

// HasStub reports whether a stub loader image exists for the family.
func (c Chip) HasStub() bool {
	return chipTable[c].stubName != ""
}

// CanEncrypt reports whether the family supports flash encryption. The
// ROM bootloaders of these chips expect an extra reserved word in the
// FLASH_BEGIN / FLASH_DEFL_BEGIN payload.
func (c Chip) CanEncrypt() bool {
	switch c {
	case ESP32S2, ESP32S3, ESP32C2, ESP32C3, ESP32C6, ESP32H2:
		return true
	}
	return false
}

// RegionOffset returns the flash offset of a region on this chip,
// falling back to the regional default when the family has no override.
func (c Chip) RegionOffset(r FlashRegion) uint32 {
	if off, ok := chipTable[c].regions[r]; ok {
		return off
	}
	return r.DefaultOffset()
}

// FromMagic resolves a chip family from the value of the chip-detect
// magic register.
func FromMagic(magic uint32) (Chip, error) {
	for _, c := range All() {
		for _, m := range chipTable[c].magics {
			if m == magic {
				return c, nil
			}
		}
	}
	return Unknown, fmt.Errorf("unknown ESP chip magic value: 0x%08x", magic)
}

// FromID resolves a chip family from its 16-bit identifier.
func FromID(id uint16) (Chip, error) {
	for _, c := range All() {
		if chipTable[c].id == id {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("unknown ESP chip ID: 0x%x", id)
}
