// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package chip

import "testing"

func TestFromMagic(t *testing.T) {
	tests := []struct {
		name  string
		magic uint32
		want  Chip
	}{
		{"esp8266", 0xfff0c101, ESP8266},
		{"esp32", 0x00f01d83, ESP32},
		{"esp32s2", 0x000007c6, ESP32S2},
		{"esp32s3", 0x9, ESP32S3},
		{"esp32h2 first", 0xca26cc22, ESP32H2},
		{"esp32h2 second", 0xd7b73e80, ESP32H2},
		{"esp32c2 first", 0x6f51306f, ESP32C2},
		{"esp32c2 second", 0x7c41a06f, ESP32C2},
		{"esp32c3 first", 0x6921506f, ESP32C3},
		{"esp32c3 second", 0x1b31506f, ESP32C3},
		{"esp32c6 first", 0x0da1806f, ESP32C6},
		{"esp32c6 second", 0x2ce0806f, ESP32C6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMagic(tt.magic)
			if err != nil {
				t.Fatalf("FromMagic(0x%08x): %v", tt.magic, err)
			}
			if got != tt.want {
				t.Errorf("FromMagic(0x%08x) = %s, want %s", tt.magic, got, tt.want)
			}
		})
	}
}

func TestFromMagic_Unknown(t *testing.T) {
	if _, err := FromMagic(0xdeadbeef); err == nil {
		t.Error("expected error for unknown magic value")
	}
}

func TestFromID(t *testing.T) {
	c, err := FromID(0x32C3)
	if err != nil {
		t.Fatal(err)
	}
	if c != ESP32C3 {
		t.Errorf("FromID(0x32C3) = %s", c)
	}
	if _, err := FromID(0x1234); err == nil {
		t.Error("expected error for unknown ID")
	}
}

func TestRegionOffsets(t *testing.T) {
	// The original ESP32 keeps its second-stage bootloader at 0x1000;
	// every newer family moved it to 0x0
	if got := ESP32.RegionOffset(Bootloader); got != 0x1000 {
		t.Errorf("ESP32 bootloader offset = 0x%X, want 0x1000", got)
	}
	if got := ESP32S3.RegionOffset(Bootloader); got != 0x0 {
		t.Errorf("ESP32-S3 bootloader offset = 0x%X, want 0x0", got)
	}

	// ESP8266 has no overrides and falls back to the defaults
	if got := ESP8266.RegionOffset(App0); got != App0.DefaultOffset() {
		t.Errorf("ESP8266 app0 offset = 0x%X, want default 0x%X", got, App0.DefaultOffset())
	}

	for _, c := range All() {
		if got := c.RegionOffset(PartitionTable); got != 0x8000 {
			t.Errorf("%s partition table offset = 0x%X, want 0x8000", c, got)
		}
	}
}

func TestCanEncrypt(t *testing.T) {
	capable := []Chip{ESP32S2, ESP32S3, ESP32C2, ESP32C3, ESP32C6, ESP32H2}
	for _, c := range capable {
		if !c.CanEncrypt() {
			t.Errorf("%s should be flash-encryption capable", c)
		}
	}
	for _, c := range []Chip{ESP8266, ESP32} {
		if c.CanEncrypt() {
			t.Errorf("%s should not be flash-encryption capable", c)
		}
	}
}

func TestStubNames(t *testing.T) {
	if !ESP32C3.HasStub() {
		t.Error("ESP32-C3 should have a stub image")
	}
	if ESP32C3.StubName() != "esp32c3.json" {
		t.Errorf("ESP32-C3 stub name = %q", ESP32C3.StubName())
	}
	// No stub images exist for the ESP8266 and ESP32-C2
	for _, c := range []Chip{ESP8266, ESP32C2} {
		if c.HasStub() {
			t.Errorf("%s should not have a stub image", c)
		}
	}
}

func TestErrorTables(t *testing.T) {
	// The ROM and stub tables are disjoint: 0x05 means different things
	if RomErrorMessage(0x05) == StubErrorMessage(0x05) {
		t.Error("ROM and stub error tables should disagree on 0x05")
	}
	if RomErrorMessage(0x42) != "unknown ROM error" {
		t.Errorf("unexpected fallback: %q", RomErrorMessage(0x42))
	}
	if StubErrorMessage(0x42) != "unknown stub error" {
		t.Errorf("unexpected fallback: %q", StubErrorMessage(0x42))
	}
}

func TestParseRegion(t *testing.T) {
	r, ok := ParseRegion("partition_table")
	if !ok || r != PartitionTable {
		t.Errorf("ParseRegion(partition_table) = %v, %v", r, ok)
	}
	if _, ok := ParseRegion("bogus"); ok {
		t.Error("ParseRegion should reject unknown names")
	}
}
