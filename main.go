// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

// espflash - Espressif serial bootloader flasher
//
// A host-side library and CLI for flashing firmware onto ESP-family
// microcontrollers (ESP8266, ESP32, ESP32-S/C/H series) over the ROM
// serial bootloader protocol and its RAM stub loader.

package main

import (
	"os"

	"github.com/voltforge/espflash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
