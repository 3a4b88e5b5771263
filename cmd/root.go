// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session options
	tracePath string
	stubsDir  string
	plainOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "espflash",
	Short: "Espressif serial bootloader flasher",
	Long: `espflash - Flash firmware onto ESP-family microcontrollers.

Drives the chip through the ROM serial bootloader protocol, optionally
uploading the RAM stub loader for faster writes and the extended erase and
read-back command set.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
ESPFLASH_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Record the SLIP exchange to a trace file")
	rootCmd.PersistentFlags().StringVar(&stubsDir, "stubs", "stubs", "Directory holding the stub loader blobs")
	rootCmd.PersistentFlags().BoolVar(&plainOut, "plain", false, "Plain line-based output instead of the progress UI")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
