// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/esptrace"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Pretty-print a recorded SLIP trace",
	Long: `Decode a trace recorded with --trace and print each record with its
direction, bootloader opcode and length.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	player, err := esptrace.Load(args[0])
	if err != nil {
		return err
	}
	player.Dump(os.Stdout)
	return nil
}
