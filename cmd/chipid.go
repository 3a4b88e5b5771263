// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/chip"
	"github.com/voltforge/espflash/pkg/flasher"
)

var chipIDCmd = &cobra.Command{
	Use:   "chip_id",
	Short: "Identify the connected chip",
	Long: `Sync with the bootloader, read the chip identification magic register
and print the chip family and its flash region layout.`,
	Args: cobra.NoArgs,
	RunE: runChipID,
}

func init() {
	rootCmd.AddCommand(chipIDCmd)
}

func runChipID(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	start, err := flasher.Connect(sess.transport)
	if err != nil {
		return err
	}
	detected, err := start.DetectChip()
	if err != nil {
		return err
	}
	c := detected.Chip()

	fmt.Printf("Chip:           %s (family ID 0x%X)\n", c, c.ID())
	fmt.Printf("Stub loader:    %v\n", c.HasStub())
	fmt.Printf("Flash regions:\n")
	for _, r := range []chip.FlashRegion{chip.Bootloader, chip.AppBootloader, chip.PartitionTable, chip.App0, chip.App1, chip.NVS} {
		fmt.Printf("  %-16s 0x%06X (%d bytes)\n", r, c.RegionOffset(r), r.DefaultSize())
	}

	return flasherReset(detected)
}

// flasherReset resets from the detected stage; chip_id never loads the
// stub, so a plain hardware reset is all that is needed.
func flasherReset(d *flasher.Detected) error {
	rom, err := d.SpiAttach()
	if err != nil {
		return err
	}
	return rom.Reset()
}
