// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/espboot"
	"github.com/voltforge/espflash/pkg/flasher"
)

var eraseFlashCmd = &cobra.Command{
	Use:   "erase_flash",
	Short: "Erase the entire flash chip",
	Long: `Erase the entire flash chip.

Requires the stub loader; the ROM loader has no erase command.`,
	Args: cobra.NoArgs,
	RunE: runEraseFlash,
}

var eraseRegionCmd = &cobra.Command{
	Use:   "erase_region <offset> <size>",
	Short: "Erase a region of flash",
	Args:  cobra.ExactArgs(2),
	RunE:  runEraseRegion,
}

func init() {
	rootCmd.AddCommand(eraseFlashCmd)
	rootCmd.AddCommand(eraseRegionCmd)
}

// connectStub brings a session all the way to a running stub loader.
func connectStub(sess *session, cb espboot.ProgressCallback) (*flasher.Stub, error) {
	start, err := flasher.Connect(sess.transport)
	if err != nil {
		return nil, err
	}
	start.WithCallback(cb)
	detected, err := start.DetectChip()
	if err != nil {
		return nil, err
	}
	return detected.LoadStub(loadStubBlob)
}

func runEraseFlash(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	return runWithUI("espflash · erase flash · "+sess.info, func(cb espboot.ProgressCallback) error {
		stub, err := connectStub(sess, cb)
		if err != nil {
			return err
		}
		if stub, err = stub.EraseFlash(); err != nil {
			return err
		}
		return stub.Reset()
	})
}

func runEraseRegion(cmd *cobra.Command, args []string) error {
	offset, err := parseOffset(args[0])
	if err != nil {
		return err
	}
	size, err := parseOffset(args[1])
	if err != nil {
		return err
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	return runWithUI("espflash · erase region · "+sess.info, func(cb espboot.ProgressCallback) error {
		stub, err := connectStub(sess, cb)
		if err != nil {
			return err
		}
		if stub, err = stub.EraseRegion(offset, size); err != nil {
			return err
		}
		return stub.Reset()
	})
}
