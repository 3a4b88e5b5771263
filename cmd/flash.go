// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/chip"
	"github.com/voltforge/espflash/pkg/espboot"
	"github.com/voltforge/espflash/pkg/flasher"
)

var (
	flashRegion    string
	flashBaudHigh  int
	flashNoStub    bool
	flashNoDeflate bool
	flashNoVerify  bool
	flashEraseAll  bool
	flashSizeMB    int
)

var flashCmd = &cobra.Command{
	Use:   "write_flash <image> [offset]",
	Short: "Write a firmware image to flash",
	Long: `Write a firmware image file to flash at the given offset.

The offset is a hex or decimal address (default 0x0), or use --region to
target a well-known flash region of the detected chip. By default the stub
loader is uploaded first and the image is sent deflate-compressed; --no-stub
stays on the ROM loader, --no-compress sends raw blocks.

Every write is verified by MD5 read-back unless --no-verify is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVar(&flashRegion, "region", "", "Write to a named flash region (bootloader, partition_table, app0, ...)")
	flashCmd.Flags().IntVar(&flashBaudHigh, "flash-baud", 0, "Switch to this baud rate for flashing (serial only)")
	flashCmd.Flags().BoolVar(&flashNoStub, "no-stub", false, "Talk to the ROM loader only, do not upload the stub")
	flashCmd.Flags().BoolVar(&flashNoDeflate, "no-compress", false, "Send raw blocks instead of deflate-compressed data")
	flashCmd.Flags().BoolVar(&flashNoVerify, "no-verify", false, "Skip the MD5 verification after writing")
	flashCmd.Flags().BoolVar(&flashEraseAll, "erase-all", false, "Erase the entire flash before writing (stub only)")
	flashCmd.Flags().IntVar(&flashSizeMB, "flash-size", 0, "Announce flash size in MiB to the ROM loader (no-stub mode)")
	rootCmd.AddCommand(flashCmd)
}

// loadStubBlob resolves a chip's stub loader blob from the stubs directory.
func loadStubBlob(c chip.Chip) ([]byte, error) {
	return os.ReadFile(filepath.Join(stubsDir, c.StubName()))
}

// parseOffset accepts 0x-prefixed hex or plain decimal.
func parseOffset(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %v", s, err)
	}
	return uint32(v), nil
}

func runFlash(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var offset uint32
	if len(args) == 2 {
		if offset, err = parseOffset(args[1]); err != nil {
			return err
		}
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	title := fmt.Sprintf("espflash · write %s (%d bytes) · %s", filepath.Base(args[0]), len(image), sess.info)
	return runWithUI(title, func(cb espboot.ProgressCallback) error {
		start, err := flasher.Connect(sess.transport)
		if err != nil {
			return err
		}
		start.WithCallback(cb)

		if flashBaudHigh > 0 {
			if start, err = start.WithBaudRate(flashBaudHigh, sess.conn.SetBaudRate); err != nil {
				return err
			}
		}

		detected, err := start.DetectChip()
		if err != nil {
			return err
		}

		if flashRegion != "" {
			region, ok := chip.ParseRegion(flashRegion)
			if !ok {
				return fmt.Errorf("unknown flash region %q", flashRegion)
			}
			offset = detected.Chip().RegionOffset(region)
		}

		if flashNoStub {
			rom, err := detected.SpiAttach()
			if err != nil {
				return err
			}
			if flashSizeMB > 0 {
				if rom, err = rom.SetFlashSize(uint32(flashSizeMB) * 1024 * 1024); err != nil {
					return err
				}
			}
			if _, err = rom.WithCompression(!flashNoDeflate).WriteFlash(offset, image, !flashNoVerify); err != nil {
				return err
			}
			return rom.Reset()
		}

		stub, err := detected.LoadStub(loadStubBlob)
		if err != nil {
			return err
		}
		if flashEraseAll {
			if stub, err = stub.EraseFlash(); err != nil {
				return err
			}
		}
		if _, err = stub.WithCompression(!flashNoDeflate).WriteFlash(offset, image, !flashNoVerify); err != nil {
			return err
		}
		return stub.Reset()
	})
}
