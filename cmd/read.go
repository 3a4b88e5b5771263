// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/espboot"
)

var readFlashCmd = &cobra.Command{
	Use:   "read_flash <offset> <size> <outfile>",
	Short: "Read a region of flash into a file",
	Long: `Read size bytes of flash starting at offset and write them to a file.

Requires the stub loader. The read-back is MD5-checked against the digest
the stub computes on its side.`,
	Args: cobra.ExactArgs(3),
	RunE: runReadFlash,
}

func init() {
	rootCmd.AddCommand(readFlashCmd)
}

func runReadFlash(cmd *cobra.Command, args []string) error {
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

	data := make([]byte, size)
	title := fmt.Sprintf("espflash · read %d bytes at 0x%08X · %s", size, offset, sess.info)
	err = runWithUI(title, func(cb espboot.ProgressCallback) error {
		stub, err := connectStub(sess, cb)
		if err != nil {
			return err
		}
		if stub, err = stub.ReadFlash(data, offset, size); err != nil {
			return err
		}
		return stub.Reset()
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(args[2], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", size, args[2])
	return nil
}
