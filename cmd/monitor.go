// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltforge/espflash/pkg/espboot"
)

var monitorReset bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Dump the chip's serial output",
	Long: `Continuously print everything the chip sends over the serial line.

With --reset (the default) the chip is restarted into normal execution
first, so the boot log is captured from the top.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorReset, "reset", true, "Reset the chip before monitoring")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if monitorReset {
		if err := espboot.New(sess.transport).Reset(); err != nil {
			return err
		}
	}

	fmt.Printf("espflash - Serial Monitor\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	buf := make([]byte, 256)
	for {
		n, err := sess.conn.Read(buf)
		if err != nil {
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
	}
}
