package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWriteCmd())
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <region> <file>",
		Short: "Stream a payload into a region, erasing only changed pages",
		Long: `The write command streams a file into the named region through the
differential writer: pages whose content already matches are left untouched,
and only runs of changed pages are erased and programmed.

Example:
  recoveryctl write ota_0 firmware.bin
  recoveryctl write factory firmware.bin --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(args)
		},
	}
}

func runWrite(args []string) error {
	label, path := args[0], args[1]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat payload: %w", err)
	}

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	printVerbose("Writing %d bytes to %s\n", stat.Size(), label)
	report, err := sys.Write(label, stat.Size(), f)
	if err != nil {
		return fmt.Errorf("write %s: %w", label, err)
	}

	if jsonOut {
		return printJSON(report)
	}
	printSuccess("wrote %s\n", label)
	printInfo("  bytes received: %d\n", report.BytesReceived)
	printInfo("  pages compared: %d\n", report.PagesCompared)
	printInfo("  pages written:  %d\n", report.PagesWritten)
	return nil
}
