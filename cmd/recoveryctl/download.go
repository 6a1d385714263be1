package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDownloadCmd())
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <region> <out>",
		Short: "Copy a region's raw contents to a file",
		Long: `The download command reads the named region in full, erased pages
included, and writes it to the given output file. "-" writes to stdout.

Example:
  recoveryctl download factory factory.bin
  recoveryctl download nvs - > nvs.bin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(args)
		},
	}
}

func runDownload(args []string) error {
	label, outPath := args[0], args[1]

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	out := os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	n, err := sys.Download(label, out)
	if err != nil {
		return fmt.Errorf("download %s: %w", label, err)
	}
	if outPath != "-" {
		printSuccess("downloaded %s (%d bytes) to %s\n", label, n, outPath)
	}
	return nil
}
