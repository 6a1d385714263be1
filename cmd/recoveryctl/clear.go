package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newClearCmd())
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <region>",
		Short: "Erase an entire region back to 0xFF",
		Long: `The clear command erases the named region wholesale. Every byte of
the region reads back 0xFF afterwards; a key-value or file store region is
reset to empty.

Example:
  recoveryctl clear ota_1
  recoveryctl clear nvs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(args)
		},
	}
}

func runClear(args []string) error {
	label := args[0]

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if err := sys.Clear(label); err != nil {
		return fmt.Errorf("clear %s: %w", label, err)
	}
	printSuccess("cleared %s\n", label)
	return nil
}
