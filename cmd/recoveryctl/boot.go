package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newBootCmd())
}

func newBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Inspect or change the boot target",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current boot target and running region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootGet()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <region>",
		Short: "Select an application region as the boot target",
		Long: `Selects the named application region as the boot target. The choice
is recorded durably and survives reopening the image; selecting a data
region fails and leaves the previous target in place.

Example:
  recoveryctl boot set ota_0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootSet(args)
		},
	})
	return cmd
}

func runBootGet() error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if jsonOut {
		return printJSON(map[string]string{
			"boot_target": sys.BootTarget(),
			"running":     sys.Running(),
		})
	}
	labelColor.Print("Boot target: ")
	printInfo("%s\n", orDash(sys.BootTarget()))
	labelColor.Print("Running:     ")
	printInfo("%s\n", orDash(sys.Running()))
	return nil
}

func runBootSet(args []string) error {
	label := args[0]

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if err := sys.SetBootTarget(label); err != nil {
		return fmt.Errorf("set boot target: %w", err)
	}
	printSuccess("boot target set to %s\n", label)
	return nil
}
