package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the partition layout, running region and boot target",
		Long: `The status command lists every region of the image with its address,
size and type codes, plus the running region and the boot target.

Example:
  recoveryctl status --image recovery.img
  recoveryctl status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	status := sys.Status()
	if jsonOut {
		return printJSON(status)
	}

	headerColor.Println("Partitions:")
	printInfo("  %-16s %-10s %-10s %-6s %-8s\n", "LABEL", "ADDRESS", "SIZE", "TYPE", "SUBTYPE")
	for _, r := range status.Regions {
		printInfo("  %-16s %-10s %-10d 0x%02x   0x%02x\n",
			r.Label, r.Address, r.Size, r.Kind, r.SubKind)
	}
	printInfo("\n")
	labelColor.Print("Running:     ")
	printInfo("%s\n", orDash(status.Running))
	labelColor.Print("Boot target: ")
	printInfo("%s\n", orDash(status.BootTarget))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
