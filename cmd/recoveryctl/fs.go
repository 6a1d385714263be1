package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newFSCmd())
}

func newFSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Manage file store regions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls <region>",
		Short: "List the files of a file store region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFSList(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "put <region> <name> <file>",
		Short: "Store a local file under the given name",
		Long: `Stores a local file under the given name, replacing any existing file
of that name atomically: the old content stays retrievable until the new
content is fully in place.

Example:
  recoveryctl fs put spiffs config.json ./config.json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFSPut(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <region> <name> [out]",
		Short: "Retrieve a stored file (stdout when no output path given)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFSGet(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <region> <name>",
		Short: "Delete a stored file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFSDelete(args)
		},
	})
	return cmd
}

func runFSList(args []string) error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	files, err := sys.FileList(args[0])
	if err != nil {
		return fmt.Errorf("list %s: %w", args[0], err)
	}
	if jsonOut {
		return printJSON(files)
	}
	printInfo("%-32s %s\n", "NAME", "SIZE")
	for _, f := range files {
		printInfo("%-32s %d\n", f.Name, f.Size)
	}
	return nil
}

func runFSPut(args []string) error {
	label, name, path := args[0], args[1], args[2]

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

	if err := sys.FileUpload(label, name, stat.Size(), f); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	printSuccess("stored %s (%d bytes)\n", name, stat.Size())
	return nil
}

func runFSGet(args []string) error {
	label, name := args[0], args[1]

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	data, err := sys.FileDownload(label, name)
	if err != nil {
		return fmt.Errorf("retrieve %s: %w", name, err)
	}
	if len(args) == 3 && args[2] != "-" {
		if err := os.WriteFile(args[2], data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		printSuccess("retrieved %s (%d bytes) to %s\n", name, len(data), args[2])
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runFSDelete(args []string) error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if err := sys.FileDelete(args[0], args[1]); err != nil {
		return fmt.Errorf("delete %s: %w", args[1], err)
	}
	printSuccess("deleted %s\n", args[1])
	return nil
}
