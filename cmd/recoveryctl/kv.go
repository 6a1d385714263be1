package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

func init() {
	rootCmd.AddCommand(newKVCmd())
}

func newKVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Read and write key-value store regions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <region>",
		Short: "List every entry of a key-value region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVList(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <region> <namespace> <key>",
		Short: "Print one entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVGet(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <region> <namespace> <key> <type> <value>",
		Short: "Create or replace one entry",
		Long: `Creates or replaces one entry. Type is one of u8, i8, u16, i16, u32,
i32, u64, i64, str; integer values must fit the declared width. Blob
entries cannot be written through this interface.

Example:
  recoveryctl kv set nvs wifi ssid str mynetwork
  recoveryctl kv set nvs boot attempts u8 3`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVSet(args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <region> <namespace> <key>",
		Short: "Delete one entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVDelete(args)
		},
	})
	return cmd
}

// parseKVType resolves a type name as printed by KVType.String.
func parseKVType(name string) (types.KVType, error) {
	for t := types.TypeU8; t <= types.TypeString; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q (want u8, i8, u16, i16, u32, i32, u64, i64 or str)", name)
}

func runKVList(args []string) error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	entries, err := sys.KVList(args[0])
	if err != nil {
		return fmt.Errorf("list %s: %w", args[0], err)
	}
	if jsonOut {
		return printJSON(entries)
	}
	printInfo("%-16s %-24s %-5s %s\n", "NAMESPACE", "KEY", "TYPE", "VALUE")
	for _, e := range entries {
		printInfo("%-16s %-24s %-5s %s\n", e.Namespace, e.Key, e.Type, e.Value)
	}
	return nil
}

func runKVGet(args []string) error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	entry, err := sys.KVGet(args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", args[1], args[2], err)
	}
	if jsonOut {
		return printJSON(entry)
	}
	printInfo("%s\n", entry.Value)
	return nil
}

func runKVSet(args []string) error {
	typ, err := parseKVType(args[3])
	if err != nil {
		return err
	}

	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if err := sys.KVSet(args[0], args[1], args[2], typ, args[4]); err != nil {
		return fmt.Errorf("set %s/%s: %w", args[1], args[2], err)
	}
	printSuccess("set %s/%s\n", args[1], args[2])
	return nil
}

func runKVDelete(args []string) error {
	sys, closeSys, err := openSystem()
	if err != nil {
		return err
	}
	defer closeSys()

	if err := sys.KVDelete(args[0], args[1], args[2]); err != nil {
		return fmt.Errorf("delete %s/%s: %w", args[1], args[2], err)
	}
	printSuccess("deleted %s/%s\n", args[1], args[2])
	return nil
}
