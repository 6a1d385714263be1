package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FL0WL0W/ESPRecovery/partition"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

func init() {
	rootCmd.AddCommand(newMktableCmd())
}

func newMktableCmd() *cobra.Command {
	var size int64
	cmd := &cobra.Command{
		Use:   "mktable <image>",
		Short: "Create a blank image carrying the default partition table",
		Long: `The mktable command creates an erased flash image and programs the
default partition layout into it: factory and two OTA application slots,
a boot record region, a key-value region and a file store region.

Example:
  recoveryctl mktable recovery.img
  recoveryctl mktable recovery.img --size 8388608`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMktable(args[0], size)
		},
	}
	cmd.Flags().Int64Var(&size, "size", 4<<20, "Image size in bytes")
	return cmd
}

// defaultLayout lays the standard regions over an image of the given size.
// The file store takes whatever remains past the fixed regions.
func defaultLayout(size int64) ([]types.Region, error) {
	const fsStart = 0x310000
	if size < fsStart+0x10000 {
		return nil, fmt.Errorf("image size %d too small for the default layout (minimum %d)", size, fsStart+0x10000)
	}
	return []types.Region{
		{Label: "bootdata", Kind: types.KindData, SubKind: types.SubKindBootData, Offset: 0x9000, Size: 0x2000},
		{Label: "nvs", Kind: types.KindData, SubKind: types.SubKindKVStore, Offset: 0xB000, Size: 0x5000},
		{Label: "factory", Kind: types.KindApplication, SubKind: types.SubKindFactory, Offset: 0x10000, Size: 0x100000},
		{Label: "ota_0", Kind: types.KindApplication, SubKind: types.SubKindOTA(0), Offset: 0x110000, Size: 0x100000},
		{Label: "ota_1", Kind: types.KindApplication, SubKind: types.SubKindOTA(1), Offset: 0x210000, Size: 0x100000},
		{Label: "spiffs", Kind: types.KindData, SubKind: types.SubKindFS, Offset: fsStart, Size: size - fsStart},
	}, nil
}

func runMktable(path string, size int64) error {
	regions, err := defaultLayout(size)
	if err != nil {
		return err
	}

	if err := partition.WriteImage(path, size, regions); err != nil {
		return fmt.Errorf("create image: %w", err)
	}

	printSuccess("created %s (%d bytes)\n", path, size)
	if !quiet {
		printInfo("  %-10s %-10s %s\n", "LABEL", "ADDRESS", "SIZE")
		for _, r := range regions {
			printInfo("  %-10s 0x%-8x %d\n", r.Label, r.Offset, r.Size)
		}
	}
	return nil
}
